package safety

import (
	"sort"
	"strings"

	"github.com/dosewise/rxlens/pkg/types/rx"
)

// pairRule is a static pairwise interaction used when the interaction service
// is unreachable.  The table is a floor, not a replacement: it covers the
// combinations a pharmacist would flag on sight.
type pairRule struct {
	tier           rx.Tier
	description    string
	severity       rx.Severity
	recommendation string
}

// fallbackInteractions is keyed by pairKey(a, b).
var fallbackInteractions = map[string]pairRule{
	pairKey("warfarin", "aspirin"): {
		tier:           rx.TierCritical,
		description:    "Combined blood thinning greatly raises bleeding risk",
		severity:       rx.SeverityCritical,
		recommendation: "Do not combine without medical supervision",
	},
	pairKey("warfarin", "ibuprofen"): {
		tier:           rx.TierCritical,
		description:    "NSAIDs with warfarin raise the risk of serious bleeding",
		severity:       rx.SeverityCritical,
		recommendation: "Ask your doctor before taking any pain reliever",
	},
	pairKey("tramadol", "sertraline"): {
		tier:           rx.TierCritical,
		description:    "Both raise serotonin and can trigger a dangerous reaction",
		severity:       rx.SeverityCritical,
		recommendation: "Seek urgent advice before taking these together",
	},
	pairKey("lisinopril", "spironolactone"): {
		tier:           rx.TierModerate,
		description:    "Both raise potassium levels",
		severity:       rx.SeverityModerate,
		recommendation: "Your doctor may want to monitor blood potassium",
	},
	pairKey("ciprofloxacin", "metformin"): {
		tier:           rx.TierModerate,
		description:    "Blood sugar may swing while on both",
		severity:       rx.SeverityModerate,
		recommendation: "Check blood sugar more often during the course",
	},
	pairKey("omeprazole", "clopidogrel"): {
		tier:           rx.TierModerate,
		description:    "Omeprazole can weaken the effect of clopidogrel",
		severity:       rx.SeverityModerate,
		recommendation: "Ask whether a different acid reducer is suitable",
	},
	pairKey("amoxicillin", "methotrexate"): {
		tier:           rx.TierModerate,
		description:    "Amoxicillin can raise methotrexate levels",
		severity:       rx.SeverityModerate,
		recommendation: "Tell your doctor you take methotrexate",
	},
}

// foodRule is a drug-to-food guidance entry for the enhanced safety report.
type foodRule struct {
	description    string
	severity       rx.Severity
	recommendation string
}

var foodInteractions = map[string]foodRule{
	"warfarin": {
		description:    "Large changes in leafy green intake change how this drug works",
		severity:       rx.SeverityModerate,
		recommendation: "Keep your diet steady rather than cutting greens out",
	},
	"atorvastatin": {
		description:    "Grapefruit raises the level of this drug in your blood",
		severity:       rx.SeverityModerate,
		recommendation: "Avoid grapefruit and grapefruit juice",
	},
	"simvastatin": {
		description:    "Grapefruit raises the level of this drug in your blood",
		severity:       rx.SeverityModerate,
		recommendation: "Avoid grapefruit and grapefruit juice",
	},
	"metronidazole": {
		description:    "Alcohol with this drug causes severe nausea and flushing",
		severity:       rx.SeverityCritical,
		recommendation: "Avoid all alcohol during and for 3 days after the course",
	},
	"doxycycline": {
		description:    "Dairy and antacids block absorption of this drug",
		severity:       rx.SeverityMinor,
		recommendation: "Take 2 hours apart from milk, yogurt, or antacids",
	},
	"levothyroxine": {
		description:    "Food, coffee, and calcium reduce absorption of this drug",
		severity:       rx.SeverityMinor,
		recommendation: "Take on an empty stomach, 30 minutes before breakfast",
	},
}

// ageRule flags a drug for a patient age band.
type ageRule struct {
	description    string
	severity       rx.Severity
	recommendation string
}

// ElderlyAgeThreshold is the age at or above which elderly warnings apply.
const ElderlyAgeThreshold = 65

// PediatricAgeThreshold is the age below which pediatric rules apply.
const PediatricAgeThreshold = 12

var elderlyWarnings = map[string]ageRule{
	"diphenhydramine": {
		description:    "Strong drowsiness and fall risk in older adults",
		severity:       rx.SeverityModerate,
		recommendation: "Ask about a safer alternative for sleep or allergies",
	},
	"diazepam": {
		description:    "Long-acting sedatives raise fall and confusion risk in older adults",
		severity:       rx.SeverityModerate,
		recommendation: "Discuss dose reduction or alternatives with your doctor",
	},
	"ibuprofen": {
		description:    "NSAIDs raise stomach bleeding and kidney risk in older adults",
		severity:       rx.SeverityModerate,
		recommendation: "Use the lowest dose for the shortest time",
	},
	"glibenclamide": {
		description:    "Higher risk of low blood sugar episodes in older adults",
		severity:       rx.SeverityModerate,
		recommendation: "Watch for dizziness, sweating, or confusion",
	},
}

var pediatricContraindications = map[string]ageRule{
	"aspirin": {
		description:    "Aspirin in children is linked to Reye's syndrome",
		severity:       rx.SeverityCritical,
		recommendation: "Do not give to children; ask for a safe alternative",
	},
	"doxycycline": {
		description:    "Can permanently stain developing teeth",
		severity:       rx.SeverityModerate,
		recommendation: "Usually avoided under age 8; confirm with the prescriber",
	},
	"codeine": {
		description:    "Unpredictable breathing problems in children",
		severity:       rx.SeverityCritical,
		recommendation: "Not recommended for children; ask for an alternative",
	},
}

// maxDailyMg caps total daily intake in milligrams.
var maxDailyMg = map[string]float64{
	"paracetamol":   4000,
	"acetaminophen": 4000,
	"ibuprofen":     3200,
	"metformin":     2550,
	"tramadol":      400,
	"amoxicillin":   3000,
	"atorvastatin":  80,
	"lisinopril":    80,
	"levothyroxine": 0.3, // 300 mcg
}

// pairKey builds an order-independent lowercase key for a drug pair.
func pairKey(a, b string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1]
}

// severityRank orders severities for worst-of reduction.
func severityRank(s rx.Severity) int {
	switch s {
	case rx.SeverityCritical:
		return 3
	case rx.SeverityModerate:
		return 2
	case rx.SeverityMinor:
		return 1
	default:
		return 0
	}
}
