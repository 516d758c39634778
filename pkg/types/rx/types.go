// Package rx defines the shared data model of the prescription extraction
// and safety pipeline.  Types here cross layer boundaries (extraction →
// validation → safety → nudge → interfaces) and therefore live in pkg/ rather
// than under any single internal module.
package rx

import (
	"fmt"
	"strings"
)

// UnreadableName is the reserved sentinel an extraction backend must emit for
// a medication line whose name it cannot read.  Backends are instructed to
// use the sentinel instead of guessing; candidates carrying it are routed to
// the failed-extraction list and never persisted.
const UnreadableName = "UNREADABLE"

// ─────────────────────────────────────────────────────────────────────────────
// Medication candidate
// ─────────────────────────────────────────────────────────────────────────────

// DosingSource records where a candidate's dose timing came from.
type DosingSource string

const (
	// DosingFromPrescription means the timing was visibly stated on the
	// prescription itself.
	DosingFromPrescription DosingSource = "prescription"

	// DosingAIGenerated means the backend supplied a clinically standard
	// default because the prescription did not state a frequency.  Downstream
	// consumers flag these as non-prescription-derived.
	DosingAIGenerated DosingSource = "ai_generated"
)

// MedicationCandidate is one medication line extracted from a prescription
// image.  It is created by the extraction chain, may be mutated by the drug
// name validator (name correction) and by user edits, and is immutable once
// persisted to a medication record.
type MedicationCandidate struct {
	DrugName     string       `json:"drug_name"`
	Dosage       string       `json:"dosage"`
	Frequency    string       `json:"frequency"`
	DoseTiming   string       `json:"dose_timing"` // morning-noon-evening triple, e.g. "1-0-1"
	DosingSource DosingSource `json:"dosing_source"`
	Duration     string       `json:"duration"`
	Route        string       `json:"route"`
}

// HasReadableName reports whether the candidate carries a usable drug name:
// non-empty and not the unreadable sentinel.
func (m *MedicationCandidate) HasReadableName() bool {
	name := strings.TrimSpace(m.DrugName)
	return name != "" && !strings.EqualFold(name, UnreadableName)
}

// DoseTiming is the parsed morning-noon-evening unit triple.
type DoseTiming struct {
	Morning int `json:"morning"`
	Noon    int `json:"noon"`
	Evening int `json:"evening"`
}

// String renders the triple in the canonical "M-N-E" form.
func (d DoseTiming) String() string {
	return fmt.Sprintf("%d-%d-%d", d.Morning, d.Noon, d.Evening)
}

// TotalDailyUnits returns the number of units taken per day.
func (d DoseTiming) TotalDailyUnits() int {
	return d.Morning + d.Noon + d.Evening
}

// ParseDoseTiming parses an "M-N-E" triple such as "1-0-1".  Whitespace
// around the separators is tolerated.
func ParseDoseTiming(s string) (DoseTiming, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return DoseTiming{}, fmt.Errorf("rx: dose timing %q is not a morning-noon-evening triple", s)
	}
	var d DoseTiming
	slots := []*int{&d.Morning, &d.Noon, &d.Evening}
	for i, p := range parts {
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d", &n); err != nil || n < 0 {
			return DoseTiming{}, fmt.Errorf("rx: dose timing %q has invalid slot %q", s, p)
		}
		*slots[i] = n
	}
	return d, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Name validation
// ─────────────────────────────────────────────────────────────────────────────

// Correction policy thresholds, shared by the drug name validator (which
// applies them) and DisplayName (which reflects the display decision).
const (
	// KeepOriginalThreshold gates the display decision for accepted
	// corrections: similarity strictly above it is treated as minor OCR
	// noise, so the original spelling stays on screen while the canonical id
	// points at the corrected drug.
	KeepOriginalThreshold = 0.85

	// AcceptThreshold is the floor for accepting a correction at all; the
	// similarity must strictly exceed it.
	AcceptThreshold = 0.6
)

// NameValidationResult is the outcome of validating one free-text drug name
// against the terminology service.  Ephemeral: produced per candidate per
// pipeline run and never persisted.
type NameValidationResult struct {
	OriginalName  string   `json:"original_name"`
	CorrectedName string   `json:"corrected_name,omitempty"`
	Confidence    float64  `json:"confidence"`
	CanonicalID   string   `json:"canonical_id,omitempty"`
	Suggestions   []string `json:"suggestions,omitempty"`
	WasCorrected  bool     `json:"was_corrected"`
	Valid         bool     `json:"valid"`
}

// DisplayName returns the name to show the patient under the confidence-gated
// correction policy: corrections scored strictly above KeepOriginalThreshold
// keep the original spelling (the canonical id still points at the corrected
// drug), lower-confidence corrections replace the name outright.
func (r *NameValidationResult) DisplayName() string {
	if r.WasCorrected && r.CorrectedName != "" && r.Confidence <= KeepOriginalThreshold {
		return r.CorrectedName
	}
	return r.OriginalName
}

// ─────────────────────────────────────────────────────────────────────────────
// Interactions and safety
// ─────────────────────────────────────────────────────────────────────────────

// Tier is the severity bucket of an interaction finding.
type Tier int

const (
	TierCritical Tier = 1 // life-threatening
	TierModerate Tier = 2
	TierMinor    Tier = 3 // minor / dietary
)

// Severity is the free-form severity label attached to individual findings
// and to the enhanced safety report's aggregate.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
	SeverityNone     Severity = "none"
)

// InteractionFinding is one interaction, dietary, age, or dosage concern
// discovered for a candidate.
type InteractionFinding struct {
	Tier           Tier     `json:"tier"`
	InvolvedDrug   string   `json:"involved_drug"`
	Description    string   `json:"description"`
	Severity       Severity `json:"severity"`
	Recommendation string   `json:"recommendation"`
}

// SafetyFlag is the aggregate RGB-style verdict for one candidate.
type SafetyFlag string

const (
	FlagRed    SafetyFlag = "RED"
	FlagYellow SafetyFlag = "YELLOW"
	FlagGreen  SafetyFlag = "GREEN"
)

// SafetyVerdict is derived deterministically from a candidate's findings:
// any tier-1 finding ⇒ RED, else any tier-2 ⇒ YELLOW, else GREEN.
type SafetyVerdict struct {
	Flag      SafetyFlag `json:"flag"`
	Reasoning string     `json:"reasoning"`
}

// AgeWarning is an age-based rule hit (elderly drug-class warning or
// pediatric contraindication), reported separately from interactions because
// it requires different remediation text.
type AgeWarning struct {
	Category       string   `json:"category"` // "elderly" | "pediatric"
	Drug           string   `json:"drug"`
	Description    string   `json:"description"`
	Severity       Severity `json:"severity"`
	Recommendation string   `json:"recommendation"`
}

// DosageAlert is a maximum-daily-dose rule hit parsed from the dosage string.
type DosageAlert struct {
	Drug           string   `json:"drug"`
	ParsedDailyMg  float64  `json:"parsed_daily_mg"`
	MaxDailyMg     float64  `json:"max_daily_mg"`
	Description    string   `json:"description"`
	Severity       Severity `json:"severity"`
	Recommendation string   `json:"recommendation"`
}

// EnhancedSafetyReport groups the independent food / age / dosage checks for
// one candidate.  OverallSeverity is the worst severity across all categories
// and feeds patient-facing warning text; it does not escalate the
// interaction-derived SafetyFlag.
type EnhancedSafetyReport struct {
	FoodInteractions []InteractionFinding `json:"food_interactions"`
	AgeWarnings      []AgeWarning         `json:"age_warnings"`
	DosageAlerts     []DosageAlert        `json:"dosage_alerts"`
	OverallSeverity  Severity             `json:"overall_severity"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Patient context and nudge card
// ─────────────────────────────────────────────────────────────────────────────

// PatientContext carries the patient-supplied context used for safety checks
// and nudge personalisation.  None of it is ever invented by the pipeline.
// ActiveMedications lists drugs the patient already takes; they join the
// interaction check but are never part of the scan result.
type PatientContext struct {
	Name              string   `json:"name"`
	Age               int      `json:"age"`
	Language          string   `json:"language"`
	Lifestyle         string   `json:"lifestyle"`
	Concerns          []string `json:"concerns,omitempty"`
	ActiveMedications []string `json:"active_medications,omitempty"`
}

// NudgeCard is the patient-facing explanation produced once per confirmed
// candidate.  Every card shown to a patient has passed the readability gate
// or been simplified / replaced by the fallback template.
type NudgeCard struct {
	Headline         string `json:"headline"`
	PlainInstruction string `json:"plain_instruction"`
	TheWhy           string `json:"the_why"`
	HabitHook        string `json:"habit_hook"`
	WarningLabel     string `json:"warning_label"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline results
// ─────────────────────────────────────────────────────────────────────────────

// FailedExtraction records a candidate that could not be validated, with
// enough structure for the caller to present an actionable recovery path.
type FailedExtraction struct {
	Reason        string               `json:"reason"`
	OriginalName  string               `json:"original_name,omitempty"`
	Suggestions   []string             `json:"suggestions,omitempty"`
	ExtractedData *MedicationCandidate `json:"extracted_data,omitempty"`
}

// Failed-extraction reason codes surfaced to the UI.
const (
	FailReasonUnclearName       = "unclear_name"
	FailReasonUnrecognizedName  = "unrecognized_name"
	FailReasonLookupUnavailable = "lookup_unavailable"
)

// AnalyzedMedication is one validated candidate enriched with its safety
// assessment, returned by the extraction stage of the two-call protocol.
type AnalyzedMedication struct {
	ExtractedData   MedicationCandidate  `json:"extracted_data"`
	Validation      NameValidationResult `json:"validation"`
	SafetyFlag      SafetyFlag           `json:"safety_flag"`
	SafetyReasoning string               `json:"safety_reasoning"`
	Interactions    []InteractionFinding `json:"interactions"`
	EnhancedSafety  EnhancedSafetyReport `json:"enhanced_safety"`
}

// AnalysisResult is the full output of the extraction stage for one image.
type AnalysisResult struct {
	ImageHash         string               `json:"image_hash"`
	Medications       []AnalyzedMedication `json:"medications"`
	FailedExtractions []FailedExtraction   `json:"failed_extractions,omitempty"`
	FromCache         bool                 `json:"from_cache"`
}

// ConfirmedMedication is one user-confirmed candidate enriched with its
// patient-facing card and re-computed interactions, returned by the
// confirmation stage.
type ConfirmedMedication struct {
	ExtractedData   MedicationCandidate  `json:"extracted_data"`
	SafetyFlag      SafetyFlag           `json:"safety_flag"`
	SafetyReasoning string               `json:"safety_reasoning"`
	Interactions    []InteractionFinding `json:"interactions"`
	EnhancedSafety  EnhancedSafetyReport `json:"enhanced_safety"`
	PatientCard     NudgeCard            `json:"patient_facing_card"`
}
