package extraction

import (
	"regexp"
	"strings"

	"github.com/dosewise/rxlens/pkg/types/rx"
)

// medLineRe matches one prescription line: an optional form prefix, the drug
// name, a strength, and optional trailing tokens handled separately.
//
//	Tab. Amoxicillin 500mg 1-0-1 x 5 days
//	Cap Omeprazole 20 mg OD
var medLineRe = regexp.MustCompile(
	`(?im)^\s*(?:\d+[.)]\s*)?(?:(tab|cap|syp|inj|oint|drops?)\.?\s+)?` +
		`([A-Za-z][A-Za-z\- ]{2,40}?)\s+` +
		`(\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml))\b(.*)$`)

var timingRe = regexp.MustCompile(`\b(\d+)\s*-\s*(\d+)\s*-\s*(\d+)\b`)

var durationRe = regexp.MustCompile(`(?i)(?:x|for)\s*(\d+)\s*(days?|weeks?|months?)`)

// frequencyTimings maps prescription shorthand to a canonical timing triple.
var frequencyTimings = map[string]string{
	"od":  "1-0-0",
	"bd":  "1-0-1",
	"bid": "1-0-1",
	"tds": "1-1-1",
	"tid": "1-1-1",
	"qid": "1-1-1", // triple cannot express 4 slots; conservative mapping
	"hs":  "0-0-1",
	"sos": "",
}

// routeByForm maps a dosage-form prefix to an administration route.
var routeByForm = map[string]string{
	"tab":   "oral",
	"cap":   "oral",
	"syp":   "oral",
	"inj":   "injection",
	"oint":  "topical",
	"drop":  "topical",
	"drops": "topical",
}

// parsePrescriptionText extracts medication candidates from OCR text, one
// per matched line.  Lines without a recognisable strength are skipped; this
// tier never guesses a name, so anything it returns was visibly present.
func parsePrescriptionText(text string) []rx.MedicationCandidate {
	var meds []rx.MedicationCandidate
	for _, m := range medLineRe.FindAllStringSubmatch(text, -1) {
		form := strings.ToLower(strings.TrimSuffix(m[1], "."))
		name := strings.TrimSpace(m[2])
		if name == "" || looksLikeNoise(name) {
			continue
		}

		med := rx.MedicationCandidate{
			DrugName:     name,
			Dosage:       normalizeSpace(m[3]),
			DosingSource: rx.DosingFromPrescription,
			Route:        routeByForm[form],
		}

		rest := m[4]
		if t := timingRe.FindStringSubmatch(rest); t != nil {
			med.DoseTiming = t[1] + "-" + t[2] + "-" + t[3]
		} else if timing, freq := matchFrequency(rest); timing != "" {
			med.DoseTiming = timing
			med.Frequency = freq
		}
		if d := durationRe.FindStringSubmatch(rest); d != nil {
			med.Duration = d[1] + " " + strings.ToLower(d[2])
		}

		meds = append(meds, med)
	}
	return meds
}

// matchFrequency scans trailing tokens for shorthand like OD or TDS.
func matchFrequency(rest string) (timing, freq string) {
	for _, token := range strings.Fields(strings.ToLower(rest)) {
		token = strings.Trim(token, ".,;")
		if t, ok := frequencyTimings[token]; ok {
			return t, strings.ToUpper(token)
		}
	}
	return "", ""
}

// looksLikeNoise rejects matches that are prescription boilerplate rather
// than drug names.
func looksLikeNoise(name string) bool {
	switch strings.ToLower(name) {
	case "dose", "take", "apply", "advice", "diagnosis", "patient", "name", "age", "date":
		return true
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
