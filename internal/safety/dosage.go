package safety

import (
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

var doseRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(mcg|mg|g)\b`)

// parseDoseMg extracts the per-unit strength in milligrams from a free-text
// dosage string such as "500mg", "0.5 g", or "75 mcg".  The first strength
// token wins; combination strengths like "500mg/125mg" report the first
// component.
func parseDoseMg(dosage string) (float64, error) {
	m := doseRe.FindStringSubmatch(dosage)
	if m == nil {
		return 0, apperrors.New(apperrors.ErrCodeDosageParse,
			"no strength found in dosage").WithDetail(dosage)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeDosageParse, "invalid strength value")
	}
	switch strings.ToLower(m[2]) {
	case "g":
		value *= 1000
	case "mcg":
		value /= 1000
	}
	return value, nil
}

// dailyUnits derives units-per-day for a candidate, preferring the parsed
// dose-timing triple and falling back to 1 when the timing is absent or
// malformed.
func dailyUnits(med *rx.MedicationCandidate) int {
	if med.DoseTiming != "" {
		if timing, err := rx.ParseDoseTiming(med.DoseTiming); err == nil {
			if u := timing.TotalDailyUnits(); u > 0 {
				return u
			}
		}
	}
	return 1
}

// checkDosage compares the candidate's computed daily intake against the
// maximum-daily-dose table.  Returns nil when the drug has no cap, when the
// dosage cannot be parsed, or when the intake is within bounds.
func checkDosage(med *rx.MedicationCandidate) *rx.DosageAlert {
	maxMg, capped := maxDailyMg[strings.ToLower(strings.TrimSpace(med.DrugName))]
	if !capped {
		return nil
	}
	unitMg, err := parseDoseMg(med.Dosage)
	if err != nil {
		return nil
	}
	dailyMg := unitMg * float64(dailyUnits(med))
	if dailyMg <= maxMg {
		return nil
	}
	return &rx.DosageAlert{
		Drug:           med.DrugName,
		ParsedDailyMg:  dailyMg,
		MaxDailyMg:     maxMg,
		Description:    "Daily total exceeds the recommended maximum",
		Severity:       rx.SeverityCritical,
		Recommendation: "Check this dose with your pharmacist before taking it",
	}
}
