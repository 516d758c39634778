package extraction

import (
	"context"
	"regexp"
	"strings"

	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// DictionaryStrategy is the last-resort tier: OCR the photo and scan the raw
// text for known drug names without requiring a structured prescription
// line.  It recovers medications from layouts that defeat the line patterns,
// at the cost of dosage detail.
type DictionaryStrategy struct {
	ocr    *OCRStrategy
	logger logging.Logger
}

// NewDictionaryStrategy constructs the dictionary tier on top of an OCR
// strategy, whose engine it shares.
func NewDictionaryStrategy(ocr *OCRStrategy, logger logging.Logger) (*DictionaryStrategy, error) {
	if ocr == nil {
		return nil, apperrors.InvalidParam("extraction: ocr strategy is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &DictionaryStrategy{ocr: ocr, logger: logger.Named("dictionary")}, nil
}

func (s *DictionaryStrategy) Name() string { return "dictionary" }

// Extract OCRs the image and scans each line for dictionary hits.
func (s *DictionaryStrategy) Extract(ctx context.Context, image []byte) ([]rx.MedicationCandidate, error) {
	text, err := s.ocr.readText(ctx, image)
	if err != nil {
		return nil, err
	}
	return scanDictionary(text), nil
}

var strengthRe = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml)\b`)

// scanDictionary walks the text line by line and emits one candidate per
// dictionary hit, enriched with any strength or timing found on the same
// line.  Each drug is reported at most once.
func scanDictionary(text string) []rx.MedicationCandidate {
	var meds []rx.MedicationCandidate
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		for _, word := range strings.Fields(line) {
			key := strings.ToLower(strings.Trim(word, ".,;:()"))
			display, ok := commonDrugs[key]
			if !ok || seen[key] {
				continue
			}
			seen[key] = true

			med := rx.MedicationCandidate{
				DrugName:     display,
				DosingSource: rx.DosingFromPrescription,
			}
			if strength := strengthRe.FindString(line); strength != "" {
				med.Dosage = normalizeSpace(strength)
			}
			if t := timingRe.FindStringSubmatch(line); t != nil {
				med.DoseTiming = t[1] + "-" + t[2] + "-" + t[3]
			} else if timing, freq := matchFrequency(line); timing != "" {
				med.DoseTiming = timing
				med.Frequency = freq
			}
			meds = append(meds, med)
		}
	}
	return meds
}

// commonDrugs maps a lowercase token to its display spelling.  The list
// covers the drugs the safety tables know about plus frequently prescribed
// generics; anything it emits still goes through terminology validation.
var commonDrugs = map[string]string{
	"acetaminophen":       "Acetaminophen",
	"alprazolam":          "Alprazolam",
	"amlodipine":          "Amlodipine",
	"amoxicillin":         "Amoxicillin",
	"aspirin":             "Aspirin",
	"atenolol":            "Atenolol",
	"atorvastatin":        "Atorvastatin",
	"azithromycin":        "Azithromycin",
	"cephalexin":          "Cephalexin",
	"cetirizine":          "Cetirizine",
	"ciprofloxacin":       "Ciprofloxacin",
	"clopidogrel":         "Clopidogrel",
	"diazepam":            "Diazepam",
	"diclofenac":          "Diclofenac",
	"digoxin":             "Digoxin",
	"domperidone":         "Domperidone",
	"doxycycline":         "Doxycycline",
	"escitalopram":        "Escitalopram",
	"fluoxetine":          "Fluoxetine",
	"furosemide":          "Furosemide",
	"gabapentin":          "Gabapentin",
	"glimepiride":         "Glimepiride",
	"hydrochlorothiazide": "Hydrochlorothiazide",
	"ibuprofen":           "Ibuprofen",
	"insulin":             "Insulin",
	"levothyroxine":       "Levothyroxine",
	"lisinopril":          "Lisinopril",
	"loratadine":          "Loratadine",
	"losartan":            "Losartan",
	"metformin":           "Metformin",
	"metoprolol":          "Metoprolol",
	"montelukast":         "Montelukast",
	"naproxen":            "Naproxen",
	"omeprazole":          "Omeprazole",
	"ondansetron":         "Ondansetron",
	"pantoprazole":        "Pantoprazole",
	"paracetamol":         "Paracetamol",
	"phenytoin":           "Phenytoin",
	"prednisolone":        "Prednisolone",
	"prednisone":          "Prednisone",
	"salbutamol":          "Salbutamol",
	"sertraline":          "Sertraline",
	"simvastatin":         "Simvastatin",
	"sitagliptin":         "Sitagliptin",
	"spironolactone":      "Spironolactone",
	"tramadol":            "Tramadol",
	"warfarin":            "Warfarin",
}
