package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// Completer is the text-only model dependency of the text-model tier.  The
// nudge generation backend satisfies it, so one configured completions
// endpoint serves both concerns.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// textModelPrompt instructs the model to structure raw OCR text into one
// candidate, with the same strict JSON contract the vision tier uses.
const textModelPrompt = `This text was read from a prescription photo by OCR. It may contain recognition noise.
Extract the medication as JSON:
{"drug_name":"","dosage":"","frequency":"","dose_timing":"","dosing_source":"","duration":"","route":""}
Rules:
- dose_timing is a morning-noon-evening triple like "1-0-1" when stated.
- dosing_source is "prescription" when the frequency is written in the text.
  If you supply a clinically standard default instead, set it to "ai_generated".
- If you cannot read a drug name, set drug_name to "UNREADABLE". Never guess.
- Output only the JSON object, no prose.

Text:
%s`

// TextModelStrategy structures OCR text with a text-only model.  It sits
// between the vision tier and the deterministic pattern tiers: cheaper than
// vision, smarter about noisy handwriting than the line patterns.
type TextModelStrategy struct {
	ocr    *OCRStrategy
	model  Completer
	logger logging.Logger
}

// NewTextModelStrategy constructs the text-model tier on top of an OCR
// strategy, whose engine it shares.
func NewTextModelStrategy(ocr *OCRStrategy, model Completer, logger logging.Logger) (*TextModelStrategy, error) {
	if ocr == nil {
		return nil, apperrors.InvalidParam("extraction: ocr strategy is required")
	}
	if model == nil {
		return nil, apperrors.InvalidParam("extraction: text model is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TextModelStrategy{ocr: ocr, model: model, logger: logger.Named("textmodel")}, nil
}

func (s *TextModelStrategy) Name() string { return "text_model" }

// Extract OCRs the image and asks the text model to structure the recovered
// text into a candidate.
func (s *TextModelStrategy) Extract(ctx context.Context, image []byte) ([]rx.MedicationCandidate, error) {
	text, err := s.ocr.readText(ctx, image)
	if err != nil {
		return nil, err
	}

	content, err := s.model.Complete(ctx, fmt.Sprintf(textModelPrompt, text))
	if err != nil {
		s.logger.Warn("text model request failed", logging.Err(err))
		return nil, err
	}

	med, err := parseCandidateJSON(content)
	if err != nil {
		return nil, err
	}
	return []rx.MedicationCandidate{med}, nil
}

// parseCandidateJSON parses the model's content into one candidate,
// fail-closed like the vision envelope parse.  An empty drug name means the
// model did not follow the contract; the unreadable sentinel is passed
// through so the pipeline can route the candidate to the failed list.
func parseCandidateJSON(content string) (rx.MedicationCandidate, error) {
	text := strings.TrimSpace(content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	var med rx.MedicationCandidate
	if err := dec.Decode(&med); err != nil {
		return rx.MedicationCandidate{}, apperrors.Wrap(err, apperrors.ErrCodeExtractionParse,
			"text model output is not the expected JSON shape")
	}
	if strings.TrimSpace(med.DrugName) == "" {
		return rx.MedicationCandidate{}, apperrors.New(apperrors.ErrCodeExtractionParse,
			"text model output has no drug name")
	}
	if med.DosingSource == "" {
		med.DosingSource = rx.DosingFromPrescription
	}
	return med, nil
}
