// Package nudge generates the patient-facing explanation card for a
// confirmed medication.  Generated text only reaches a patient after passing
// the readability gate; text that cannot be made readable is replaced by a
// deterministic template card.
package nudge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	"github.com/dosewise/rxlens/internal/readability"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// maxHeadlineLength guards against the model echoing the instructions back
// as a headline.
const maxHeadlineLength = 80

// Generator produces nudge cards.
type Generator struct {
	backend    Backend
	gate       *readability.Validator
	maxRetries int
	logger     logging.Logger
	onFallback func()
}

// NewGenerator constructs a Generator.  The backend is required.
func NewGenerator(backend Backend, gate *readability.Validator, maxRetries int, logger logging.Logger) (*Generator, error) {
	if backend == nil {
		return nil, apperrors.InvalidParam("nudge: generation backend is required")
	}
	if gate == nil {
		gate = readability.NewValidator()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Generator{
		backend:    backend,
		gate:       gate,
		maxRetries: maxRetries,
		logger:     logger.Named("nudge"),
	}, nil
}

const cardPromptTemplate = `Write a short medication card for a patient in plain 8th-grade language.
Patient: %s, age %d. Lifestyle: %s.
Medication: %s %s, timing %s.
Safety note to include: %s.
Reply with only this JSON object, no prose:
{"headline":"","plain_instruction":"","the_why":"","habit_hook":"","warning_label":""}`

// GenerateCard produces the card for one confirmed medication.  The returned
// card is always usable.  Only backend transport failures are retried;
// malformed output, prompt echoes, and text that still fails the readability
// gate after one simplification pass degrade straight to the template card
// rather than paying for another generation.
func (g *Generator) GenerateCard(ctx context.Context, med rx.MedicationCandidate, verdict rx.SafetyVerdict, patient rx.PatientContext) rx.NudgeCard {
	prompt := fmt.Sprintf(cardPromptTemplate,
		patient.Name, patient.Age, patient.Lifestyle,
		med.DrugName, med.Dosage, med.DoseTiming,
		verdict.Reasoning)

	content, err := g.completeWithRetry(ctx, prompt)
	if err != nil {
		return g.fallback(med, verdict, err)
	}

	card, err := parseCardJSON(content)
	if err != nil {
		return g.fallback(med, verdict, err)
	}

	if echoed(card) {
		return g.fallback(med, verdict, apperrors.New(apperrors.ErrCodeGenerationParse,
			"generated card echoes the prompt"))
	}

	if gated, ok := g.applyGate(card); ok {
		return gated
	}
	return g.fallback(med, verdict, apperrors.New(apperrors.ErrCodeGenerationParse,
		"generated card failed the readability gate"))
}

// completeWithRetry calls the backend, retrying transport failures up to
// maxRetries times.
func (g *Generator) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		content, err := g.backend.Complete(ctx, prompt)
		if err == nil {
			return content, nil
		}
		g.logger.Warn("generation request failed",
			logging.Int("attempt", attempt), logging.Err(err))
		lastErr = err
	}
	return "", lastErr
}

func (g *Generator) fallback(med rx.MedicationCandidate, verdict rx.SafetyVerdict, cause error) rx.NudgeCard {
	g.logger.Warn("falling back to template card",
		logging.String("drug", med.DrugName), logging.Err(cause))
	if g.onFallback != nil {
		g.onFallback()
	}
	return FallbackCard(med, verdict)
}

// SetFallbackHook registers fn to be called every time a template card is
// served instead of generated text.  Not safe to call after the Generator is
// in use.
func (g *Generator) SetFallbackHook(fn func()) { g.onFallback = fn }

// parseCardJSON parses the model output fail-closed: the card must be
// exactly the requested JSON object.  A leading code fence is the only
// tolerated decoration.
func parseCardJSON(content string) (rx.NudgeCard, error) {
	text := strings.TrimSpace(content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	var card rx.NudgeCard
	if err := dec.Decode(&card); err != nil {
		return rx.NudgeCard{}, apperrors.Wrap(err, apperrors.ErrCodeGenerationParse,
			"card output is not the expected JSON shape")
	}
	if card.Headline == "" || card.PlainInstruction == "" {
		return rx.NudgeCard{}, apperrors.New(apperrors.ErrCodeGenerationParse,
			"card output is missing required fields")
	}
	return card, nil
}

// echoed detects a model that parroted the instructions instead of writing a
// card: template braces, JSON vocabulary, or an over-long headline.
func echoed(card rx.NudgeCard) bool {
	headline := card.Headline
	if len(headline) > maxHeadlineLength {
		return true
	}
	for _, marker := range []string{"{", "}", "json", "JSON", "headline"} {
		if strings.Contains(headline, marker) {
			return true
		}
	}
	return false
}

// applyGate runs the readability gate over the card, simplifying once when
// the first pass fails.  Returns ok=false when even the simplified card
// fails.
func (g *Generator) applyGate(card rx.NudgeCard) (rx.NudgeCard, bool) {
	if g.cardPasses(card) {
		return card, true
	}

	simplified := rx.NudgeCard{
		Headline:         g.gate.Simplify(card.Headline),
		PlainInstruction: g.gate.Simplify(card.PlainInstruction),
		TheWhy:           g.gate.Simplify(card.TheWhy),
		HabitHook:        g.gate.Simplify(card.HabitHook),
		WarningLabel:     g.gate.Simplify(card.WarningLabel),
	}
	if g.cardPasses(simplified) {
		return simplified, true
	}
	return rx.NudgeCard{}, false
}

func (g *Generator) cardPasses(card rx.NudgeCard) bool {
	combined := strings.Join([]string{
		card.Headline, card.PlainInstruction, card.TheWhy,
		card.HabitHook, card.WarningLabel,
	}, " ")
	return g.gate.Evaluate(combined).Passed
}

// FallbackCard builds the minimal template card from extracted fields alone:
// an instruction and a warning, no motivational text the prescription never
// contained.  Its wording is fixed and pre-vetted against the readability
// gate.
func FallbackCard(med rx.MedicationCandidate, verdict rx.SafetyVerdict) rx.NudgeCard {
	instruction := "Take it just as your doctor told you."
	if timing, err := rx.ParseDoseTiming(med.DoseTiming); err == nil && timing.TotalDailyUnits() > 0 {
		var parts []string
		if timing.Morning > 0 {
			parts = append(parts, fmt.Sprintf("%d in the morning", timing.Morning))
		}
		if timing.Noon > 0 {
			parts = append(parts, fmt.Sprintf("%d at noon", timing.Noon))
		}
		if timing.Evening > 0 {
			parts = append(parts, fmt.Sprintf("%d in the evening", timing.Evening))
		}
		instruction = "Take " + strings.Join(parts, ", ") + " each day."
	}

	warning := "Tell your doctor about any other medicines you take."
	switch verdict.Flag {
	case rx.FlagRed:
		warning = "Talk to your doctor before you start this medicine."
	case rx.FlagYellow:
		warning = "Ask your doctor or pharmacist about mixing your medicines."
	}

	return rx.NudgeCard{
		Headline:         "Your medicine: " + med.DrugName,
		PlainInstruction: instruction,
		WarningLabel:     warning,
	}
}
