// Package validation implements drug-name validation against the terminology
// service, including confidence-gated spelling correction for OCR noise.
package validation

import (
	"context"
	"strings"

	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	"github.com/dosewise/rxlens/internal/matching"
	"github.com/dosewise/rxlens/internal/terminology"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// Correction policy thresholds.
const (
	// KeepOriginalThreshold gates the display decision for accepted
	// corrections: strictly above it the misspelling is treated as OCR noise
	// and the original spelling stays on screen, because a patient comparing
	// the app against the paper prescription must see the same string.  The
	// corrected name still drives every downstream safety check.
	KeepOriginalThreshold = rx.KeepOriginalThreshold

	// AcceptThreshold is the floor for accepting a correction at all; the
	// similarity must strictly exceed it.  In (AcceptThreshold,
	// KeepOriginalThreshold] the candidate's name replaces the original.  At
	// or below the floor the name is rejected and the top candidates are
	// returned as suggestions for the user to pick from.
	AcceptThreshold = rx.AcceptThreshold
)

// MaxSuggestions bounds the suggestion list attached to rejected names.
const MaxSuggestions = 3

// Validator resolves free-text drug names to canonical terminology concepts.
type Validator struct {
	terms  terminology.Client
	logger logging.Logger
}

// NewValidator constructs a Validator.  The terminology client is required.
func NewValidator(terms terminology.Client, logger logging.Logger) (*Validator, error) {
	if terms == nil {
		return nil, apperrors.InvalidParam("validation: terminology client is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Validator{terms: terms, logger: logger.Named("validation")}, nil
}

// Validate checks one drug name.  The returned result is always non-nil for
// a nil error.  A non-nil error means the terminology service could not be
// reached (ErrCodeTerminologyUnavailable); the caller must not treat that as
// "invalid name".
func (v *Validator) Validate(ctx context.Context, name string) (*rx.NameValidationResult, error) {
	name = strings.TrimSpace(name)
	result := &rx.NameValidationResult{OriginalName: name}
	if name == "" {
		return result, nil
	}

	// Exact or synonym match first.
	concept, found, err := v.terms.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if found {
		result.Valid = true
		result.Confidence = 1.0
		result.CanonicalID = concept.CanonicalID
		return result, nil
	}

	// Unknown name: fetch spelling candidates and score them ourselves.
	// The service's own score reflects its index internals; edit-distance
	// similarity against the extracted string is what the correction policy
	// is defined over.
	candidates, err := v.terms.ApproximateSearch(ctx, name, MaxSuggestions)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		v.logger.Debug("no candidates for name", logging.String("name", name))
		return result, nil
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	bestIdx, confidence := matching.BestMatch(name, names)
	best := candidates[bestIdx]
	result.Confidence = confidence

	if confidence > AcceptThreshold {
		result.Valid = true
		result.CorrectedName = best.Name
		result.CanonicalID = best.CanonicalID
		result.WasCorrected = true
		v.logger.Info("corrected drug name",
			logging.String("original", name),
			logging.String("corrected", best.Name),
			logging.Float64("confidence", confidence),
			logging.Bool("display_kept", confidence > KeepOriginalThreshold))
	} else {
		result.Valid = false
		result.Suggestions = names
	}
	return result, nil
}

// ValidateCandidate validates the drug name of a medication candidate and
// rewrites it in place to the result's display name: mid-confidence
// corrections replace the spelling, high-confidence ones leave the
// prescription's own string on screen.
func (v *Validator) ValidateCandidate(ctx context.Context, med *rx.MedicationCandidate) (*rx.NameValidationResult, error) {
	result, err := v.Validate(ctx, med.DrugName)
	if err != nil {
		return nil, err
	}
	if result.Valid && result.WasCorrected {
		med.DrugName = result.DisplayName()
	}
	return result, nil
}
