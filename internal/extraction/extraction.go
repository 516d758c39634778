// Package extraction implements the tiered extraction chain that turns a
// prescription photo into medication candidates.  Tiers are ordered by
// fidelity: a vision model first, then OCR text structured by a text-only
// model, then line pattern matching over the OCR text, and last a dictionary
// scan.  A tier that fails or finds nothing hands the image to the next one;
// only when every tier is exhausted does the scan fail.
package extraction

import (
	"context"

	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// Strategy is one extraction tier.  Extract returns the candidates found in
// the image; an error means this tier cannot serve the image and the chain
// should try the next one.  An ErrCodeUnreadableInput error is terminal: it
// asserts the image itself is unusable, so later tiers are skipped.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, image []byte) ([]rx.MedicationCandidate, error)
}

// Result carries the chain outcome: the extracted candidates and which tier
// produced them.
type Result struct {
	Candidates []rx.MedicationCandidate
	Strategy   string
}

// Chain runs strategies in order until one yields candidates.
type Chain struct {
	strategies []Strategy
	logger     logging.Logger
}

// NewChain constructs a Chain over the given strategies, tried in order.
func NewChain(logger logging.Logger, strategies ...Strategy) (*Chain, error) {
	if len(strategies) == 0 {
		return nil, apperrors.InvalidParam("extraction: at least one strategy is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Chain{strategies: strategies, logger: logger.Named("extraction")}, nil
}

// Extract runs the chain.  Outcomes:
//
//   - a tier succeeds with candidates: its result is returned, even when some
//     candidates carry the unreadable-name sentinel (the pipeline routes
//     those to the failed list);
//   - a tier reports ErrCodeUnreadableInput: the scan fails immediately with
//     that error;
//   - a tier succeeds but finds nothing: the image goes to the next tier;
//     ErrCodeNoMedicationsFound only once every tier has come up empty;
//   - every tier fails outright: ErrCodeBackendUnavailable wrapping the last
//     failure.
func (c *Chain) Extract(ctx context.Context, image []byte) (*Result, error) {
	if len(image) == 0 {
		return nil, apperrors.UnreadableInput("image is empty")
	}

	var lastErr error
	sawEmpty := false
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeBackendUnavailable, "extraction cancelled")
		}

		candidates, err := s.Extract(ctx, image)
		if err != nil {
			if apperrors.IsUnreadableInput(err) {
				return nil, err
			}
			c.logger.Warn("extraction tier failed, trying next",
				logging.String("strategy", s.Name()), logging.Err(err))
			lastErr = err
			continue
		}
		if len(candidates) == 0 {
			c.logger.Warn("extraction tier found nothing, trying next",
				logging.String("strategy", s.Name()))
			sawEmpty = true
			continue
		}
		c.logger.Info("extraction succeeded",
			logging.String("strategy", s.Name()),
			logging.Int("candidates", len(candidates)))
		return &Result{Candidates: candidates, Strategy: s.Name()}, nil
	}

	if sawEmpty {
		return nil, apperrors.New(apperrors.ErrCodeNoMedicationsFound,
			"no medications found in image")
	}
	return nil, apperrors.Wrap(lastErr, apperrors.ErrCodeBackendUnavailable,
		"all extraction tiers failed")
}
