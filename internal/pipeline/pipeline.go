// Package pipeline orchestrates a scan end to end: content hashing, result
// cache, the tiered extraction chain, drug-name validation, safety
// aggregation, and the confirmation stage that produces patient cards and
// medication records.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dosewise/rxlens/internal/extraction"
	"github.com/dosewise/rxlens/internal/infrastructure/database/postgres"
	"github.com/dosewise/rxlens/internal/infrastructure/events"
	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/metrics"
	"github.com/dosewise/rxlens/internal/safety"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// ─────────────────────────────────────────────────────────────────────────────
// Dependency contracts
// ─────────────────────────────────────────────────────────────────────────────

// Extractor runs the tiered extraction chain over an image.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (*extraction.Result, error)
}

// NameValidator resolves a candidate's drug name against terminology,
// rewriting the candidate when the correction policy replaces the name.
type NameValidator interface {
	ValidateCandidate(ctx context.Context, med *rx.MedicationCandidate) (*rx.NameValidationResult, error)
}

// SafetyAssessor evaluates a medication list against itself and the patient
// context.
type SafetyAssessor interface {
	Assess(ctx context.Context, meds []rx.MedicationCandidate, patient rx.PatientContext) []safety.Assessment
}

// CardGenerator produces the patient-facing card for one confirmed
// medication.
type CardGenerator interface {
	GenerateCard(ctx context.Context, med rx.MedicationCandidate, verdict rx.SafetyVerdict, patient rx.PatientContext) rx.NudgeCard
}

// ResultCache is the content-addressed cache of analysis results.
type ResultCache interface {
	Get(ctx context.Context, key string) (*rx.AnalysisResult, bool)
	Set(ctx context.Context, key string, result *rx.AnalysisResult)
	Invalidate(ctx context.Context, key string) error
}

// PhotoArchive persists the raw photo bytes for later review.
type PhotoArchive interface {
	Save(ctx context.Context, hash string, image []byte) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline
// ─────────────────────────────────────────────────────────────────────────────

// Deps carries the pipeline's collaborators.  Extractor, Validator, Safety,
// Cards, and Cache are required; the rest are optional.
type Deps struct {
	Extractor Extractor
	Validator NameValidator
	Safety    SafetyAssessor
	Cards     CardGenerator
	Cache     ResultCache

	// Optional collaborators; a nil field disables the corresponding side
	// effect.
	Photos  PhotoArchive
	Events  events.Producer
	Records postgres.MedicationRepository
	Audits  postgres.AuditRepository
	Metrics *metrics.Collector
	Logger  logging.Logger
}

// Pipeline implements the two-call protocol: Analyze returns extracted and
// safety-checked candidates for the user to review; Confirm turns the user's
// edited list into cards and persisted records.
type Pipeline struct {
	deps   Deps
	logger logging.Logger
	group  singleflight.Group
}

// New constructs the Pipeline and validates required dependencies.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Extractor == nil:
		return nil, apperrors.InvalidParam("pipeline: extractor is required")
	case deps.Validator == nil:
		return nil, apperrors.InvalidParam("pipeline: validator is required")
	case deps.Safety == nil:
		return nil, apperrors.InvalidParam("pipeline: safety assessor is required")
	case deps.Cards == nil:
		return nil, apperrors.InvalidParam("pipeline: card generator is required")
	case deps.Cache == nil:
		return nil, apperrors.InvalidParam("pipeline: result cache is required")
	}
	if deps.Events == nil {
		deps.Events = events.NopProducer{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	return &Pipeline{deps: deps, logger: deps.Logger.Named("pipeline")}, nil
}

// HashImage returns the content address of an uploaded photo: the hex SHA-256
// of its bytes.
func HashImage(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// Analyze runs the extraction stage for one photo.  Identical re-uploads are
// answered from the cache unless forceRefresh is set; concurrent uploads of
// the same photo share a single extraction.
func (p *Pipeline) Analyze(ctx context.Context, image []byte, patient rx.PatientContext, forceRefresh bool) (*rx.AnalysisResult, error) {
	if len(image) == 0 {
		return nil, apperrors.UnreadableInput("image is empty")
	}
	hash := HashImage(image)

	if !forceRefresh {
		if cached, ok := p.deps.Cache.Get(ctx, hash); ok {
			p.logger.Info("cache hit", logging.String("hash", hash))
			p.observeScan(metrics.ScanCacheHit, 0)
			out := *cached
			out.FromCache = true
			return &out, nil
		}
	}

	v, err, _ := p.group.Do(hash, func() (interface{}, error) {
		return p.analyzeUncached(ctx, hash, image, patient)
	})
	if err != nil {
		p.observeScan(metrics.ScanFailed, 0)
		p.audit(ctx, postgres.ScanAudit{
			ImageHash: hash,
			ErrorCode: string(apperrors.GetCode(err)),
		})
		if pubErr := p.deps.Events.ExtractionFailed(ctx, events.ExtractionFailed{
			ImageHash:  hash,
			ErrorCode:  string(apperrors.GetCode(err)),
			OccurredAt: time.Now().UTC(),
		}); pubErr != nil {
			p.logger.Warn("failure event not published", logging.Err(pubErr))
		}
		return nil, err
	}
	return v.(*rx.AnalysisResult), nil
}

func (p *Pipeline) analyzeUncached(ctx context.Context, hash string, image []byte, patient rx.PatientContext) (*rx.AnalysisResult, error) {
	start := time.Now()

	extracted, err := p.deps.Extractor.Extract(ctx, image)
	if err != nil {
		return nil, err
	}

	valid, failed := p.routeCandidates(ctx, extracted.Candidates)

	// Safety checks run against the canonical drug name; the candidate
	// itself keeps the spelling chosen for display.
	meds := make([]rx.MedicationCandidate, len(valid))
	for i := range valid {
		meds[i] = valid[i].med
		if name := valid[i].validation.CorrectedName; name != "" {
			meds[i].DrugName = name
		}
	}
	assessments := p.deps.Safety.Assess(ctx, meds, patient)
	medications := make([]rx.AnalyzedMedication, len(valid))
	for i := range valid {
		medications[i] = rx.AnalyzedMedication{
			ExtractedData:   valid[i].med,
			Validation:      *valid[i].validation,
			SafetyFlag:      assessments[i].Verdict.Flag,
			SafetyReasoning: assessments[i].Verdict.Reasoning,
			Interactions:    assessments[i].Findings,
			EnhancedSafety:  assessments[i].Enhanced,
		}
		if p.deps.Metrics != nil {
			p.deps.Metrics.ObserveSafetyFlag(string(assessments[i].Verdict.Flag))
		}
	}

	result := &rx.AnalysisResult{
		ImageHash:         hash,
		Medications:       medications,
		FailedExtractions: failed,
	}

	p.deps.Cache.Set(ctx, hash, result)
	p.archive(ctx, hash, image)
	p.audit(ctx, postgres.ScanAudit{
		ImageHash:       hash,
		Strategy:        extracted.Strategy,
		MedicationCount: len(medications),
		FailedCount:     len(failed),
	})
	if err := p.deps.Events.ExtractionCompleted(ctx, events.ExtractionCompleted{
		ImageHash:       hash,
		Strategy:        extracted.Strategy,
		MedicationCount: len(medications),
		FailedCount:     len(failed),
		OccurredAt:      time.Now().UTC(),
	}); err != nil {
		p.logger.Warn("completion event not published", logging.Err(err))
	}

	p.observeScan(metrics.ScanExtracted, time.Since(start))
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveExtractionTier(extracted.Strategy)
	}
	p.logger.Info("scan complete",
		logging.String("hash", hash),
		logging.String("strategy", extracted.Strategy),
		logging.Int("medications", len(medications)),
		logging.Int("failed", len(failed)))
	return result, nil
}

// validatedCandidate pairs an accepted candidate with its validation result.
type validatedCandidate struct {
	med        rx.MedicationCandidate
	validation *rx.NameValidationResult
}

// routedCandidate is the outcome of routing one candidate: exactly one of
// the two fields is set.
type routedCandidate struct {
	valid  *validatedCandidate
	failed *rx.FailedExtraction
}

// maxConcurrentValidations bounds the terminology fan-out per scan.
const maxConcurrentValidations = 4

// routeCandidates splits the raw candidates into validated medications and
// failed extractions, validating candidates concurrently.  A terminology
// outage routes the candidate to the failed list rather than failing the
// whole scan, so the user still sees everything else that was read.  Result
// order follows candidate order.
func (p *Pipeline) routeCandidates(ctx context.Context, candidates []rx.MedicationCandidate) ([]validatedCandidate, []rx.FailedExtraction) {
	routed := make([]routedCandidate, len(candidates))

	var g errgroup.Group
	g.SetLimit(maxConcurrentValidations)
	for i := range candidates {
		i := i
		g.Go(func() error {
			routed[i] = p.routeOne(ctx, candidates[i])
			return nil
		})
	}
	g.Wait()

	var valid []validatedCandidate
	var failed []rx.FailedExtraction
	for i := range routed {
		switch {
		case routed[i].valid != nil:
			valid = append(valid, *routed[i].valid)
		case routed[i].failed != nil:
			failed = append(failed, *routed[i].failed)
		}
	}
	return valid, failed
}

func (p *Pipeline) routeOne(ctx context.Context, cand rx.MedicationCandidate) routedCandidate {
	if !cand.HasReadableName() {
		return routedCandidate{failed: &rx.FailedExtraction{
			Reason:        rx.FailReasonUnclearName,
			ExtractedData: &cand,
		}}
	}

	original := cand.DrugName
	validation, err := p.deps.Validator.ValidateCandidate(ctx, &cand)
	if err != nil {
		p.logger.Warn("name lookup unavailable",
			logging.String("name", original), logging.Err(err))
		return routedCandidate{failed: &rx.FailedExtraction{
			Reason:        rx.FailReasonLookupUnavailable,
			OriginalName:  original,
			ExtractedData: &cand,
		}}
	}
	if !validation.Valid {
		return routedCandidate{failed: &rx.FailedExtraction{
			Reason:        rx.FailReasonUnrecognizedName,
			OriginalName:  original,
			Suggestions:   validation.Suggestions,
			ExtractedData: &cand,
		}}
	}
	return routedCandidate{valid: &validatedCandidate{med: cand, validation: validation}}
}

func (p *Pipeline) archive(ctx context.Context, hash string, image []byte) {
	if p.deps.Photos == nil {
		return
	}
	if err := p.deps.Photos.Save(ctx, hash, image); err != nil {
		p.logger.Warn("photo archive failed", logging.String("hash", hash), logging.Err(err))
	}
}

func (p *Pipeline) audit(ctx context.Context, a postgres.ScanAudit) {
	if p.deps.Audits == nil {
		return
	}
	if err := p.deps.Audits.SaveScanAudit(ctx, &a); err != nil {
		p.logger.Warn("scan audit not recorded", logging.Err(err))
	}
}

func (p *Pipeline) observeScan(result string, elapsed time.Duration) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveScan(result, elapsed)
	}
}

// Confirm runs the confirmation stage: the user-reviewed medication list is
// re-assessed (edits may have changed the interaction picture), each
// medication gets its patient card, and the records are persisted.
func (p *Pipeline) Confirm(ctx context.Context, imageHash string, meds []rx.MedicationCandidate, patient rx.PatientContext) ([]rx.ConfirmedMedication, error) {
	if len(meds) == 0 {
		return nil, apperrors.InvalidParam("pipeline: no medications to confirm")
	}
	for i := range meds {
		if !meds[i].HasReadableName() {
			return nil, apperrors.InvalidParam("pipeline: confirmed medication has no readable name").
				WithDetail(meds[i].DrugName)
		}
	}

	assessments := p.deps.Safety.Assess(ctx, meds, patient)
	confirmed := make([]rx.ConfirmedMedication, len(meds))
	for i := range meds {
		card := p.deps.Cards.GenerateCard(ctx, meds[i], assessments[i].Verdict, patient)
		confirmed[i] = rx.ConfirmedMedication{
			ExtractedData:   meds[i],
			SafetyFlag:      assessments[i].Verdict.Flag,
			SafetyReasoning: assessments[i].Verdict.Reasoning,
			Interactions:    assessments[i].Findings,
			EnhancedSafety:  assessments[i].Enhanced,
			PatientCard:     card,
		}
	}

	if err := p.persist(ctx, imageHash, confirmed, patient); err != nil {
		return nil, err
	}

	for i := range confirmed {
		if err := p.deps.Events.MedicationConfirmed(ctx, events.MedicationConfirmed{
			ImageHash:  imageHash,
			DrugName:   confirmed[i].ExtractedData.DrugName,
			SafetyFlag: string(confirmed[i].SafetyFlag),
			OccurredAt: time.Now().UTC(),
		}); err != nil {
			p.logger.Warn("confirmation event not published", logging.Err(err))
		}
	}
	return confirmed, nil
}

func (p *Pipeline) persist(ctx context.Context, imageHash string, confirmed []rx.ConfirmedMedication, patient rx.PatientContext) error {
	if p.deps.Records == nil {
		return nil
	}
	for i := range confirmed {
		med := confirmed[i].ExtractedData
		rec := &postgres.MedicationRecord{
			ImageHash:    imageHash,
			DrugName:     med.DrugName,
			Dosage:       med.Dosage,
			Frequency:    med.Frequency,
			DoseTiming:   med.DoseTiming,
			DosingSource: string(med.DosingSource),
			Duration:     med.Duration,
			Route:        med.Route,
			SafetyFlag:   string(confirmed[i].SafetyFlag),
			PatientName:  patient.Name,
			PatientAge:   patient.Age,
			Card:         confirmed[i].PatientCard,
		}
		if err := p.deps.Records.SaveConfirmed(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateCache drops the cached result for one image hash, forcing the
// next upload of that photo through the full chain.
func (p *Pipeline) InvalidateCache(ctx context.Context, imageHash string) error {
	if imageHash == "" {
		return apperrors.InvalidParam("pipeline: image hash is required")
	}
	return p.deps.Cache.Invalidate(ctx, imageHash)
}
