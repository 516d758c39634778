package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dosewise/rxlens/internal/extraction"
	"github.com/dosewise/rxlens/internal/infrastructure/database/postgres"
	"github.com/dosewise/rxlens/internal/infrastructure/events"
	"github.com/dosewise/rxlens/internal/safety"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockExtractor struct {
	extractFunc func(ctx context.Context, image []byte) (*extraction.Result, error)
	calls       int
}

func (m *mockExtractor) Extract(ctx context.Context, image []byte) (*extraction.Result, error) {
	m.calls++
	return m.extractFunc(ctx, image)
}

type mockValidator struct {
	validateFunc func(ctx context.Context, med *rx.MedicationCandidate) (*rx.NameValidationResult, error)
}

func (m *mockValidator) ValidateCandidate(ctx context.Context, med *rx.MedicationCandidate) (*rx.NameValidationResult, error) {
	return m.validateFunc(ctx, med)
}

type mockSafety struct {
	assessFunc func(ctx context.Context, meds []rx.MedicationCandidate, patient rx.PatientContext) []safety.Assessment
}

func (m *mockSafety) Assess(ctx context.Context, meds []rx.MedicationCandidate, patient rx.PatientContext) []safety.Assessment {
	return m.assessFunc(ctx, meds, patient)
}

type mockCards struct {
	generateFunc func(ctx context.Context, med rx.MedicationCandidate, verdict rx.SafetyVerdict, patient rx.PatientContext) rx.NudgeCard
}

func (m *mockCards) GenerateCard(ctx context.Context, med rx.MedicationCandidate, verdict rx.SafetyVerdict, patient rx.PatientContext) rx.NudgeCard {
	return m.generateFunc(ctx, med, verdict, patient)
}

type mockCache struct {
	entries     map[string]*rx.AnalysisResult
	invalidated []string
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]*rx.AnalysisResult)}
}

func (m *mockCache) Get(_ context.Context, key string) (*rx.AnalysisResult, bool) {
	result, ok := m.entries[key]
	return result, ok
}

func (m *mockCache) Set(_ context.Context, key string, result *rx.AnalysisResult) {
	m.entries[key] = result
}

func (m *mockCache) Invalidate(_ context.Context, key string) error {
	m.invalidated = append(m.invalidated, key)
	delete(m.entries, key)
	return nil
}

type recordingProducer struct {
	events.NopProducer
	completed []events.ExtractionCompleted
	failed    []events.ExtractionFailed
	confirmed []events.MedicationConfirmed
}

func (r *recordingProducer) ExtractionCompleted(_ context.Context, ev events.ExtractionCompleted) error {
	r.completed = append(r.completed, ev)
	return nil
}

func (r *recordingProducer) ExtractionFailed(_ context.Context, ev events.ExtractionFailed) error {
	r.failed = append(r.failed, ev)
	return nil
}

func (r *recordingProducer) MedicationConfirmed(_ context.Context, ev events.MedicationConfirmed) error {
	r.confirmed = append(r.confirmed, ev)
	return nil
}

type recordingAudits struct {
	saved []postgres.ScanAudit
}

func (r *recordingAudits) SaveScanAudit(_ context.Context, audit *postgres.ScanAudit) error {
	r.saved = append(r.saved, *audit)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

func candidate(name string) rx.MedicationCandidate {
	return rx.MedicationCandidate{
		DrugName:     name,
		Dosage:       "500mg",
		Frequency:    "twice daily",
		DoseTiming:   "1-0-1",
		DosingSource: rx.DosingFromPrescription,
	}
}

func validResult(name string) *rx.NameValidationResult {
	return &rx.NameValidationResult{
		OriginalName: name,
		Confidence:   1.0,
		CanonicalID:  "rx:" + name,
		Valid:        true,
	}
}

func greenAssessments(meds []rx.MedicationCandidate) []safety.Assessment {
	out := make([]safety.Assessment, len(meds))
	for i := range out {
		out[i] = safety.Assessment{
			Verdict:  rx.SafetyVerdict{Flag: rx.FlagGreen, Reasoning: "No significant interactions found"},
			Enhanced: rx.EnhancedSafetyReport{OverallSeverity: rx.SeverityNone},
		}
	}
	return out
}

func testDeps(extractor *mockExtractor, cache *mockCache, producer events.Producer) Deps {
	return Deps{
		Extractor: extractor,
		Validator: &mockValidator{
			validateFunc: func(_ context.Context, med *rx.MedicationCandidate) (*rx.NameValidationResult, error) {
				return validResult(med.DrugName), nil
			},
		},
		Safety: &mockSafety{
			assessFunc: func(_ context.Context, meds []rx.MedicationCandidate, _ rx.PatientContext) []safety.Assessment {
				return greenAssessments(meds)
			},
		},
		Cards: &mockCards{
			generateFunc: func(_ context.Context, med rx.MedicationCandidate, _ rx.SafetyVerdict, _ rx.PatientContext) rx.NudgeCard {
				return rx.NudgeCard{Headline: "Your medicine: " + med.DrugName, PlainInstruction: "Take it each day."}
			},
		},
		Cache:  cache,
		Events: producer,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Analyze
// ─────────────────────────────────────────────────────────────────────────────

func TestAnalyzeExtractsAndCaches(t *testing.T) {
	extractor := &mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return &extraction.Result{
				Candidates: []rx.MedicationCandidate{candidate("Paracetamol")},
				Strategy:   "vision",
			}, nil
		},
	}
	cache := newMockCache()
	producer := &recordingProducer{}
	p, err := New(testDeps(extractor, cache, producer))
	require.NoError(t, err)

	image := []byte("photo-bytes")
	result, err := p.Analyze(context.Background(), image, rx.PatientContext{Age: 34}, false)
	require.NoError(t, err)

	assert.Equal(t, HashImage(image), result.ImageHash)
	assert.False(t, result.FromCache)
	require.Len(t, result.Medications, 1)
	med := result.Medications[0]
	assert.Equal(t, "Paracetamol", med.ExtractedData.DrugName)
	assert.True(t, med.Validation.Valid)
	assert.Equal(t, rx.FlagGreen, med.SafetyFlag)
	assert.Empty(t, result.FailedExtractions)

	_, cached := cache.Get(context.Background(), result.ImageHash)
	assert.True(t, cached)
	require.Len(t, producer.completed, 1)
	assert.Equal(t, "vision", producer.completed[0].Strategy)
	assert.Equal(t, 1, producer.completed[0].MedicationCount)
}

func TestAnalyzeServesCacheHit(t *testing.T) {
	extractor := &mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return &extraction.Result{
				Candidates: []rx.MedicationCandidate{candidate("Amoxicillin")},
				Strategy:   "vision",
			}, nil
		},
	}
	cache := newMockCache()
	p, err := New(testDeps(extractor, cache, &recordingProducer{}))
	require.NoError(t, err)

	image := []byte("same-photo")
	first, err := p.Analyze(context.Background(), image, rx.PatientContext{}, false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := p.Analyze(context.Background(), image, rx.PatientContext{}, false)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Medications, second.Medications)
	assert.Equal(t, 1, extractor.calls)

	// The cached entry itself must not be flipped to FromCache.
	stored, ok := cache.Get(context.Background(), first.ImageHash)
	require.True(t, ok)
	assert.False(t, stored.FromCache)
}

func TestAnalyzeForceRefreshBypassesCache(t *testing.T) {
	extractor := &mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return &extraction.Result{
				Candidates: []rx.MedicationCandidate{candidate("Metformin")},
				Strategy:   "ocr",
			}, nil
		},
	}
	cache := newMockCache()
	p, err := New(testDeps(extractor, cache, &recordingProducer{}))
	require.NoError(t, err)

	image := []byte("refresh-me")
	_, err = p.Analyze(context.Background(), image, rx.PatientContext{}, false)
	require.NoError(t, err)

	result, err := p.Analyze(context.Background(), image, rx.PatientContext{}, true)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, 2, extractor.calls)
}

func TestAnalyzeEmptyImage(t *testing.T) {
	p, err := New(testDeps(&mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			t.Fatal("extractor must not be called")
			return nil, nil
		},
	}, newMockCache(), &recordingProducer{}))
	require.NoError(t, err)

	_, err = p.Analyze(context.Background(), nil, rx.PatientContext{}, false)
	assert.True(t, apperrors.IsUnreadableInput(err))
}

func TestAnalyzeRoutesUnreadableCandidate(t *testing.T) {
	extractor := &mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return &extraction.Result{
				Candidates: []rx.MedicationCandidate{
					candidate("Paracetamol"),
					candidate(rx.UnreadableName),
				},
				Strategy: "vision",
			}, nil
		},
	}
	p, err := New(testDeps(extractor, newMockCache(), &recordingProducer{}))
	require.NoError(t, err)

	result, err := p.Analyze(context.Background(), []byte("img"), rx.PatientContext{}, false)
	require.NoError(t, err)
	assert.Len(t, result.Medications, 1)
	require.Len(t, result.FailedExtractions, 1)
	fail := result.FailedExtractions[0]
	assert.Equal(t, rx.FailReasonUnclearName, fail.Reason)
	require.NotNil(t, fail.ExtractedData)
	assert.Equal(t, "500mg", fail.ExtractedData.Dosage)
}

func TestAnalyzeRoutesUnrecognizedName(t *testing.T) {
	deps := testDeps(&mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return &extraction.Result{
				Candidates: []rx.MedicationCandidate{candidate("Xyzzymab")},
				Strategy:   "vision",
			}, nil
		},
	}, newMockCache(), &recordingProducer{})
	deps.Validator = &mockValidator{
		validateFunc: func(_ context.Context, med *rx.MedicationCandidate) (*rx.NameValidationResult, error) {
			return &rx.NameValidationResult{
				OriginalName: med.DrugName,
				Confidence:   0.3,
				Suggestions:  []string{"Rituximab", "Infliximab"},
			}, nil
		},
	}
	p, err := New(deps)
	require.NoError(t, err)

	result, err := p.Analyze(context.Background(), []byte("img"), rx.PatientContext{}, false)
	require.NoError(t, err)
	assert.Empty(t, result.Medications)
	require.Len(t, result.FailedExtractions, 1)
	fail := result.FailedExtractions[0]
	assert.Equal(t, rx.FailReasonUnrecognizedName, fail.Reason)
	assert.Equal(t, "Xyzzymab", fail.OriginalName)
	assert.Equal(t, []string{"Rituximab", "Infliximab"}, fail.Suggestions)
}

func TestAnalyzeRoutesLookupOutage(t *testing.T) {
	deps := testDeps(&mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return &extraction.Result{
				Candidates: []rx.MedicationCandidate{candidate("Paracetamol")},
				Strategy:   "vision",
			}, nil
		},
	}, newMockCache(), &recordingProducer{})
	deps.Validator = &mockValidator{
		validateFunc: func(context.Context, *rx.MedicationCandidate) (*rx.NameValidationResult, error) {
			return nil, apperrors.New(apperrors.ErrCodeTerminologyUnavailable, "terminology down")
		},
	}
	p, err := New(deps)
	require.NoError(t, err)

	result, err := p.Analyze(context.Background(), []byte("img"), rx.PatientContext{}, false)
	require.NoError(t, err)
	require.Len(t, result.FailedExtractions, 1)
	assert.Equal(t, rx.FailReasonLookupUnavailable, result.FailedExtractions[0].Reason)
	assert.Equal(t, "Paracetamol", result.FailedExtractions[0].OriginalName)
}

func TestAnalyzeExtractionFailurePublishesEvent(t *testing.T) {
	producer := &recordingProducer{}
	p, err := New(testDeps(&mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return nil, apperrors.New(apperrors.ErrCodeBackendUnavailable, "all tiers down")
		},
	}, newMockCache(), producer))
	require.NoError(t, err)

	_, err = p.Analyze(context.Background(), []byte("img"), rx.PatientContext{}, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsBackendUnavailable(err))
	require.Len(t, producer.failed, 1)
	assert.Equal(t, string(apperrors.ErrCodeBackendUnavailable), producer.failed[0].ErrorCode)
}

func TestAnalyzeCorrectedNameFlowsToSafety(t *testing.T) {
	var assessed []string
	deps := testDeps(&mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return &extraction.Result{
				Candidates: []rx.MedicationCandidate{candidate("Warfarn")},
				Strategy:   "ocr",
			}, nil
		},
	}, newMockCache(), &recordingProducer{})
	deps.Validator = &mockValidator{
		validateFunc: func(_ context.Context, med *rx.MedicationCandidate) (*rx.NameValidationResult, error) {
			med.DrugName = "Warfarin"
			return &rx.NameValidationResult{
				OriginalName:  "Warfarn",
				CorrectedName: "Warfarin",
				Confidence:    0.7,
				CanonicalID:   "rx:warfarin",
				WasCorrected:  true,
				Valid:         true,
			}, nil
		},
	}
	deps.Safety = &mockSafety{
		assessFunc: func(_ context.Context, meds []rx.MedicationCandidate, _ rx.PatientContext) []safety.Assessment {
			for _, m := range meds {
				assessed = append(assessed, m.DrugName)
			}
			return greenAssessments(meds)
		},
	}
	p, err := New(deps)
	require.NoError(t, err)

	result, err := p.Analyze(context.Background(), []byte("img"), rx.PatientContext{}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Warfarin"}, assessed)
	require.Len(t, result.Medications, 1)
	assert.Equal(t, "Warfarin", result.Medications[0].ExtractedData.DrugName)
	assert.True(t, result.Medications[0].Validation.WasCorrected)
}

func TestAnalyzeKeptSpellingStillChecksCanonicalName(t *testing.T) {
	var assessed []string
	deps := testDeps(&mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return &extraction.Result{
				Candidates: []rx.MedicationCandidate{candidate("Warfarn")},
				Strategy:   "ocr",
			}, nil
		},
	}, newMockCache(), &recordingProducer{})
	// High-confidence correction: the candidate keeps the prescription's
	// spelling, only the validation result carries the corrected name.
	deps.Validator = &mockValidator{
		validateFunc: func(_ context.Context, med *rx.MedicationCandidate) (*rx.NameValidationResult, error) {
			return &rx.NameValidationResult{
				OriginalName:  med.DrugName,
				CorrectedName: "Warfarin",
				Confidence:    0.875,
				CanonicalID:   "rx:warfarin",
				WasCorrected:  true,
				Valid:         true,
			}, nil
		},
	}
	deps.Safety = &mockSafety{
		assessFunc: func(_ context.Context, meds []rx.MedicationCandidate, patient rx.PatientContext) []safety.Assessment {
			out := greenAssessments(meds)
			for i, m := range meds {
				assessed = append(assessed, m.DrugName)
				if m.DrugName == "Warfarin" && len(patient.ActiveMedications) > 0 {
					out[i].Verdict = rx.SafetyVerdict{Flag: rx.FlagRed, Reasoning: "Critical interaction with Aspirin"}
				}
			}
			return out
		},
	}
	p, err := New(deps)
	require.NoError(t, err)

	result, err := p.Analyze(context.Background(), []byte("img"),
		rx.PatientContext{ActiveMedications: []string{"Aspirin"}}, false)
	require.NoError(t, err)

	// The assessor saw the canonical drug, the user still sees the paper's
	// spelling, and the interaction was not missed.
	assert.Equal(t, []string{"Warfarin"}, assessed)
	require.Len(t, result.Medications, 1)
	assert.Equal(t, "Warfarn", result.Medications[0].ExtractedData.DrugName)
	assert.True(t, result.Medications[0].Validation.WasCorrected)
	assert.Equal(t, rx.FlagRed, result.Medications[0].SafetyFlag)
}

func TestAnalyzeRecordsAudit(t *testing.T) {
	audits := &recordingAudits{}
	deps := testDeps(&mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return &extraction.Result{
				Candidates: []rx.MedicationCandidate{
					candidate("Paracetamol"),
					candidate(rx.UnreadableName),
				},
				Strategy: "ocr",
			}, nil
		},
	}, newMockCache(), &recordingProducer{})
	deps.Audits = audits
	p, err := New(deps)
	require.NoError(t, err)

	_, err = p.Analyze(context.Background(), []byte("img"), rx.PatientContext{}, false)
	require.NoError(t, err)

	require.Len(t, audits.saved, 1)
	audit := audits.saved[0]
	assert.Equal(t, "ocr", audit.Strategy)
	assert.Equal(t, 1, audit.MedicationCount)
	assert.Equal(t, 1, audit.FailedCount)
	assert.Empty(t, audit.ErrorCode)
}

func TestAnalyzeFailureRecordsAudit(t *testing.T) {
	audits := &recordingAudits{}
	deps := testDeps(&mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return nil, apperrors.New(apperrors.ErrCodeNoMedicationsFound, "nothing found")
		},
	}, newMockCache(), &recordingProducer{})
	deps.Audits = audits
	p, err := New(deps)
	require.NoError(t, err)

	_, err = p.Analyze(context.Background(), []byte("img"), rx.PatientContext{}, false)
	require.Error(t, err)

	require.Len(t, audits.saved, 1)
	assert.Equal(t, string(apperrors.ErrCodeNoMedicationsFound), audits.saved[0].ErrorCode)
	assert.Zero(t, audits.saved[0].MedicationCount)
}

func TestAnalyzeValidatesConcurrentlyInOrder(t *testing.T) {
	names := []string{"Amoxicillin", "Metformin", "Warfarin", "Aspirin", "Ibuprofen", "Omeprazole"}
	candidates := make([]rx.MedicationCandidate, len(names))
	for i, name := range names {
		candidates[i] = candidate(name)
	}
	p, err := New(testDeps(&mockExtractor{
		extractFunc: func(context.Context, []byte) (*extraction.Result, error) {
			return &extraction.Result{Candidates: candidates, Strategy: "vision"}, nil
		},
	}, newMockCache(), &recordingProducer{}))
	require.NoError(t, err)

	result, err := p.Analyze(context.Background(), []byte("img"), rx.PatientContext{}, false)
	require.NoError(t, err)
	require.Len(t, result.Medications, len(names))
	for i, name := range names {
		assert.Equal(t, name, result.Medications[i].ExtractedData.DrugName)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Confirm
// ─────────────────────────────────────────────────────────────────────────────

func TestConfirmBuildsCardsAndEvents(t *testing.T) {
	producer := &recordingProducer{}
	deps := testDeps(&mockExtractor{}, newMockCache(), producer)
	deps.Safety = &mockSafety{
		assessFunc: func(_ context.Context, meds []rx.MedicationCandidate, _ rx.PatientContext) []safety.Assessment {
			out := greenAssessments(meds)
			out[0].Verdict = rx.SafetyVerdict{Flag: rx.FlagRed, Reasoning: "Critical interaction with Aspirin"}
			return out
		},
	}
	p, err := New(deps)
	require.NoError(t, err)

	meds := []rx.MedicationCandidate{candidate("Warfarin"), candidate("Paracetamol")}
	confirmed, err := p.Confirm(context.Background(), "abc123", meds, rx.PatientContext{Name: "Asha", Age: 70})
	require.NoError(t, err)
	require.Len(t, confirmed, 2)

	assert.Equal(t, rx.FlagRed, confirmed[0].SafetyFlag)
	assert.Equal(t, "Your medicine: Warfarin", confirmed[0].PatientCard.Headline)
	assert.Equal(t, rx.FlagGreen, confirmed[1].SafetyFlag)

	require.Len(t, producer.confirmed, 2)
	assert.Equal(t, "abc123", producer.confirmed[0].ImageHash)
	assert.Equal(t, "Warfarin", producer.confirmed[0].DrugName)
	assert.Equal(t, string(rx.FlagRed), producer.confirmed[0].SafetyFlag)
}

func TestConfirmRejectsEmptyList(t *testing.T) {
	p, err := New(testDeps(&mockExtractor{}, newMockCache(), &recordingProducer{}))
	require.NoError(t, err)

	_, err = p.Confirm(context.Background(), "abc123", nil, rx.PatientContext{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBadRequest))
}

func TestConfirmRejectsUnreadableName(t *testing.T) {
	p, err := New(testDeps(&mockExtractor{}, newMockCache(), &recordingProducer{}))
	require.NoError(t, err)

	_, err = p.Confirm(context.Background(), "abc123",
		[]rx.MedicationCandidate{candidate(rx.UnreadableName)}, rx.PatientContext{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBadRequest))
}

// ─────────────────────────────────────────────────────────────────────────────
// Cache invalidation and construction
// ─────────────────────────────────────────────────────────────────────────────

func TestInvalidateCache(t *testing.T) {
	cache := newMockCache()
	p, err := New(testDeps(&mockExtractor{}, cache, &recordingProducer{}))
	require.NoError(t, err)

	require.NoError(t, p.InvalidateCache(context.Background(), "abc123"))
	assert.Equal(t, []string{"abc123"}, cache.invalidated)

	err = p.InvalidateCache(context.Background(), "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBadRequest))
}

func TestNewRequiresDeps(t *testing.T) {
	deps := testDeps(&mockExtractor{}, newMockCache(), &recordingProducer{})
	deps.Cache = nil
	_, err := New(deps)
	assert.Error(t, err)

	deps = testDeps(&mockExtractor{}, newMockCache(), &recordingProducer{})
	deps.Extractor = nil
	_, err = New(deps)
	assert.Error(t, err)
}

func TestHashImageIsStable(t *testing.T) {
	a := HashImage([]byte("photo"))
	b := HashImage([]byte("photo"))
	c := HashImage([]byte("other"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
