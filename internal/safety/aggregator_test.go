package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dosewise/rxlens/internal/interactions"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// mockInteractions implements interactions.Client with a function field.
type mockInteractions struct {
	checkFn func(ctx context.Context, drugs []string) ([]interactions.PairFinding, error)
}

func (m *mockInteractions) CheckInteractions(ctx context.Context, drugs []string) ([]interactions.PairFinding, error) {
	return m.checkFn(ctx, drugs)
}

func newAggregator(t *testing.T, m interactions.Client) *Aggregator {
	t.Helper()
	a, err := NewAggregator(m, nil)
	require.NoError(t, err)
	return a
}

func TestNewAggregator_RequiresClient(t *testing.T) {
	_, err := NewAggregator(nil, nil)
	assert.Error(t, err)
}

func TestDetermineSafetyFlag(t *testing.T) {
	assert.Equal(t, rx.FlagGreen, DetermineSafetyFlag(nil).Flag)

	yellow := DetermineSafetyFlag([]rx.InteractionFinding{
		{Tier: rx.TierMinor, InvolvedDrug: "A"},
		{Tier: rx.TierModerate, InvolvedDrug: "B"},
	})
	assert.Equal(t, rx.FlagYellow, yellow.Flag)
	assert.Contains(t, yellow.Reasoning, "B")

	red := DetermineSafetyFlag([]rx.InteractionFinding{
		{Tier: rx.TierModerate, InvolvedDrug: "B"},
		{Tier: rx.TierCritical, InvolvedDrug: "C"},
	})
	assert.Equal(t, rx.FlagRed, red.Flag)
	assert.Contains(t, red.Reasoning, "C")
}

func TestAssess_DistributesPairFindings(t *testing.T) {
	a := newAggregator(t, &mockInteractions{
		checkFn: func(_ context.Context, drugs []string) ([]interactions.PairFinding, error) {
			assert.Equal(t, []string{"Warfarin", "Aspirin", "Metformin"}, drugs)
			return []interactions.PairFinding{{
				DrugA: "Warfarin", DrugB: "Aspirin",
				Tier:        rx.TierCritical,
				Description: "Bleeding risk",
				Severity:    rx.SeverityCritical,
			}}, nil
		},
	})

	meds := []rx.MedicationCandidate{
		{DrugName: "Warfarin"},
		{DrugName: "Aspirin"},
		{DrugName: "Metformin"},
	}
	got := a.Assess(context.Background(), meds, rx.PatientContext{Age: 40})
	require.Len(t, got, 3)

	// Both pair members get the finding pointing at the other drug.
	require.Len(t, got[0].Findings, 1)
	assert.Equal(t, "Aspirin", got[0].Findings[0].InvolvedDrug)
	assert.Equal(t, rx.FlagRed, got[0].Verdict.Flag)

	require.Len(t, got[1].Findings, 1)
	assert.Equal(t, "Warfarin", got[1].Findings[0].InvolvedDrug)
	assert.Equal(t, rx.FlagRed, got[1].Verdict.Flag)

	// The uninvolved drug stays green.
	assert.Empty(t, got[2].Findings)
	assert.Equal(t, rx.FlagGreen, got[2].Verdict.Flag)
}

func TestAssess_ActiveMedicationsJoinTheCheck(t *testing.T) {
	a := newAggregator(t, &mockInteractions{
		checkFn: func(_ context.Context, drugs []string) ([]interactions.PairFinding, error) {
			assert.Equal(t, []string{"Aspirin", "Warfarin"}, drugs)
			return []interactions.PairFinding{{
				DrugA: "Warfarin", DrugB: "Aspirin",
				Tier:        rx.TierCritical,
				Description: "Bleeding risk",
				Severity:    rx.SeverityCritical,
			}}, nil
		},
	})

	meds := []rx.MedicationCandidate{{DrugName: "Aspirin"}}
	patient := rx.PatientContext{Age: 40, ActiveMedications: []string{"Warfarin", " "}}
	got := a.Assess(context.Background(), meds, patient)

	// One assessment per scanned med; the active med only contributes findings.
	require.Len(t, got, 1)
	require.Len(t, got[0].Findings, 1)
	assert.Equal(t, "Warfarin", got[0].Findings[0].InvolvedDrug)
	assert.Equal(t, rx.FlagRed, got[0].Verdict.Flag)
}

func TestAssess_FallsBackToStaticTables(t *testing.T) {
	a := newAggregator(t, &mockInteractions{
		checkFn: func(_ context.Context, _ []string) ([]interactions.PairFinding, error) {
			return nil, apperrors.New(apperrors.ErrCodeInteractionUnavailable, "down")
		},
	})

	meds := []rx.MedicationCandidate{
		{DrugName: "Warfarin"},
		{DrugName: "Aspirin"},
	}
	got := a.Assess(context.Background(), meds, rx.PatientContext{Age: 40})
	require.Len(t, got, 2)

	// The static table knows warfarin+aspirin.
	require.Len(t, got[0].Findings, 1)
	assert.Equal(t, rx.FlagRed, got[0].Verdict.Flag)
	assert.Contains(t, got[0].Verdict.Reasoning, "built-in rules only")
}

func TestEnhancedCheck_FoodInteraction(t *testing.T) {
	a := newAggregator(t, &mockInteractions{})

	report := a.EnhancedCheck(&rx.MedicationCandidate{DrugName: "Warfarin"}, rx.PatientContext{Age: 40})
	require.Len(t, report.FoodInteractions, 1)
	assert.Equal(t, rx.SeverityModerate, report.OverallSeverity)
}

func TestEnhancedCheck_ElderlyWarning(t *testing.T) {
	a := newAggregator(t, &mockInteractions{})

	med := &rx.MedicationCandidate{DrugName: "Diazepam"}

	young := a.EnhancedCheck(med, rx.PatientContext{Age: 40})
	assert.Empty(t, young.AgeWarnings)

	old := a.EnhancedCheck(med, rx.PatientContext{Age: 72})
	require.Len(t, old.AgeWarnings, 1)
	assert.Equal(t, "elderly", old.AgeWarnings[0].Category)
}

func TestEnhancedCheck_PediatricContraindication(t *testing.T) {
	a := newAggregator(t, &mockInteractions{})

	report := a.EnhancedCheck(&rx.MedicationCandidate{DrugName: "Aspirin"}, rx.PatientContext{Age: 6})
	require.Len(t, report.AgeWarnings, 1)
	assert.Equal(t, "pediatric", report.AgeWarnings[0].Category)
	assert.Equal(t, rx.SeverityCritical, report.OverallSeverity)

	// Unknown age (0) must not trigger pediatric rules.
	none := a.EnhancedCheck(&rx.MedicationCandidate{DrugName: "Aspirin"}, rx.PatientContext{})
	assert.Empty(t, none.AgeWarnings)
}

func TestEnhancedCheck_DosageAlert(t *testing.T) {
	a := newAggregator(t, &mockInteractions{})

	over := a.EnhancedCheck(&rx.MedicationCandidate{
		DrugName:   "Paracetamol",
		Dosage:     "1000mg",
		DoseTiming: "2-2-2",
	}, rx.PatientContext{Age: 40})
	require.Len(t, over.DosageAlerts, 1)
	assert.InDelta(t, 6000, over.DosageAlerts[0].ParsedDailyMg, 1e-9)
	assert.InDelta(t, 4000, over.DosageAlerts[0].MaxDailyMg, 1e-9)
	assert.Equal(t, rx.SeverityCritical, over.OverallSeverity)

	within := a.EnhancedCheck(&rx.MedicationCandidate{
		DrugName:   "Paracetamol",
		Dosage:     "500mg",
		DoseTiming: "1-1-1",
	}, rx.PatientContext{Age: 40})
	assert.Empty(t, within.DosageAlerts)
	assert.Equal(t, rx.SeverityNone, within.OverallSeverity)
}

func TestParseDoseMg(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"500mg", 500},
		{"0.5 g", 500},
		{"75 mcg", 0.075},
		{"Tablet 650 MG", 650},
		{"500mg/125mg", 500},
	}
	for _, tc := range cases {
		got, err := parseDoseMg(tc.in)
		require.NoError(t, err, tc.in)
		assert.InDelta(t, tc.want, got, 1e-9, tc.in)
	}

	_, err := parseDoseMg("one tablet")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDosageParse))
}

func TestDailyUnits(t *testing.T) {
	assert.Equal(t, 2, dailyUnits(&rx.MedicationCandidate{DoseTiming: "1-0-1"}))
	assert.Equal(t, 1, dailyUnits(&rx.MedicationCandidate{DoseTiming: "garbled"}))
	assert.Equal(t, 1, dailyUnits(&rx.MedicationCandidate{}))
	// An all-zero triple still counts as one unit for dosage math.
	assert.Equal(t, 1, dailyUnits(&rx.MedicationCandidate{DoseTiming: "0-0-0"}))
}
