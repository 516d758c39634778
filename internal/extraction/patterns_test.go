package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dosewise/rxlens/pkg/types/rx"
)

func TestParsePrescriptionText_FullLines(t *testing.T) {
	text := `Dr. A. Kulkarni, MBBS
Patient: R. Sharma  Age: 54

1) Tab. Amoxicillin 500mg 1-0-1 x 5 days
2) Cap Omeprazole 20 mg OD
3) Syp. Cetirizine 5ml 0-0-1
`
	meds := parsePrescriptionText(text)
	require.Len(t, meds, 3)

	assert.Equal(t, "Amoxicillin", meds[0].DrugName)
	assert.Equal(t, "500mg", meds[0].Dosage)
	assert.Equal(t, "1-0-1", meds[0].DoseTiming)
	assert.Equal(t, "5 days", meds[0].Duration)
	assert.Equal(t, "oral", meds[0].Route)
	assert.Equal(t, rx.DosingFromPrescription, meds[0].DosingSource)

	assert.Equal(t, "Omeprazole", meds[1].DrugName)
	assert.Equal(t, "20 mg", meds[1].Dosage)
	assert.Equal(t, "1-0-0", meds[1].DoseTiming)
	assert.Equal(t, "OD", meds[1].Frequency)

	assert.Equal(t, "Cetirizine", meds[2].DrugName)
	assert.Equal(t, "0-0-1", meds[2].DoseTiming)
}

func TestParsePrescriptionText_NoFormPrefix(t *testing.T) {
	meds := parsePrescriptionText("Metformin 500mg 1-0-1")
	require.Len(t, meds, 1)
	assert.Equal(t, "Metformin", meds[0].DrugName)
	assert.Empty(t, meds[0].Route)
}

func TestParsePrescriptionText_FrequencyShorthand(t *testing.T) {
	meds := parsePrescriptionText("Tab Paracetamol 650 mg TDS x 3 days")
	require.Len(t, meds, 1)
	assert.Equal(t, "1-1-1", meds[0].DoseTiming)
	assert.Equal(t, "TDS", meds[0].Frequency)
	assert.Equal(t, "3 days", meds[0].Duration)
}

func TestParsePrescriptionText_SkipsBoilerplate(t *testing.T) {
	meds := parsePrescriptionText("Advice: plenty of fluids\nFollow up after 5 days")
	assert.Empty(t, meds)
}

func TestParsePrescriptionText_Empty(t *testing.T) {
	assert.Empty(t, parsePrescriptionText(""))
}
