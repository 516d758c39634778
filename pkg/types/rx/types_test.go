package rx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDoseTiming_Valid(t *testing.T) {
	d, err := ParseDoseTiming("1-0-1")
	require.NoError(t, err)
	assert.Equal(t, DoseTiming{Morning: 1, Noon: 0, Evening: 1}, d)
	assert.Equal(t, "1-0-1", d.String())
	assert.Equal(t, 2, d.TotalDailyUnits())
}

func TestParseDoseTiming_Whitespace(t *testing.T) {
	d, err := ParseDoseTiming("1 - 1 - 1")
	require.NoError(t, err)
	assert.Equal(t, 3, d.TotalDailyUnits())
}

func TestParseDoseTiming_Invalid(t *testing.T) {
	for _, s := range []string{"", "1-0", "1-0-1-0", "a-b-c", "1-0--1"} {
		_, err := ParseDoseTiming(s)
		assert.Error(t, err, s)
	}
}

func TestHasReadableName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"Lisinopril", true},
		{"", false},
		{"   ", false},
		{UnreadableName, false},
		{"unreadable", false}, // case-insensitive sentinel match
	}
	for _, tc := range cases {
		m := MedicationCandidate{DrugName: tc.name}
		assert.Equal(t, tc.want, m.HasReadableName(), tc.name)
	}
}

func TestDisplayName_CorrectionPolicy(t *testing.T) {
	// Mid-band correction: the corrected name replaces the original on screen.
	replaced := NameValidationResult{
		OriginalName:  "Amoxicilin",
		CorrectedName: "Amoxicillin",
		Confidence:    0.7,
		WasCorrected:  true,
	}
	assert.Equal(t, "Amoxicillin", replaced.DisplayName())

	// High-confidence match: the correction is still recorded, but the screen
	// keeps the spelling the patient can find on their label.
	kept := NameValidationResult{
		OriginalName:  "Listnopril",
		CorrectedName: "Lisinopril",
		CanonicalID:   "29046",
		Confidence:    0.9,
		WasCorrected:  true,
	}
	assert.Equal(t, "Listnopril", kept.DisplayName())

	// No match at all: nothing to swap in.
	unmatched := NameValidationResult{OriginalName: "Xyzal"}
	assert.Equal(t, "Xyzal", unmatched.DisplayName())
}
