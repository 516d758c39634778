package readability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountSyllables(t *testing.T) {
	cases := []struct {
		word string
		want int
	}{
		{"a", 1},
		{"be", 1},
		{"take", 1},
		{"table", 2},
		{"water", 2},
		{"morning", 2},
		{"medicine", 3},
		{"", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CountSyllables(tc.word), tc.word)
	}
}

func TestGradeLevel_SimpleTextPasses(t *testing.T) {
	simple := "Take one pill each morning with food. This keeps your blood pressure low."
	grade := GradeLevel(simple)
	assert.LessOrEqual(t, grade, MaxGradeLevel)
}

func TestGradeLevel_DenseTextScoresHigh(t *testing.T) {
	dense := "Administration of antihypertensive pharmacotherapy necessitates " +
		"comprehensive cardiovascular monitoring throughout the therapeutic duration."
	assert.Greater(t, GradeLevel(dense), MaxGradeLevel)
}

func TestGradeLevel_EmptyText(t *testing.T) {
	assert.Zero(t, GradeLevel(""))
	assert.Zero(t, GradeLevel("   "))
}

func TestFindJargon(t *testing.T) {
	found := FindJargon("This treats Hypertension and is contraindicated with alcohol.")
	assert.Contains(t, found, "hypertension")
	assert.Contains(t, found, "contraindicated")

	assert.Empty(t, FindJargon("Take one pill each morning."))

	// Word boundaries: "renal" must not match inside "adrenaline".
	assert.Empty(t, FindJargon("This raises adrenaline levels."))
}

func TestFindJargon_MultibyteBoundaries(t *testing.T) {
	// An accented letter is still a letter: no match inside a word.
	assert.Empty(t, FindJargon("the caférenal unit"))

	// Non-letter punctuation is a boundary even when it is multibyte.
	assert.Contains(t, FindJargon("renal—related changes"), "renal")
}

func TestEvaluate_Gate(t *testing.T) {
	v := NewValidator()

	pass := v.Evaluate("Take one pill each morning with food.")
	assert.True(t, pass.Passed)
	assert.Empty(t, pass.JargonTerms)

	// Simple sentence shape but contains jargon: gate fails on jargon alone.
	jargon := v.Evaluate("This pill treats hypertension.")
	assert.False(t, jargon.Passed)
	assert.Equal(t, []string{"hypertension"}, jargon.JargonTerms)
}

func TestSimplify(t *testing.T) {
	v := NewValidator()

	got := v.Simplify("This treats Hypertension and may cause edema.")
	assert.Equal(t, "This treats High blood pressure and may cause swelling.", got)

	// Multi-word terms replaced before their components.
	got = v.Simplify("Take twice daily.")
	assert.Equal(t, "Take two times a day.", got)

	// Simplified output passes the jargon scan.
	assert.Empty(t, FindJargon(got))
}

func TestSimplify_PreservesNonJargonText(t *testing.T) {
	v := NewValidator()
	text := "Take one 500mg tablet with water."
	assert.Equal(t, text, v.Simplify(text))
}
