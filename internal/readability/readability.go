// Package readability scores patient-facing text and gates what is allowed to
// reach a patient.  A text passes only when its Flesch-Kincaid grade level is
// at or below an 8th-grade threshold AND it contains no known medical jargon.
package readability

import (
	"strings"
	"unicode"
)

// MaxGradeLevel is the highest Flesch-Kincaid grade a patient-facing text may
// score and still pass the gate.
const MaxGradeLevel = 8.0

// Report is the outcome of evaluating one text.
type Report struct {
	GradeLevel  float64  `json:"grade_level"`
	JargonTerms []string `json:"jargon_terms,omitempty"`
	Passed      bool     `json:"passed"`
}

// Validator scores text against the readability gate.  Zero value is usable;
// NewValidator exists for symmetry with the other components.
type Validator struct{}

// NewValidator returns a readability Validator.
func NewValidator() *Validator { return &Validator{} }

// Evaluate computes the Flesch-Kincaid grade level of text and scans it for
// jargon.  Both checks must pass.  Empty text passes trivially (grade 0, no
// jargon).
func (v *Validator) Evaluate(text string) Report {
	grade := GradeLevel(text)
	jargon := FindJargon(text)
	return Report{
		GradeLevel:  grade,
		JargonTerms: jargon,
		Passed:      grade <= MaxGradeLevel && len(jargon) == 0,
	}
}

// Simplify rewrites text by substituting every known jargon term with its
// plain-language replacement, preserving the casing of the first letter.
// It does not restructure sentences; callers re-Evaluate the result and fall
// back to template text if the grade is still too high.
func (v *Validator) Simplify(text string) string {
	return replaceJargon(text)
}

// GradeLevel computes the Flesch-Kincaid grade level of text:
//
//	0.39 × (words / sentences) + 11.8 × (syllables / words) − 15.59
//
// clamped at 0.  Empty or word-free text scores 0.
func GradeLevel(text string) float64 {
	words := splitWords(text)
	if len(words) == 0 {
		return 0
	}
	sentences := countSentences(text)
	if sentences == 0 {
		sentences = 1
	}

	syllables := 0
	for _, w := range words {
		syllables += CountSyllables(w)
	}

	grade := 0.39*(float64(len(words))/float64(sentences)) +
		11.8*(float64(syllables)/float64(len(words))) - 15.59
	if grade < 0 {
		return 0
	}
	return grade
}

// CountSyllables estimates the syllable count of a single word by counting
// vowel groups, discounting a trailing silent "e", with a floor of one.
func CountSyllables(word string) int {
	w := strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	if w == "" {
		return 0
	}

	count := 0
	prevVowel := false
	for _, r := range w {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	// Silent trailing "e" as in "take", but not "be".
	if strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") && count > 1 {
		count--
	}
	if count < 1 {
		count = 1
	}
	return count
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}

// splitWords returns the word tokens of text: maximal runs containing at
// least one letter.  Pure-number tokens like "500" are skipped; dose tokens
// like "500mg" count as one word.
func splitWords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	words := fields[:0]
	for _, f := range fields {
		if strings.IndexFunc(f, unicode.IsLetter) >= 0 {
			words = append(words, f)
		}
	}
	return words
}

// countSentences counts sentence terminators, treating consecutive
// terminators ("!!", "...") as one boundary.
func countSentences(text string) int {
	count := 0
	prevTerm := false
	for _, r := range text {
		term := r == '.' || r == '!' || r == '?'
		if term && !prevTerm {
			count++
		}
		prevTerm = term
	}
	return count
}
