// Package matching implements the string-similarity primitives used to score
// terminology candidates against OCR-extracted drug names.
package matching

import (
	"strings"
	"unicode"
)

// Distance computes the Levenshtein edit distance between a and b, operating
// on runes so accented characters count as single edits.  Uses the two-row
// dynamic programming formulation.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity returns a confidence score in [0, 1] for how closely candidate
// matches query: 1 - distance/maxLen, computed over normalised forms.
// Identical strings (after normalisation) score 1.0; entirely dissimilar
// strings approach 0.
func Similarity(query, candidate string) float64 {
	q, c := Normalize(query), Normalize(candidate)
	if q == c {
		return 1.0
	}
	maxLen := len([]rune(q))
	if l := len([]rune(c)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	d := Distance(q, c)
	return 1.0 - float64(d)/float64(maxLen)
}

// Normalize lowercases s, trims surrounding whitespace, and strips characters
// that OCR commonly injects into drug names (periods, commas, stray marks).
// Interior spaces and hyphens are preserved since combination products use
// them meaningfully.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '/':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BestMatch scores every candidate against query and returns the index and
// similarity of the best one.  Returns index -1 when candidates is empty.
// Ties keep the earliest candidate, preserving the terminology service's own
// relevance ordering.
func BestMatch(query string, candidates []string) (int, float64) {
	best, bestScore := -1, -1.0
	for i, c := range candidates {
		if score := Similarity(query, c); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best == -1 {
		return -1, 0
	}
	return best, bestScore
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
