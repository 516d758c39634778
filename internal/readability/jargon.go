package readability

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// jargonReplacements maps medical jargon (lowercase) to plain-language
// substitutes.  Multi-word terms are matched before their single-word
// prefixes.  The table is intentionally conservative: a term belongs here
// only when its replacement is safe in any sentence position.
var jargonReplacements = map[string]string{
	"hypertension":       "high blood pressure",
	"hypotension":        "low blood pressure",
	"hyperglycemia":      "high blood sugar",
	"hypoglycemia":       "low blood sugar",
	"myocardial":         "heart",
	"infarction":         "attack",
	"analgesic":          "pain reliever",
	"antipyretic":        "fever reducer",
	"anticoagulant":      "blood thinner",
	"antihypertensive":   "blood pressure medicine",
	"contraindicated":    "not safe to use",
	"contraindication":   "reason not to use",
	"subcutaneous":       "under the skin",
	"intravenous":        "into a vein",
	"intramuscular":      "into a muscle",
	"prophylaxis":        "prevention",
	"prophylactic":       "preventive",
	"renal":              "kidney",
	"hepatic":            "liver",
	"cardiac":            "heart",
	"pulmonary":          "lung",
	"gastrointestinal":   "stomach and gut",
	"edema":              "swelling",
	"pruritus":           "itching",
	"dyspnea":            "trouble breathing",
	"syncope":            "fainting",
	"somnolence":         "sleepiness",
	"titrate":            "adjust slowly",
	"titration":          "slow adjustment",
	"bioavailability":    "how much gets absorbed",
	"nephrotoxicity":     "kidney damage",
	"hepatotoxicity":     "liver damage",
	"ototoxicity":        "hearing damage",
	"bradycardia":        "slow heartbeat",
	"tachycardia":        "fast heartbeat",
	"hyperkalemia":       "high potassium",
	"hypokalemia":        "low potassium",
	"twice daily":        "two times a day",
	"thrice daily":       "three times a day",
	"with concomitant":   "along with",
	"concomitant":        "at the same time",
	"adverse effect":     "side effect",
	"adverse reaction":   "bad reaction",
	"serotonin syndrome": "a dangerous reaction",
}

// jargonTerms is the replacement table's key set sorted longest-first so
// multi-word terms match before their components.
var jargonTerms = func() []string {
	terms := make([]string, 0, len(jargonReplacements))
	for t := range jargonReplacements {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})
	return terms
}()

// FindJargon returns every jargon term present in text, in table order,
// without duplicates.  Matching is case-insensitive and respects word
// boundaries ("renal" does not match inside "adrenaline").
func FindJargon(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, term := range jargonTerms {
		if containsWord(lower, term) {
			found = append(found, term)
		}
	}
	return found
}

// replaceJargon substitutes every jargon occurrence in text with its plain
// replacement, longest terms first.
func replaceJargon(text string) string {
	for _, term := range jargonTerms {
		text = replaceWord(text, term, jargonReplacements[term])
	}
	return text
}

// containsWord reports whether lower contains term at a word boundary.
func containsWord(lower, term string) bool {
	for start := 0; ; {
		i := strings.Index(lower[start:], term)
		if i < 0 {
			return false
		}
		i += start
		if boundaryAt(lower, i, len(term)) {
			return true
		}
		start = i + 1
	}
}

// replaceWord replaces each boundary-respecting, case-insensitive occurrence
// of term in text with repl.
func replaceWord(text, term, repl string) string {
	lower := strings.ToLower(text)
	var b strings.Builder
	start := 0
	for {
		i := strings.Index(lower[start:], term)
		if i < 0 {
			break
		}
		i += start
		if !boundaryAt(lower, i, len(term)) {
			b.WriteString(text[start : i+1])
			start = i + 1
			continue
		}
		b.WriteString(text[start:i])
		b.WriteString(matchCase(text[i:i+len(term)], repl))
		start = i + len(term)
	}
	b.WriteString(text[start:])
	return b.String()
}

// boundaryAt reports whether the [i, i+n) slice of s sits on word boundaries.
// Neighbouring runes are decoded properly so multibyte characters count as
// the letters they are.
func boundaryAt(s string, i, n int) bool {
	if i > 0 {
		prev, _ := utf8.DecodeLastRuneInString(s[:i])
		if unicode.IsLetter(prev) || unicode.IsDigit(prev) {
			return false
		}
	}
	if end := i + n; end < len(s) {
		next, _ := utf8.DecodeRuneInString(s[end:])
		if unicode.IsLetter(next) || unicode.IsDigit(next) {
			return false
		}
	}
	return true
}

// matchCase capitalises repl when the original match was capitalised.
func matchCase(original, repl string) string {
	if original == "" || repl == "" {
		return repl
	}
	if unicode.IsUpper(rune(original[0])) {
		return strings.ToUpper(repl[:1]) + repl[1:]
	}
	return repl
}
