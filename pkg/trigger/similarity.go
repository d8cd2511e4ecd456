package trigger

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Tokenize lowercases text, strips punctuation, and splits on whitespace.
// Letters, numbers, combining marks and underscores are word characters;
// every other non-space rune is dropped without splitting, so "don't"
// becomes "dont".
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	// Casers hold state; build one per call instead of sharing.
	lowered := cases.Lower(language.Und).String(norm.NFKC.String(text))

	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range lowered {
		switch {
		case unicode.IsSpace(r):
			flush()
		case isWord(r):
			b.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// isWord reports whether r survives punctuation stripping.
func isWord(r rune) bool {
	return unicode.IsLetter(r) ||
		unicode.IsNumber(r) ||
		unicode.In(r, unicode.Mn, unicode.Pc)
}

// termFrequencies counts occurrences of each token.
func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

// CosineSimilarity computes the cosine similarity between the term-frequency
// vectors of two token sequences. It returns 0 when either sequence is empty.
func CosineSimilarity(a, b []string) float64 {
	tfA := termFrequencies(a)
	tfB := termFrequencies(b)

	var dotProduct, normA, normB float64
	for term, ca := range tfA {
		fa := float64(ca)
		normA += fa * fa
		if cb, ok := tfB[term]; ok {
			dotProduct += fa * float64(cb)
		}
	}
	for _, cb := range tfB {
		fb := float64(cb)
		normB += fb * fb
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
