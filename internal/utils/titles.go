package utils

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeTitle folds a film title for comparison: lowercase, diacritics
// stripped, punctuation removed, whitespace collapsed
func NormalizeTitle(title string) string {
	folded, _, err := transform.String(stripMarks, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

// TitleSimilarity scores two titles between 0 and 1 using normalized
// Levenshtein distance. Identical normalized titles score 1.
func TitleSimilarity(a, b string) float64 {
	na := NormalizeTitle(a)
	nb := NormalizeTitle(b)

	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}

	dist := levenshtein.ComputeDistance(na, nb)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}

	return 1 - float64(dist)/float64(longest)
}
