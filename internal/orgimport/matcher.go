package orgimport

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var legalSuffixes = map[string]bool{
	"inc":          true,
	"incorporated": true,
	"corp":         true,
	"corporation":  true,
	"llc":          true,
	"ltd":          true,
	"limited":      true,
	"co":           true,
	"company":      true,
	"gmbh":         true,
	"plc":          true,
	"pty":          true,
	"llp":          true,
	"lp":           true,
	"sa":           true,
	"ag":           true,
	"bv":           true,
	"group":        true,
	"holdings":     true,
}

// foldName is the exact-match key: case folded with whitespace collapsed
func foldName(name string) string {
	return strings.Join(strings.Fields(cases.Fold().String(name)), " ")
}

// normalizeName is the fuzzy-match key.  Diacritics and punctuation are
// dropped and trailing legal suffixes stripped, keeping at least one word.
func normalizeName(name string) string {
	stripDiacritics := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(stripDiacritics, name)
	if err != nil {
		plain = name
	}

	plain = cases.Fold().String(plain)
	plain = strings.Map(func(r rune) rune {
		switch r {
		case '.', '\'', '’':
			return -1
		}
		return r
	}, plain)

	words := strings.FieldsFunc(plain, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}

	return strings.Join(words, " ")
}

// similarity scores two normalized names from 0 to 100
func similarity(a, b string) int {
	ra, rb := []rune(a), []rune(b)

	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}

	distance := levenshtein(ra, rb)
	return int(math.Round(100 * (1 - float64(distance)/float64(longest))))
}

func levenshtein(a, b []rune) int {
	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)

	for j := range previous {
		previous[j] = j
	}

	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[j] = min(previous[j]+1, current[j-1]+1, previous[j-1]+cost)
		}
		previous, current = current, previous
	}

	return previous[len(b)]
}
