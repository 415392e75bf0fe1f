package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var ligatures = strings.NewReplacer(
	"œ", "oe",
	"Œ", "Oe",
	"æ", "ae",
	"Æ", "Ae",
)

// NormalizeName folds an ingredient name into the canonical lookup key used
// for catalog matching, aggregation grouping and conversion matching:
// ligatures expanded, diacritics stripped, lowercased, elisions expanded,
// whitespace collapsed. The function is idempotent, so already-normalized
// keys pass through unchanged.
func NormalizeName(raw string) string {
	// Ligatures first: NFD does not decompose œ/æ.
	s := ligatures.Replace(raw)

	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	s = b.String()

	s = strings.ReplaceAll(s, "d'", "de ")
	s = strings.ReplaceAll(s, "l'", "le ")

	return strings.Join(strings.Fields(s), " ")
}
