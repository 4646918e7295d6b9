package sentiment

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	apostropheChars = regexp.MustCompile(`['\x{2019}]`)
	nonTokenChars   = regexp.MustCompile(`[^\pL\pN\s]+`)
)

// Splits free-form text in to tokens, including lower-case, unicode
// normalization, and some unicode folding.
//
// The intent is for this to work similarly to an NLP tokenizer and enable
// fast matching against the valence lexicon.
func TokenizeText(text string) []string {
	// this function needs to be re-defined in every function call to prevent a race condition
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	// contractions keep their token shape ("don't" -> "dont") so negation
	// lookups still hit
	stripped := apostropheChars.ReplaceAllString(text, "")
	bare := strings.ToLower(nonTokenChars.ReplaceAllString(stripped, " "))
	folded, _, err := transform.String(normFunc, bare)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		folded = bare
	}
	return strings.Fields(folded)
}
