package badger

import (
	"strings"

	"github.com/halcyard/fuselage/core"
)

// Stop words filtered out during tokenization
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation,
// and removes stop words. Ingestion and query use this same function, so a
// query term can only miss a chunk that never produced the term.
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))

		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// termVectorOf reduces text to hashed term frequencies.
func termVectorOf(text string) core.TermVector {
	tokens := tokenizeAndFilter(text)
	if len(tokens) == 0 {
		return nil
	}
	tv := make(core.TermVector, len(tokens))
	for _, token := range tokens {
		tv[core.IDFromContent(token)]++
	}
	return tv
}
