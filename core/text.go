package core

import "strings"

// Stop words to filter out when extracting index terms
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "what": true, "does": true, "my": true,
}

// Terms splits text into lowercased words, trims punctuation and removes stop words.
func Terms(text string) []string {
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

// QueryTerms returns the whitespace-separated query words longer than
// three characters, lowercased, in query order.
func QueryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) > 3 {
			terms = append(terms, strings.ToLower(w))
		}
	}
	return terms
}
