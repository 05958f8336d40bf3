// Package sparse implements the lexical half of hybrid retrieval: a
// normalizing tokenizer, a bounded vocabulary built per corpus snapshot,
// and a BM25 scorer over an inverted index.
package sparse

import (
	"regexp"
	"strings"
)

const (
	// MaxInputChars bounds tokenizer input; longer text is truncated, not rejected.
	MaxInputChars = 1_000_000

	minTokenLen = 3
)

var (
	wordPattern    = regexp.MustCompile(`[a-z0-9]+`)
	numericPattern = regexp.MustCompile(`^[0-9]+$`)

	// Bitcoin-style (base58/bech32) and EVM-style addresses. Pasted payment
	// addresses carry no lexical signal and would pollute the vocabulary.
	// Matching happens after lowercasing, so the base58 alphabet collapses
	// onto plain [a-z0-9].
	addressPattern = regexp.MustCompile(`^(?:bc1[a-z0-9]{20,}|[13][a-z0-9]{24,}|0x[a-f0-9]{38,})$`)
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "had": {}, "has": {}, "have": {}, "his": {},
	"how": {}, "its": {}, "may": {}, "who": {}, "will": {}, "with": {},
	"this": {}, "that": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"does": {}, "from": {}, "they": {}, "been": {}, "were": {}, "there": {},
	"their": {}, "would": {}, "could": {}, "should": {}, "about": {},
	"into": {}, "than": {}, "then": {}, "them": {}, "these": {}, "those": {},
	"some": {}, "such": {}, "only": {}, "over": {}, "also": {}, "your": {},
}

// Tokenize normalizes text into the ordered token sequence used for both
// indexing and querying: lowercase, word extraction, stopword removal,
// short/numeric/address token filtering. Oversized input is truncated at
// MaxInputChars.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) > MaxInputChars {
		text = text[:MaxInputChars]
	}

	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < minTokenLen {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if numericPattern.MatchString(w) {
			continue
		}
		if addressPattern.MatchString(w) {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}
