package sparse

import (
	"strings"
	"testing"
)

func TestTokenizeNormalizationInvariants(t *testing.T) {
	input := "How does Bisq Easy handle Reputation, BTC payouts & 12345 limits? bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	tokens := Tokenize(input)
	if len(tokens) == 0 {
		t.Fatalf("expected tokens, got none")
	}
	for _, tok := range tokens {
		if len(tok) < 3 {
			t.Fatalf("token %q shorter than 3 chars", tok)
		}
		if tok != strings.ToLower(tok) {
			t.Fatalf("token %q not lowercase", tok)
		}
		if numericPattern.MatchString(tok) {
			t.Fatalf("pure-numeric token %q survived", tok)
		}
		if addressPattern.MatchString(tok) {
			t.Fatalf("address-like token %q survived", tok)
		}
	}
}

func TestTokenizeDropsStopwordsAndAddresses(t *testing.T) {
	tokens := Tokenize("the wallet that they have 1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2")
	for _, tok := range tokens {
		switch tok {
		case "the", "that", "they", "have":
			t.Fatalf("stopword %q survived", tok)
		}
		if strings.HasPrefix(tok, "1bvbmse") {
			t.Fatalf("legacy address token %q survived", tok)
		}
	}
	found := false
	for _, tok := range tokens {
		if tok == "wallet" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected wallet token, got %v", tokens)
	}
}

func TestTokenizeIdempotent(t *testing.T) {
	first := Tokenize("Mediation and arbitration rules for Bisq Easy trades")
	second := Tokenize(strings.Join(first, " "))
	if len(first) != len(second) {
		t.Fatalf("re-tokenization changed length: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("re-tokenization changed token %d: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestTokenizeTruncatesOversizedInput(t *testing.T) {
	huge := strings.Repeat("mediation ", MaxInputChars/5)
	tokens := Tokenize(huge)
	if len(tokens) == 0 {
		t.Fatalf("expected tokens from truncated input")
	}
	// Truncation keeps roughly MaxInputChars/10 occurrences of the word.
	if len(tokens) > MaxInputChars {
		t.Fatalf("token count %d suggests no truncation", len(tokens))
	}
}

func TestTokenizeEmptyAndNoiseInput(t *testing.T) {
	if got := Tokenize(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	if got := Tokenize("!!! ... 42 7 --"); len(got) != 0 {
		t.Fatalf("expected no tokens from noise, got %v", got)
	}
}
