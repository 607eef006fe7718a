package store

import (
	"strings"
	"unicode"
)

// Tokenizer splits natural-language text into lowercased index terms,
// dropping stop words and tokens below the minimum length. Both index
// backends share it so a query tokenizes identically everywhere.
type Tokenizer struct {
	minLength int
	stopWords map[string]struct{}
}

// NewTokenizer builds a tokenizer from the shared index configuration.
func NewTokenizer(cfg TextIndexConfig) *Tokenizer {
	minLength := cfg.MinTokenLength
	if minLength <= 0 {
		minLength = 2
	}

	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}

	return &Tokenizer{minLength: minLength, stopWords: stop}
}

// Tokenize returns the index terms for text, in order of appearance.
// Unicode letters and digits form tokens; everything else separates.
func (t *Tokenizer) Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		token := strings.ToLower(current.String())
		current.Reset()
		if len(token) < t.minLength {
			return
		}
		if _, stopped := t.stopWords[token]; stopped {
			return
		}
		tokens = append(tokens, token)
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()

	return tokens
}

// IsStopWord reports whether the lowercased word is filtered.
func (t *Tokenizer) IsStopWord(word string) bool {
	_, ok := t.stopWords[strings.ToLower(word)]
	return ok
}
