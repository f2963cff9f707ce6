// Package tokenizer turns text into the normalized term stream shared by
// the ingest and query paths. Both paths must use the identical configured
// instance: a posting written under one normalization is unreachable under
// another.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// DefaultMaxTokenLen is the longest token kept, in bytes. Longer tokens
// are dropped, not truncated.
const DefaultMaxTokenLen = 40

// Tokenizer converts text into an ordered sequence of normalized tokens.
type Tokenizer interface {
	Tokenize(text string) []string
}

// English is the default tokenizer: a Unicode-aware simple splitter, a
// long-token filter, lowercasing, and an English snowball stemmer.
type English struct {
	maxTokenLen int
}

// NewEnglish creates the default English tokenizer.
func NewEnglish() *English {
	return &English{maxTokenLen: DefaultMaxTokenLen}
}

// Tokenize splits text on every rune that is neither a letter nor a digit,
// drops tokens longer than the length limit, lowercases, and stems.
func (e *English) Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > e.maxTokenLen {
			continue
		}
		tokens = append(tokens, english.Stem(strings.ToLower(f), false))
	}
	return tokens
}

// Frequencies groups an ordered token stream into (token, count) pairs.
// On the ingest path the counts are per-document term frequencies; on the
// query path they are the score multipliers for repeated query tokens.
func Frequencies(tokens []string) map[string]uint64 {
	freqs := make(map[string]uint64, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	return freqs
}
