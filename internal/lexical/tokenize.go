// Package lexical implements the TF-IDF index: tokenization, full and
// incremental construction, query scoring, and the serialized form
// stored in the index cache.
package lexical

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenize case-normalizes text and splits it on non-alphanumeric
// boundaries, dropping tokens shorter than minLen runes. Query and
// document tokenization must use the same minLen or scores silently
// miss terms.
func Tokenize(text string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	kept := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= minLen {
			kept = append(kept, f)
		}
	}
	return kept
}

// Snippet returns a whitespace-normalized prefix of content for result
// display, at most maxRunes runes, cut at a word boundary when one is
// available.
func Snippet(content string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	s := strings.Join(strings.Fields(content), " ")
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	cut := string(runes[:maxRunes])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut
}
