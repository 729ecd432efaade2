package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenize lowercases text and splits it on anything that is not a letter or
// digit. Duplicates are dropped, first occurrence order is kept.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// IsMeaningful reports whether any token has at least minLength runes.
func IsMeaningful(tokens []string, minLength int) bool {
	for _, token := range tokens {
		if utf8.RuneCountInString(token) >= minLength {
			return true
		}
	}
	return false
}
