package search

import (
	"strings"
	"unicode/utf8"
)

// minJoinOverlap is the shortest shared run treated as chunk overlap.
const minJoinOverlap = 8

// JoinChunks concatenates adjacent chunks in order, dropping the text each
// chunk repeats from the end of the previous one.
func JoinChunks(chunks []string) string {
	var b strings.Builder
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(chunk)
			continue
		}
		prev := b.String()
		if n := overlapLength(prev, chunk); n > 0 {
			b.WriteString(chunk[n:])
			continue
		}
		b.WriteByte(' ')
		b.WriteString(chunk)
	}
	return b.String()
}

// overlapLength returns the byte length of the longest suffix of prev that is
// a prefix of next, or 0 when it is shorter than minJoinOverlap.
func overlapLength(prev, next string) int {
	limit := len(next)
	if len(prev) < limit {
		limit = len(prev)
	}
	for n := limit; n >= minJoinOverlap; n-- {
		if n < len(next) && !utf8.RuneStart(next[n]) {
			continue
		}
		if strings.HasSuffix(prev, next[:n]) {
			return n
		}
	}
	return 0
}

// Truncate cuts text to at most maxChars runes, appending an ellipsis when cut.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxChars])) + "…"
}
