package indexing

import (
	"strings"
)

const (
	// DefaultChunkSize is the window width in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is how many characters consecutive windows share.
	DefaultChunkOverlap = 100
)

// Chunk is one trimmed window of a document.
type Chunk struct {
	Idx  int
	Text string
	// Start and End are the rune offsets of the untrimmed window.
	Start int
	End   int
}

// ChunkText splits text into overlapping windows of chunkSize runes.
//
// chunkSize is raised to at least 1 and overlap is clamped to [0, chunkSize-1].
// Whitespace-only windows are skipped, so Idx stays contiguous from 0.
func ChunkText(text string, chunkSize, overlap int) []Chunk {
	if text == "" {
		return nil
	}
	if chunkSize < 1 {
		chunkSize = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > chunkSize-1 {
		overlap = chunkSize - 1
	}

	runes := []rune(text)
	length := len(runes)
	var chunks []Chunk
	start := 0
	for start < length {
		end := start + chunkSize
		if end > length {
			end = length
		}
		if trimmed := strings.TrimSpace(string(runes[start:end])); trimmed != "" {
			chunks = append(chunks, Chunk{
				Idx:   len(chunks),
				Text:  trimmed,
				Start: start,
				End:   end,
			})
		}
		if start+chunkSize >= length {
			break
		}

		next := start + chunkSize - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
