package search

import (
	"sort"

	"github.com/google/uuid"

	"github.com/Laisky/docspace/internal/docs/store"
)

// Weights blends the two retrieval signals. They are normalised to sum to 1.
type Weights struct {
	Lexical  float64
	Semantic float64
}

func (w Weights) normalized() Weights {
	if w.Lexical < 0 {
		w.Lexical = 0
	}
	if w.Semantic < 0 {
		w.Semantic = 0
	}
	sum := w.Lexical + w.Semantic
	if sum == 0 {
		return Weights{Lexical: 0.5, Semantic: 0.5}
	}
	return Weights{Lexical: w.Lexical / sum, Semantic: w.Semantic / sum}
}

// Fused is one document after fusion.
type Fused struct {
	DocumentID uuid.UUID
	Title      string
	Score      float64
	// LexicalScore is the lexical rank divided by the best lexical rank.
	LexicalScore float64
	// Similarity is 1 - cosine distance of the best chunk, clamped to [0, 1].
	Similarity float64
	Lexical    bool
	Semantic   bool
	// Headline is the lexical snippet, empty for semantic-only hits.
	Headline    string
	BestIdx     int
	BestContent string
	TotalChunks int
}

// Fuse merges lexical hits and semantic candidates into one list keyed by
// document, scored by a weighted sum and sorted by score descending.
//
// Ties prefer documents found by both paths, then the smaller document id.
func Fuse(lexical []store.LexicalHit, semantic []store.SearchCandidate, weights Weights) []Fused {
	w := weights.normalized()

	var maxLexical float64
	for _, hit := range lexical {
		if hit.Score > maxLexical {
			maxLexical = hit.Score
		}
	}

	byDoc := make(map[uuid.UUID]*Fused, len(lexical)+len(semantic))
	order := make([]uuid.UUID, 0, len(lexical)+len(semantic))
	get := func(id uuid.UUID, title string) *Fused {
		if f, ok := byDoc[id]; ok {
			return f
		}
		f := &Fused{DocumentID: id, Title: title}
		byDoc[id] = f
		order = append(order, id)
		return f
	}

	for _, hit := range lexical {
		f := get(hit.DocumentID, hit.Title)
		norm := 1.0
		if maxLexical > 0 {
			norm = hit.Score / maxLexical
		}
		if f.Lexical && norm <= f.LexicalScore {
			continue
		}
		f.Lexical = true
		f.LexicalScore = norm
		f.Headline = hit.Snippet
	}

	for _, candidate := range semantic {
		f := get(candidate.DocumentID, candidate.Title)
		similarity := clamp01(1 - candidate.Distance)
		if f.Semantic && similarity <= f.Similarity {
			continue
		}
		f.Semantic = true
		f.Similarity = similarity
		f.BestIdx = candidate.Idx
		f.BestContent = candidate.Content
		f.TotalChunks = candidate.TotalChunks
	}

	out := make([]Fused, 0, len(order))
	for _, id := range order {
		f := byDoc[id]
		f.Score = w.Lexical*f.LexicalScore + w.Semantic*f.Similarity
		out = append(out, *f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		bi := out[i].Lexical && out[i].Semantic
		bj := out[j].Lexical && out[j].Semantic
		if bi != bj {
			return bi
		}
		return out[i].DocumentID.String() < out[j].DocumentID.String()
	})
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
