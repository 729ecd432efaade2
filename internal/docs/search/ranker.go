// Package search ranks a tenant's documents for a free-text query by fusing
// full-text and vector retrieval.
package search

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/docspace/internal/docs/embedding"
	"github.com/Laisky/docspace/internal/docs/store"
	"github.com/Laisky/docspace/library/log"
)

// snippetFetchConcurrency bounds concurrent neighbour chunk lookups per page.
const snippetFetchConcurrency = 4

// Query is one search request.
type Query struct {
	TenantID string
	Text     string
	Limit    int
	Offset   int
}

// Item is one ranked document.
type Item struct {
	DocumentID uuid.UUID `json:"documentId"`
	Title      string    `json:"title"`
	Snippet    string    `json:"snippet"`
	Score      float64   `json:"score"`
	Lexical    bool      `json:"lexical"`
	Semantic   bool      `json:"semantic"`
}

// Result is one page of ranked documents.
type Result struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
	// NoStrongMatches is set when documents were found but none reached the weak match floor.
	NoStrongMatches bool `json:"noStrongMatches"`
	// Degraded is set when one retrieval path failed and results come from the other.
	Degraded bool `json:"degraded"`
}

// Ranker runs hybrid search against the document store.
type Ranker struct {
	store    *store.Store
	embedder embedding.Embedder
	settings Settings
	logger   logSDK.Logger
}

// NewRanker constructs a ranker. A nil embedder searches lexically only.
func NewRanker(st *store.Store, embedder embedding.Embedder, settings Settings, logger logSDK.Logger) (*Ranker, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = log.Logger.Named("docs_search")
	}
	return &Ranker{
		store:    st,
		embedder: embedder,
		settings: settings.withDefaults(),
		logger:   logger,
	}, nil
}

// Search returns one page of the fused ranking.
//
// Queries without a token of at least MinTokenLength runes return an empty
// result without touching the store or the embedder.
func (r *Ranker) Search(ctx context.Context, q Query) (Result, error) {
	if strings.TrimSpace(q.TenantID) == "" {
		return Result{}, errors.WithStack(NewError(ErrCodeInvalidQuery, "tenant id is required", false))
	}
	tokens := Tokenize(q.Text)
	if !IsMeaningful(tokens, r.settings.MinTokenLength) {
		return Result{Items: []Item{}}, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = r.settings.LimitDefault
	}
	if limit > r.settings.LimitMax {
		limit = r.settings.LimitMax
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	logger := log.FromContext(ctx, r.logger).With(zap.String("tenant_id", q.TenantID))

	var (
		lexical     store.LexicalResult
		semantic    []store.SearchCandidate
		lexicalErr  error
		semanticErr error
		g           errgroup.Group
	)
	g.Go(func() error {
		lexical, lexicalErr = r.store.LexicalSearch(ctx, store.LexicalQuery{
			TenantID:        q.TenantID,
			Terms:           tokens,
			PrefixMinLength: r.settings.PrefixMinLength,
			Limit:           r.settings.LexicalCandidates,
		})
		return nil
	})
	g.Go(func() error {
		semantic, semanticErr = r.semanticCandidates(ctx, q.TenantID, q.Text)
		return nil
	})
	_ = g.Wait()

	if lexicalErr != nil && semanticErr != nil {
		logger.Warn("all search backends failed",
			zap.NamedError("lexical_error", lexicalErr),
			zap.NamedError("semantic_error", semanticErr))
		return Result{}, errors.WithStack(NewError(ErrCodeSearchBackend, "search backends unavailable", true))
	}

	weights := r.settings.Weights()
	result := Result{}
	switch {
	case semanticErr != nil:
		logger.Warn("semantic retrieval failed, searching lexically only", zap.Error(semanticErr))
		result.Degraded = true
		weights = Weights{Lexical: 1}
	case lexicalErr != nil:
		logger.Warn("lexical retrieval failed, searching semantically only", zap.Error(lexicalErr))
		result.Degraded = true
		weights = Weights{Semantic: 1}
	}

	fused := Fuse(lexical.Hits, semantic, weights)
	result.Total = len(fused)
	if beyond := lexical.Total - len(lexical.Hits); beyond > 0 {
		result.Total += beyond
	}
	result.NoStrongMatches = len(fused) > 0 && fused[0].Score < r.settings.WeakMatchFloor

	page := paginate(fused, offset, limit)
	items, err := r.buildItems(ctx, logger, q.TenantID, page)
	if err != nil {
		return Result{}, errors.WithStack(err)
	}
	result.Items = items

	logger.Debug("search finished",
		zap.Int("lexical_hits", len(lexical.Hits)),
		zap.Int("semantic_hits", len(semantic)),
		zap.Int("fused", len(fused)),
		zap.Int("returned", len(items)),
		zap.Bool("degraded", result.Degraded))
	return result, nil
}

func (r *Ranker) semanticCandidates(ctx context.Context, tenantID, text string) ([]store.SearchCandidate, error) {
	if r.embedder == nil {
		return nil, NewError(ErrCodeSearchBackend, "embedder not configured", false)
	}
	vectors, err := r.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}
	if len(vectors) == 0 {
		return nil, NewError(ErrCodeSearchBackend, "embed query returned no vectors", true)
	}
	candidates, err := r.store.NearestChunks(ctx, tenantID, vectors[0], r.settings.VectorCandidates)
	if err != nil {
		return nil, errors.Wrap(err, "nearest chunks")
	}
	return candidates, nil
}

// buildItems resolves snippets for one page. Semantic-only hits are expanded
// with their neighbour chunks.
func (r *Ranker) buildItems(ctx context.Context, logger logSDK.Logger, tenantID string, page []Fused) ([]Item, error) {
	items := make([]Item, len(page))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snippetFetchConcurrency)
	for i, f := range page {
		items[i] = Item{
			DocumentID: f.DocumentID,
			Title:      f.Title,
			Score:      f.Score,
			Lexical:    f.Lexical,
			Semantic:   f.Semantic,
			Snippet:    f.Headline,
		}
		if strings.TrimSpace(f.Headline) != "" || !f.Semantic {
			continue
		}

		g.Go(func() error {
			items[i].Snippet = r.contextSnippet(gctx, logger, tenantID, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "build snippets")
	}
	return items, nil
}

// contextSnippet joins the best chunk with ContextWindow neighbours on each side.
func (r *Ranker) contextSnippet(ctx context.Context, logger logSDK.Logger, tenantID string, f Fused) string {
	from := f.BestIdx - r.settings.ContextWindow
	to := f.BestIdx + r.settings.ContextWindow
	if f.TotalChunks > 0 && to > f.TotalChunks-1 {
		to = f.TotalChunks - 1
	}

	chunks, err := r.store.ChunkWindow(ctx, tenantID, f.DocumentID, from, to)
	if err != nil || len(chunks) == 0 {
		if err != nil {
			logger.Debug("load neighbour chunks, using best chunk only",
				zap.String("document_id", f.DocumentID.String()),
				zap.Error(err))
		}
		return Truncate(f.BestContent, r.settings.SnippetMaxChars)
	}

	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Content)
	}
	return Truncate(JoinChunks(texts), r.settings.SnippetMaxChars)
}

func paginate(fused []Fused, offset, limit int) []Fused {
	if offset >= len(fused) {
		return nil
	}
	end := offset + limit
	if end > len(fused) {
		end = len(fused)
	}
	return fused[offset:end]
}
