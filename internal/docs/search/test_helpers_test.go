package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Laisky/docspace/internal/docs/embedding"
	"github.com/Laisky/docspace/internal/docs/store"
	"github.com/Laisky/docspace/library/log"
)

// stubEmbedder returns the same query vector for every input.
type stubEmbedder struct {
	mu     sync.Mutex
	vector []float32
	err    error
	calls  int
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, inputs []string) ([]pgvector.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]pgvector.Vector, 0, len(inputs))
	for range inputs {
		out = append(out, pgvector.NewVector(s.vector))
	}
	return out, nil
}

func (s *stubEmbedder) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestStore(t *testing.T) *store.Store {
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", t.Name(), time.Now().UTC().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, store.RunMigrations(context.Background(), db, 0, log.Logger.Named("test")))
	st, err := store.New(db, log.Logger.Named("test"), nil)
	require.NoError(t, err)
	return st
}

type seedChunk struct {
	text      string
	embedding []float32
}

// seedDocument stores a document whose content is its chunks joined by spaces.
func seedDocument(t *testing.T, st *store.Store, tenantID, title string, chunks ...seedChunk) uuid.UUID {
	ctx := context.Background()
	texts := make([]string, 0, len(chunks))
	rows := make([]store.Chunk, 0, len(chunks))
	for i, c := range chunks {
		texts = append(texts, c.text)
		rows = append(rows, store.Chunk{Idx: i, Content: c.text, Embedding: pgvector.NewVector(c.embedding)})
	}
	content := strings.Join(texts, " ")
	doc, err := st.CreateDocument(ctx, tenantID, title, &content)
	require.NoError(t, err)
	require.NoError(t, st.ReplaceChunks(ctx, store.ReplaceChunksInput{
		TenantID:      tenantID,
		DocumentID:    doc.ID,
		SourceContent: content,
		Checksum:      fmt.Sprintf("seed-%s", doc.ID),
		Chunks:        rows,
	}))
	return doc.ID
}

func newTestRanker(t *testing.T, st *store.Store, embedder embedding.Embedder) *Ranker {
	ranker, err := NewRanker(st, embedder, DefaultSettings(), log.Logger.Named("test"))
	require.NoError(t, err)
	return ranker
}
