package indexing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Laisky/docspace/internal/docs/jobs"
	"github.com/Laisky/docspace/internal/docs/store"
	"github.com/Laisky/docspace/library/log"
)

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubEmbedder returns a two dimensional vector per input and counts calls.
type stubEmbedder struct {
	mu     sync.Mutex
	calls  int
	inputs [][]string
	err    error
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, inputs []string) ([]pgvector.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.inputs = append(s.inputs, append([]string(nil), inputs...))
	if s.err != nil {
		return nil, s.err
	}
	out := make([]pgvector.Vector, 0, len(inputs))
	for _, input := range inputs {
		out = append(out, pgvector.NewVector([]float32{float32(len(input)), 1}))
	}
	return out, nil
}

func (s *stubEmbedder) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubEmbedder) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type testEnv struct {
	store     *store.Store
	queue     *jobs.Queue
	scheduler *Scheduler
	embedder  *stubEmbedder
	clock     *testClock
}

// newTestEnv migrates the document store and the job queue into one sqlite database.
func newTestEnv(t *testing.T) *testEnv {
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", t.Name(), time.Now().UTC().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	logger := log.Logger.Named("test")
	require.NoError(t, store.RunMigrations(ctx, db, 0, logger))
	require.NoError(t, jobs.RunMigrations(ctx, db))

	clock := &testClock{now: time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)}
	st, err := store.New(db, logger, clock.Now)
	require.NoError(t, err)
	queue, err := jobs.NewQueue(db, jobs.DefaultSettings(), logger, clock.Now)
	require.NoError(t, err)
	scheduler, err := NewScheduler(st, queue)
	require.NoError(t, err)

	return &testEnv{
		store:     st,
		queue:     queue,
		scheduler: scheduler,
		embedder:  &stubEmbedder{},
		clock:     clock,
	}
}

func (e *testEnv) processor(t *testing.T, settings Settings) *Processor {
	p, err := NewProcessor(e.store, e.embedder, settings, log.Logger.Named("test"))
	require.NoError(t, err)
	return p
}

func (e *testEnv) createDocument(t *testing.T, tenantID, content string) uuid.UUID {
	doc, err := e.store.CreateDocument(context.Background(), tenantID, "doc", &content)
	require.NoError(t, err)
	return doc.ID
}

func (e *testEnv) latestJob(t *testing.T, tenantID string, documentID uuid.UUID) *store.IndexJob {
	job, err := e.store.LatestIndexJob(context.Background(), tenantID, documentID)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}
