package indexing

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/docspace/internal/docs/jobs"
	"github.com/Laisky/docspace/internal/docs/store"
)

func TestProcessIndexesShortDocument(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	content := "Alice scheduled a meeting about quarterly budgets."
	docID := env.createDocument(t, "tenant-a", content)

	scheduled, err := env.scheduler.Schedule(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.True(t, scheduled.Created)
	require.Equal(t, store.JobStatusQueued, env.latestJob(t, "tenant-a", docID).Status)

	outcome, err := env.processor(t, DefaultSettings()).Process(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, ReasonIndexed, outcome.Reason)
	require.Equal(t, 1, outcome.ChunkCount)

	require.Equal(t, 1, env.embedder.Calls())
	require.Equal(t, [][]string{{content}}, env.embedder.inputs)

	chunks, err := env.store.ListChunks(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, 0, chunks[0].Idx)
	require.Equal(t, content, chunks[0].Content)

	state, err := env.store.GetIndexState(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Equal(t, Fingerprint(content), state.LastChecksum)

	job := env.latestJob(t, "tenant-a", docID)
	require.Equal(t, store.JobStatusIndexed, job.Status)
	require.Equal(t, string(ReasonIndexed), job.Reason)
	require.Equal(t, scheduled.IndexJobID, job.ID)
}

func TestProcessEmptyContent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	docID := env.createDocument(t, "tenant-a", "")

	outcome, err := env.processor(t, DefaultSettings()).Process(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, ReasonEmptyContent, outcome.Reason)
	require.Zero(t, env.embedder.Calls())

	chunks, err := env.store.ListChunks(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Empty(t, chunks)

	job := env.latestJob(t, "tenant-a", docID)
	require.Equal(t, store.JobStatusIndexed, job.Status)
	require.Equal(t, string(ReasonEmptyContent), job.Reason)
}

func TestProcessClearsChunksWhenContentBecomesBlank(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.processor(t, DefaultSettings())
	docID := env.createDocument(t, "tenant-a", "some text worth indexing")

	_, err := p.Process(ctx, "tenant-a", docID)
	require.NoError(t, err)

	blank := "   "
	require.NoError(t, env.store.UpdateDocumentContent(ctx, "tenant-a", docID, "doc", &blank))
	outcome, err := p.Process(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, ReasonEmptyContent, outcome.Reason)

	chunks, err := env.store.ListChunks(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Empty(t, chunks)

	state, err := env.store.GetIndexState(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, Fingerprint(blank), state.LastChecksum)
	require.Zero(t, state.ChunkCount)
}

func TestProcessUnchangedDocumentTwice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.processor(t, DefaultSettings())
	docID := env.createDocument(t, "tenant-a", "Alice scheduled a meeting about quarterly budgets.")

	first, err := p.Process(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, ReasonIndexed, first.Reason)

	env.clock.Advance(time.Second)
	second, err := p.Process(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, ReasonAlreadyIndexed, second.Reason)
	require.Equal(t, 1, env.embedder.Calls())

	history, err := env.store.ListIndexJobs(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, string(ReasonAlreadyIndexed), history[1].Reason)
}

func TestProcessChunkLimitExceeded(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	content := strings.Repeat("abcdefghi ", 1200)
	docID := env.createDocument(t, "tenant-a", content)

	_, err := env.scheduler.Schedule(ctx, "tenant-a", docID)
	require.NoError(t, err)

	p := env.processor(t, Settings{ChunkSize: 1000, ChunkOverlap: 100, MaxChunks: 5})
	_, err = p.Process(ctx, "tenant-a", docID)
	require.Error(t, err)
	require.True(t, IsCode(err, ErrCodeChunkLimitExceeded))
	require.Contains(t, err.Error(), "chunk limit exceeded")
	require.True(t, jobs.IsPermanent(err))
	require.Zero(t, env.embedder.Calls())

	state, err := env.store.GetIndexState(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Nil(t, state)

	job := env.latestJob(t, "tenant-a", docID)
	require.Equal(t, store.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	require.Contains(t, *job.Error, "chunk limit exceeded")
	require.True(t, job.Permanent)
	require.Equal(t, Fingerprint(content), job.AttemptedChecksum)
}

func TestProcessChunkLimitLeavesPreviousStateUntouched(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	docID := env.createDocument(t, "tenant-a", "short")
	p := env.processor(t, Settings{ChunkSize: 1000, ChunkOverlap: 100, MaxChunks: 5})

	_, err := p.Process(ctx, "tenant-a", docID)
	require.NoError(t, err)

	long := strings.Repeat("abcdefghi ", 1200)
	require.NoError(t, env.store.UpdateDocumentContent(ctx, "tenant-a", docID, "doc", &long))
	_, err = p.Process(ctx, "tenant-a", docID)
	require.Error(t, err)

	state, err := env.store.GetIndexState(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, Fingerprint("short"), state.LastChecksum)

	chunks, err := env.store.ListChunks(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "short", chunks[0].Content)
}

func TestProcessTransientFailureThenRetry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.processor(t, DefaultSettings())
	docID := env.createDocument(t, "tenant-a", "retry me please")

	env.embedder.SetErr(errors.New("embedding service unavailable"))
	_, err := p.Process(ctx, "tenant-a", docID)
	require.Error(t, err)
	require.False(t, jobs.IsPermanent(err))

	job := env.latestJob(t, "tenant-a", docID)
	require.Equal(t, store.JobStatusFailed, job.Status)
	require.False(t, job.Permanent)
	require.Contains(t, *job.Error, "embedding service unavailable")

	state, err := env.store.GetIndexState(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Nil(t, state)

	env.embedder.SetErr(nil)
	env.clock.Advance(time.Second)
	outcome, err := p.Process(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, ReasonIndexed, outcome.Reason)

	history, err := env.store.ListIndexJobs(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, store.JobStatusFailed, history[0].Status)
	require.Equal(t, store.JobStatusIndexed, history[1].Status)
}

func TestProcessMissingDocumentIsPermanent(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.processor(t, DefaultSettings()).Process(context.Background(), "tenant-a", uuid.New())
	require.Error(t, err)
	require.True(t, IsCode(err, ErrCodeDocumentNotFound))
	require.True(t, jobs.IsPermanent(err))
}

func TestProcessReindexesChangedContent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.processor(t, DefaultSettings())
	docID := env.createDocument(t, "tenant-a", "first version")

	_, err := p.Process(ctx, "tenant-a", docID)
	require.NoError(t, err)

	updated := "second version"
	require.NoError(t, env.store.UpdateDocumentContent(ctx, "tenant-a", docID, "doc", &updated))
	outcome, err := p.Process(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, ReasonIndexed, outcome.Reason)
	require.Equal(t, 2, env.embedder.Calls())

	state, err := env.store.GetIndexState(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, Fingerprint(updated), state.LastChecksum)
}

func TestProcessConcurrentAttemptsStayConsistent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.processor(t, Settings{ChunkSize: 20, ChunkOverlap: 5})
	content := strings.Repeat("concurrent indexing ", 10)
	docID := env.createDocument(t, "tenant-a", content)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Process(ctx, "tenant-a", docID)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	state, err := env.store.GetIndexState(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, Fingerprint(content), state.LastChecksum)

	chunks, err := env.store.ListChunks(ctx, "tenant-a", docID)
	require.NoError(t, err)
	expected := ChunkText(content, 20, 5)
	require.Len(t, chunks, len(expected))
	require.Equal(t, len(expected), state.ChunkCount)
	for i, chunk := range chunks {
		require.Equal(t, expected[i].Text, chunk.Content)
	}
}

func TestHandleJobRejectsForeignPayload(t *testing.T) {
	env := newTestEnv(t)
	err := env.processor(t, DefaultSettings()).HandleJob(context.Background(), jobs.SyncStaleDocuments{})
	require.Error(t, err)
	require.True(t, jobs.IsPermanent(err))
}

func TestHandleJobIndexesPayload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	docID := env.createDocument(t, "tenant-a", "handled through the pool")

	err := env.processor(t, DefaultSettings()).HandleJob(ctx, jobs.IndexDocument{TenantID: "tenant-a", DocumentID: docID})
	require.NoError(t, err)
	require.Equal(t, store.JobStatusIndexed, env.latestJob(t, "tenant-a", docID).Status)
}
