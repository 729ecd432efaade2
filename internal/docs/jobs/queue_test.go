package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDedupesActiveJobs(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, DefaultSettings())
	payload := IndexDocument{TenantID: "t1", DocumentID: uuid.New()}

	first, err := q.Enqueue(ctx, payload, EnqueueOptions{DedupeKey: "doc-1"})
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := q.Enqueue(ctx, payload, EnqueueOptions{DedupeKey: "doc-1"})
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.JobID, second.JobID)

	claimed, err := q.Claim(ctx, TypeIndexDocument, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// still deduped while processing
	third, err := q.Enqueue(ctx, payload, EnqueueOptions{DedupeKey: "doc-1"})
	require.NoError(t, err)
	require.False(t, third.Created)

	require.NoError(t, q.Complete(ctx, claimed[0]))

	fourth, err := q.Enqueue(ctx, payload, EnqueueOptions{DedupeKey: "doc-1"})
	require.NoError(t, err)
	require.True(t, fourth.Created)
	require.NotEqual(t, first.JobID, fourth.JobID)
}

func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	q, _ := newTestQueue(t, DefaultSettings())
	_, err := q.Enqueue(context.Background(), IndexDocument{TenantID: "t1"}, EnqueueOptions{})
	require.Error(t, err)
	_, err = q.Enqueue(context.Background(), nil, EnqueueOptions{})
	require.Error(t, err)
}

func TestClaimHonorsDelayAndType(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue(t, DefaultSettings())

	_, err := q.Enqueue(ctx, SendReminder{TenantID: "t1", DocumentCommandID: uuid.New()}, EnqueueOptions{Delay: time.Hour})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, SyncStaleDocuments{}, EnqueueOptions{})
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, TypeSendReminder, 10)
	require.NoError(t, err)
	require.Empty(t, claimed)

	clock.Advance(time.Hour)
	claimed, err = q.Claim(ctx, TypeSendReminder, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, StatusProcessing, claimed[0].Status)
	require.Equal(t, 1, claimed[0].Attempts)

	claimed, err = q.Claim(ctx, TypeSendReminder, 10)
	require.NoError(t, err)
	require.Empty(t, claimed)
}

func TestFailRetriesWithBackoffThenFails(t *testing.T) {
	ctx := context.Background()
	settings := DefaultSettings()
	settings.MaxAttempts = 2
	settings.RetryBackoff = time.Second
	q, clock := newTestQueue(t, settings)
	sink := &recordingSink{}
	q.SetEventSink(sink)

	res, err := q.Enqueue(ctx, SyncStaleDocuments{}, EnqueueOptions{})
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, TypeSyncStaleDocuments, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, q.Fail(ctx, claimed[0], assert.AnError))

	job, err := q.Get(ctx, res.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, job.Status)
	require.True(t, job.AvailableAt.Equal(clock.Now().Add(time.Second)))
	require.NotNil(t, job.LastError)

	claimed, err = q.Claim(ctx, TypeSyncStaleDocuments, 1)
	require.NoError(t, err)
	require.Empty(t, claimed, "backoff not elapsed")

	clock.Advance(time.Second)
	claimed, err = q.Claim(ctx, TypeSyncStaleDocuments, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, 2, claimed[0].Attempts)
	require.NoError(t, q.Fail(ctx, claimed[0], assert.AnError))

	job, err = q.Get(ctx, res.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, job.Status)

	events := sink.Events()
	require.Len(t, events, 2)
	require.Equal(t, EventRetrying, events[0].Status)
	require.Equal(t, EventFailed, events[1].Status)
	require.Equal(t, res.JobID, events[1].JobID)
}

func TestFailPermanentSkipsRetries(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, DefaultSettings())

	res, err := q.Enqueue(ctx, SyncStaleDocuments{}, EnqueueOptions{})
	require.NoError(t, err)
	claimed, err := q.Claim(ctx, TypeSyncStaleDocuments, 1)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, claimed[0], Permanent(assert.AnError)))

	job, err := q.Get(ctx, res.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, job.Status)
	require.Equal(t, 1, job.Attempts)
}

func TestClaimRecoversStaleProcessingJobs(t *testing.T) {
	ctx := context.Background()
	settings := DefaultSettings()
	settings.StaleAfter = time.Minute
	q, clock := newTestQueue(t, settings)

	_, err := q.Enqueue(ctx, SyncStaleDocuments{}, EnqueueOptions{})
	require.NoError(t, err)
	claimed, err := q.Claim(ctx, TypeSyncStaleDocuments, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	clock.Advance(30 * time.Second)
	again, err := q.Claim(ctx, TypeSyncStaleDocuments, 1)
	require.NoError(t, err)
	require.Empty(t, again)

	clock.Advance(time.Minute)
	again, err = q.Claim(ctx, TypeSyncStaleDocuments, 1)
	require.NoError(t, err)
	require.Len(t, again, 1)
	require.Equal(t, claimed[0].ID, again[0].ID)
	require.Equal(t, 2, again[0].Attempts)
}

func TestClaimFailsStaleJobsOutOfAttempts(t *testing.T) {
	ctx := context.Background()
	settings := DefaultSettings()
	settings.StaleAfter = time.Minute
	q, clock := newTestQueue(t, settings)
	sink := &recordingSink{}
	q.SetEventSink(sink)

	res, err := q.Enqueue(ctx, SyncStaleDocuments{}, EnqueueOptions{MaxAttempts: 2})
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := q.Claim(ctx, TypeSyncStaleDocuments, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.Equal(t, attempt, claimed[0].Attempts)
		clock.Advance(2 * time.Minute)
	}

	claimed, err := q.Claim(ctx, TypeSyncStaleDocuments, 1)
	require.NoError(t, err)
	require.Empty(t, claimed)

	job, err := q.Get(ctx, res.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, job.Status)
	require.Equal(t, 2, job.Attempts)
	require.Nil(t, job.LockedAt)
	require.NotNil(t, job.LastError)
	require.Equal(t, "abandoned after 2 attempts", *job.LastError)

	events := sink.Events()
	require.Len(t, events, 1)
	require.Equal(t, EventFailed, events[0].Status)
	require.Equal(t, res.JobID, events[0].JobID)
	require.Equal(t, 2, events[0].Attempt)

	clock.Advance(time.Hour)
	claimed, err = q.Claim(ctx, TypeSyncStaleDocuments, 1)
	require.NoError(t, err)
	require.Empty(t, claimed)
	require.Len(t, sink.Events(), 1)
}

func TestBackoffIsCapped(t *testing.T) {
	settings := DefaultSettings()
	settings.RetryBackoff = time.Second
	settings.RetryBackoffMax = 5 * time.Second
	q, _ := newTestQueue(t, settings)

	require.Equal(t, time.Second, q.Backoff(0))
	require.Equal(t, time.Second, q.Backoff(1))
	require.Equal(t, 2*time.Second, q.Backoff(2))
	require.Equal(t, 4*time.Second, q.Backoff(3))
	require.Equal(t, 5*time.Second, q.Backoff(4))
	require.Equal(t, 5*time.Second, q.Backoff(40))
}

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus()
	a, cancelA := bus.Subscribe(1)
	b, cancelB := bus.Subscribe(1)
	defer cancelA()

	evt := Event{JobID: 7, Status: EventCompleted}
	require.NoError(t, bus.Publish(context.Background(), evt))
	require.Equal(t, evt, <-a)
	require.Equal(t, evt, <-b)

	cancelB()
	cancelB()
	_, open := <-b
	require.False(t, open)

	// full subscriber buffers drop events instead of blocking
	require.NoError(t, bus.Publish(context.Background(), evt))
	require.NoError(t, bus.Publish(context.Background(), evt))
	require.Len(t, a, 1)
}

func TestMultiSinkReportsFailures(t *testing.T) {
	rec := &recordingSink{}
	sink := MultiSink{rec, nil, failingSink{}}
	err := sink.Publish(context.Background(), Event{JobID: 1})
	require.ErrorContains(t, err, "sink down")
	require.Len(t, rec.Events(), 1)
}

type failingSink struct{}

func (failingSink) Publish(context.Context, Event) error {
	return errFailingSink
}
