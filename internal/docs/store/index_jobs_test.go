package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTransitionIndexJobIsConditional(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	docID := uuid.New()

	_, err := st.CreateIndexJob(ctx, "tenant-a", docID)
	require.NoError(t, err)

	affected, err := st.TransitionIndexJob(ctx, "tenant-a", docID, JobStatusQueued, JobStatusProcessing, IndexJobPatch{})
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	affected, err = st.TransitionIndexJob(ctx, "tenant-a", docID, JobStatusQueued, JobStatusProcessing, IndexJobPatch{})
	require.NoError(t, err)
	require.EqualValues(t, 0, affected)

	affected, err = st.TransitionIndexJob(ctx, "tenant-b", docID, JobStatusProcessing, JobStatusIndexed, IndexJobPatch{})
	require.NoError(t, err)
	require.EqualValues(t, 0, affected)

	affected, err = st.TransitionIndexJob(ctx, "tenant-a", docID, JobStatusProcessing, JobStatusIndexed, IndexJobPatch{Reason: "indexed"})
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	job, err := st.LatestIndexJob(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, JobStatusIndexed, job.Status)
	require.Equal(t, "indexed", job.Reason)
}

func TestBeginIndexJob(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	docID := uuid.New()

	t.Run("claims queued row", func(t *testing.T) {
		_, err := st.CreateIndexJob(ctx, "tenant-a", docID)
		require.NoError(t, err)
		claimed, err := st.BeginIndexJob(ctx, "tenant-a", docID)
		require.NoError(t, err)
		require.True(t, claimed)
	})

	t.Run("does not claim while another attempt is active", func(t *testing.T) {
		claimed, err := st.BeginIndexJob(ctx, "tenant-a", docID)
		require.NoError(t, err)
		require.False(t, claimed)
	})

	t.Run("records a fresh attempt after failure", func(t *testing.T) {
		affected, err := st.FailIndexJobs(ctx, "tenant-a", docID, "boom", IndexJobPatch{AttemptedChecksum: "sum"})
		require.NoError(t, err)
		require.EqualValues(t, 1, affected)

		claimed, err := st.BeginIndexJob(ctx, "tenant-a", docID)
		require.NoError(t, err)
		require.True(t, claimed)

		jobs, err := st.ListIndexJobs(ctx, "tenant-a", docID)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		require.Equal(t, JobStatusFailed, jobs[0].Status)
		require.NotNil(t, jobs[0].Error)
		require.Equal(t, "boom", *jobs[0].Error)
		require.Equal(t, "sum", jobs[0].AttemptedChecksum)
		require.Equal(t, JobStatusProcessing, jobs[1].Status)
	})
}

func TestFailIndexJobsLeavesTerminalRows(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	docID := uuid.New()

	_, err := st.CreateIndexJob(ctx, "tenant-a", docID)
	require.NoError(t, err)
	_, err = st.TransitionIndexJob(ctx, "tenant-a", docID, JobStatusQueued, JobStatusIndexed, IndexJobPatch{})
	require.NoError(t, err)

	affected, err := st.FailIndexJobs(ctx, "tenant-a", docID, "late failure", IndexJobPatch{Permanent: true})
	require.NoError(t, err)
	require.EqualValues(t, 0, affected)

	job, err := st.LatestIndexJob(ctx, "tenant-a", docID)
	require.NoError(t, err)
	require.Equal(t, JobStatusIndexed, job.Status)
	require.False(t, job.Permanent)
}
