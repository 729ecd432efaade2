package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestMarkCommandNotifiedOnlyFromScheduled(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	fireAt := testNow.Add(time.Hour)
	cmd, err := st.CreateCommand(ctx, "tenant-a", uuid.New(), "", datatypes.JSON(`{"text":"call Bob"}`), fireAt)
	require.NoError(t, err)
	require.Equal(t, CommandStatusScheduled, cmd.Status)
	require.Equal(t, "reminder", cmd.Kind)

	ok, err := st.MarkCommandNotified(ctx, "tenant-a", cmd.ID, fireAt)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.MarkCommandNotified(ctx, "tenant-a", cmd.ID, fireAt)
	require.NoError(t, err)
	require.False(t, ok)

	loaded, err := st.GetCommand(ctx, "tenant-a", cmd.ID)
	require.NoError(t, err)
	require.Equal(t, CommandStatusNotified, loaded.Status)
	require.NotNil(t, loaded.NotifiedAt)
	require.True(t, loaded.NotifiedAt.Equal(fireAt))
	require.JSONEq(t, `{"text":"call Bob"}`, string(loaded.Body))

	_, err = st.GetCommand(ctx, "tenant-b", cmd.ID)
	require.ErrorIs(t, err, ErrCommandNotFound)
}

func TestSetCommandStatus(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	cmd, err := st.CreateCommand(ctx, "tenant-a", uuid.New(), "reminder", nil, testNow)
	require.NoError(t, err)

	affected, err := st.SetCommandStatus(ctx, "tenant-a", cmd.ID, CommandStatusScheduled, CommandStatusDone)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	ok, err := st.MarkCommandNotified(ctx, "tenant-a", cmd.ID, testNow)
	require.NoError(t, err)
	require.False(t, ok)
}
