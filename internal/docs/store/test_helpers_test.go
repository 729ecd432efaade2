package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Laisky/docspace/library/log"
)

var testNow = time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)

// newTestDB creates an in-memory sqlite database.
func newTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", t.Name(), time.Now().UTC().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// newTestStore creates a migrated store with a fixed clock.
func newTestStore(t *testing.T) *Store {
	db := newTestDB(t)
	require.NoError(t, RunMigrations(context.Background(), db, 0, log.Logger.Named("test")))
	st, err := New(db, log.Logger.Named("test"), func() time.Time { return testNow })
	require.NoError(t, err)
	return st
}

func strPtr(s string) *string {
	return &s
}

func vec(values ...float32) pgvector.Vector {
	return pgvector.NewVector(values)
}
