package store

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Laisky/docspace/library/log"
)

func TestNearestChunksInMemoryKeepsBestChunkPerDocument(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	content := "first second third"
	near, err := st.CreateDocument(ctx, "tenant-a", "Near", strPtr(content))
	require.NoError(t, err)
	require.NoError(t, st.ReplaceChunks(ctx, ReplaceChunksInput{
		TenantID:      "tenant-a",
		DocumentID:    near.ID,
		SourceContent: content,
		Checksum:      "sum",
		Chunks: []Chunk{
			{Idx: 0, Content: "first", Embedding: vec(0, 1)},
			{Idx: 1, Content: "second", Embedding: vec(1, 0)},
			{Idx: 2, Content: "third", Embedding: vec(0.9, 0.1)},
		},
	}))

	farContent := "far"
	far, err := st.CreateDocument(ctx, "tenant-a", "Far", strPtr(farContent))
	require.NoError(t, err)
	require.NoError(t, st.ReplaceChunks(ctx, ReplaceChunksInput{
		TenantID:      "tenant-a",
		DocumentID:    far.ID,
		SourceContent: farContent,
		Checksum:      "sum",
		Chunks:        []Chunk{{Idx: 0, Content: "far", Embedding: vec(-1, 0.2)}},
	}))

	results, err := st.NearestChunks(ctx, "tenant-a", vec(1, 0), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, near.ID, results[0].DocumentID)
	require.Equal(t, "Near", results[0].Title)
	require.Equal(t, 1, results[0].Idx)
	require.Equal(t, "second", results[0].Content)
	require.InDelta(t, 0, results[0].Distance, 1e-6)
	require.Equal(t, 3, results[0].TotalChunks)

	require.Equal(t, far.ID, results[1].DocumentID)
	require.Greater(t, results[1].Distance, results[0].Distance)

	results, err = st.NearestChunks(ctx, "tenant-b", vec(1, 0), 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestNearestChunksTopKBeforeGrouping(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	content := "a b"
	doc, err := st.CreateDocument(ctx, "tenant-a", "Doc", strPtr(content))
	require.NoError(t, err)
	require.NoError(t, st.ReplaceChunks(ctx, ReplaceChunksInput{
		TenantID:      "tenant-a",
		DocumentID:    doc.ID,
		SourceContent: content,
		Checksum:      "sum",
		Chunks: []Chunk{
			{Idx: 0, Content: "a", Embedding: vec(1, 0)},
			{Idx: 1, Content: "b", Embedding: vec(1, 0.01)},
		},
	}))
	otherContent := "c"
	other, err := st.CreateDocument(ctx, "tenant-a", "Other", strPtr(otherContent))
	require.NoError(t, err)
	require.NoError(t, st.ReplaceChunks(ctx, ReplaceChunksInput{
		TenantID:      "tenant-a",
		DocumentID:    other.ID,
		SourceContent: otherContent,
		Checksum:      "sum",
		Chunks:        []Chunk{{Idx: 0, Content: "c", Embedding: vec(0, 1)}},
	}))

	results, err := st.NearestChunks(ctx, "tenant-a", vec(1, 0), 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, doc.ID, results[0].DocumentID)
	require.Equal(t, 0, results[0].Idx)
}

func TestNearestChunksPostgresQueryShape(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}))
	require.NoError(t, err)
	st, err := New(gdb, log.Logger.Named("test"), nil)
	require.NoError(t, err)

	docID := uuid.New()
	queryVec := vec(0.1, 0.2)
	pattern := regexp.MustCompile(`SELECT DISTINCT ON \(n\.document_id\)[\s\S]+c\.embedding <=> \$1 AS distance[\s\S]+WHERE c\.tenant_id = \$2[\s\S]+ORDER BY c\.embedding <=> \$3[\s\S]+LIMIT \$4`)
	rows := sqlmock.NewRows([]string{"document_id", "title", "idx", "content", "distance", "total_chunks"}).
		AddRow(docID.String(), "Doc", 2, "chunk", 0.25, 5)
	mock.ExpectQuery(pattern.String()).
		WithArgs(sqlmock.AnyArg(), "tenant-a", sqlmock.AnyArg(), 8, "tenant-a").
		WillReturnRows(rows)

	results, err := st.NearestChunks(context.Background(), "tenant-a", queryVec, 8)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, docID, results[0].DocumentID)
	require.Equal(t, 2, results[0].Idx)
	require.Equal(t, 5, results[0].TotalChunks)
	require.InDelta(t, 0.25, results[0].Distance, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCosineDistance(t *testing.T) {
	require.InDelta(t, 0, cosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	require.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, 2, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	require.Equal(t, 1.0, cosineDistance([]float32{1}, []float32{1, 2}))
	require.Equal(t, 1.0, cosineDistance([]float32{0, 0}, []float32{1, 2}))
}
