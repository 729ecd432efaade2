package store

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReplaceChunksInput describes one complete chunk set for a document.
type ReplaceChunksInput struct {
	TenantID   string
	DocumentID uuid.UUID
	// SourceContent is the document content the chunks were built from.
	SourceContent string
	// Checksum is the fingerprint of SourceContent.
	Checksum string
	Chunks   []Chunk
}

// ReplaceChunks swaps the document's chunk set, refreshes its search vector and
// upserts its index state in one transaction.
//
// It returns ErrContentChanged when the stored content no longer equals
// SourceContent, so a slow attempt never overwrites the index of newer content.
func (s *Store) ReplaceChunks(ctx context.Context, in ReplaceChunksInput) error {
	if in.TenantID == "" || in.DocumentID == uuid.Nil {
		return errors.New("tenant id and document id are required")
	}
	if in.Checksum == "" {
		return errors.New("checksum is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock()

		var doc Document
		query := tx.Where("tenant_id = ? AND id = ?", in.TenantID, in.DocumentID)
		if isPostgresDialect(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.Take(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.WithStack(ErrDocumentNotFound)
			}
			return errors.Wrap(err, "lock document")
		}
		if doc.Text() != in.SourceContent {
			return errors.WithStack(ErrContentChanged)
		}

		if err := tx.Where("tenant_id = ? AND document_id = ?", in.TenantID, in.DocumentID).
			Delete(&DocumentChunk{}).Error; err != nil {
			return errors.Wrap(err, "delete chunks")
		}

		if len(in.Chunks) > 0 {
			rows := make([]DocumentChunk, 0, len(in.Chunks))
			for _, ch := range in.Chunks {
				rows = append(rows, DocumentChunk{
					DocumentID: in.DocumentID,
					TenantID:   in.TenantID,
					Idx:        ch.Idx,
					Content:    ch.Content,
					Embedding:  ch.Embedding,
					CreatedAt:  now,
				})
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return errors.Wrap(err, "insert chunks")
			}
		}

		if isPostgresDialect(tx) {
			if err := tx.Exec(`UPDATE doc_documents SET search_vector = to_tsvector('simple', COALESCE(
				(SELECT string_agg(c.content, ' ' ORDER BY c.idx) FROM doc_chunks c WHERE c.document_id = doc_documents.id),
				content, ''))
				WHERE id = ?`, in.DocumentID).Error; err != nil {
				return errors.Wrap(err, "refresh search vector")
			}
		}

		state := DocumentIndexState{
			DocumentID:    in.DocumentID,
			TenantID:      in.TenantID,
			LastChecksum:  in.Checksum,
			ChunkCount:    len(in.Chunks),
			LastIndexedAt: now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "last_checksum", "chunk_count", "last_indexed_at"}),
		}).Create(&state).Error; err != nil {
			return errors.Wrap(err, "upsert index state")
		}
		return nil
	})
}

// GetIndexState returns the document's index state, or nil when it was never indexed.
func (s *Store) GetIndexState(ctx context.Context, tenantID string, documentID uuid.UUID) (*DocumentIndexState, error) {
	var state DocumentIndexState
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
		Take(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load index state")
	}
	return &state, nil
}

// ListChunks returns every chunk of a document in idx order.
func (s *Store) ListChunks(ctx context.Context, tenantID string, documentID uuid.UUID) ([]DocumentChunk, error) {
	var chunks []DocumentChunk
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
		Order("idx ASC").
		Find(&chunks).Error; err != nil {
		return nil, errors.Wrap(err, "list chunks")
	}
	return chunks, nil
}

// ChunkWindow returns chunks with idx in [fromIdx, toIdx], ordered by idx.
// Out-of-range bounds are clipped by the query itself.
func (s *Store) ChunkWindow(ctx context.Context, tenantID string, documentID uuid.UUID, fromIdx, toIdx int) ([]DocumentChunk, error) {
	if fromIdx < 0 {
		fromIdx = 0
	}
	if toIdx < fromIdx {
		return nil, nil
	}
	var chunks []DocumentChunk
	if err := s.db.WithContext(ctx).
		Select("id", "document_id", "tenant_id", "idx", "content").
		Where("tenant_id = ? AND document_id = ? AND idx BETWEEN ? AND ?", tenantID, documentID, fromIdx, toIdx).
		Order("idx ASC").
		Find(&chunks).Error; err != nil {
		return nil, errors.Wrap(err, "load chunk window")
	}
	return chunks, nil
}
