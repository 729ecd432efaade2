// Package store persists documents, their chunk embeddings, index state and
// index job history, and exposes the lexical and vector queries search needs.
package store

import (
	"context"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Laisky/docspace/library/log"
)

// Store wraps a gorm handle with document persistence helpers.
type Store struct {
	db     *gorm.DB
	logger logSDK.Logger
	clock  func() time.Time
}

// New constructs a Store. clock defaults to time.Now in UTC.
func New(db *gorm.DB, logger logSDK.Logger, clock func() time.Time) (*Store, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("docs_store")
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Store{db: db, logger: logger, clock: clock}, nil
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithTx returns a store bound to tx, sharing logger and clock.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	cp := *s
	cp.db = tx
	return &cp
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.clock()
}

// CreateDocument inserts a new document for the tenant.
func (s *Store) CreateDocument(ctx context.Context, tenantID, title string, content *string) (*Document, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	now := s.clock()
	doc := &Document{
		TenantID:  tenantID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, errors.Wrap(err, "create document")
	}
	return doc, nil
}

// GetDocument loads a document scoped to the tenant.
func (s *Store) GetDocument(ctx context.Context, tenantID string, documentID uuid.UUID) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, documentID).
		Take(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(ErrDocumentNotFound)
		}
		return nil, errors.Wrap(err, "load document")
	}
	return &doc, nil
}

// UpdateDocumentContent replaces title and content. Callers schedule re-indexing.
func (s *Store) UpdateDocumentContent(ctx context.Context, tenantID string, documentID uuid.UUID, title string, content *string) error {
	result := s.db.WithContext(ctx).Model(&Document{}).
		Where("tenant_id = ? AND id = ?", tenantID, documentID).
		Updates(map[string]any{
			"title":      title,
			"content":    content,
			"updated_at": s.clock(),
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "update document")
	}
	if result.RowsAffected == 0 {
		return errors.WithStack(ErrDocumentNotFound)
	}
	return nil
}

// DeleteDocument removes a document with its chunks, index state, jobs and commands.
func (s *Store) DeleteDocument(ctx context.Context, tenantID string, documentID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := func() *gorm.DB {
			return tx.Where("tenant_id = ? AND document_id = ?", tenantID, documentID)
		}
		if err := scoped().Delete(&DocumentChunk{}).Error; err != nil {
			return errors.Wrap(err, "delete chunks")
		}
		if err := scoped().Delete(&DocumentIndexState{}).Error; err != nil {
			return errors.Wrap(err, "delete index state")
		}
		if err := scoped().Delete(&IndexJob{}).Error; err != nil {
			return errors.Wrap(err, "delete index jobs")
		}
		if err := scoped().Delete(&DocumentCommand{}).Error; err != nil {
			return errors.Wrap(err, "delete commands")
		}
		result := tx.Where("tenant_id = ? AND id = ?", tenantID, documentID).Delete(&Document{})
		if result.Error != nil {
			return errors.Wrap(result.Error, "delete document")
		}
		if result.RowsAffected == 0 {
			return errors.WithStack(ErrDocumentNotFound)
		}
		return nil
	})
}
