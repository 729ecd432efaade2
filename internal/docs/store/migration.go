package store

import (
	"context"
	"fmt"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"gorm.io/gorm"

	"github.com/Laisky/docspace/library/log"
)

// RunMigrations ensures document tables and indexes exist.
//
// dimensions pins the embedding column width on Postgres; zero leaves it unconstrained.
func RunMigrations(ctx context.Context, db *gorm.DB, dimensions int, logger logSDK.Logger) error {
	if db == nil {
		return errors.New("gorm db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("docs_store_migration")
	}

	if err := ensureVectorExtension(ctx, db, logger); err != nil {
		return errors.WithStack(err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&Document{},
		&DocumentChunk{},
		&DocumentIndexState{},
		&IndexJob{},
		&DocumentCommand{},
	); err != nil {
		return errors.Wrap(err, "auto migrate document tables")
	}

	statements := []string{}
	if isPostgresDialect(db) {
		statements = []string{
			`ALTER TABLE doc_documents ADD COLUMN IF NOT EXISTS search_vector tsvector`,
			`CREATE INDEX IF NOT EXISTS idx_doc_documents_search_vector ON doc_documents USING GIN (search_vector)`,
			`CREATE INDEX IF NOT EXISTS idx_doc_index_jobs_active ON doc_index_jobs (tenant_id, document_id) WHERE status IN ('queued', 'processing')`,
			`CREATE INDEX IF NOT EXISTS idx_doc_commands_scheduled ON doc_commands (scheduled_at) WHERE status = 'scheduled'`,
		}
		if dimensions > 0 {
			statements = append(statements,
				fmt.Sprintf(`ALTER TABLE doc_chunks ALTER COLUMN embedding TYPE vector(%d)`, dimensions),
				`CREATE INDEX IF NOT EXISTS idx_doc_chunks_embedding ON doc_chunks USING hnsw (embedding vector_cosine_ops)`,
			)
		}
	}

	for _, stmt := range statements {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return errors.Wrapf(err, "exec migration %q", stmt)
		}
	}

	logger.Debug("document store migrations completed")
	return nil
}

// ensureVectorExtension creates the pgvector extension when available.
func ensureVectorExtension(ctx context.Context, db *gorm.DB, logger logSDK.Logger) error {
	if db == nil {
		return errors.New("gorm db is nil")
	}
	if !isPostgresDialect(db) {
		return nil
	}

	if err := db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		if shouldFallbackToPgvector(err) {
			if logger != nil {
				logger.Debug("pgvector extension unavailable under name 'vector', retrying with legacy name")
			}
			if execErr := db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS pgvector").Error; execErr != nil {
				return errors.Wrap(execErr, "create pgvector extension")
			}
			return nil
		}
		return errors.Wrap(err, "create vector extension")
	}
	return nil
}
