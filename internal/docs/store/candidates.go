package store

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
)

// IndexCandidate is a document joined with its index state and latest index job.
type IndexCandidate struct {
	DocumentID   uuid.UUID
	TenantID     string
	Content      *string
	LastChecksum *string
	JobStatus    *string
	JobChecksum  *string
	JobPermanent *bool
	JobUpdatedAt *time.Time
}

// Text returns the candidate's raw content, treating NULL as empty.
func (c IndexCandidate) Text() string {
	if c.Content == nil {
		return ""
	}
	return *c.Content
}

// ListIndexCandidates pages through all documents ordered by id, starting after afterID.
func (s *Store) ListIndexCandidates(ctx context.Context, afterID uuid.UUID, limit int) ([]IndexCandidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	statement := `SELECT d.id AS document_id, d.tenant_id, d.content,
			s.last_checksum,
			j.status AS job_status,
			j.attempted_checksum AS job_checksum,
			j.permanent AS job_permanent,
			j.updated_at AS job_updated_at
		FROM doc_documents d
		LEFT JOIN doc_index_states s ON s.document_id = d.id
		LEFT JOIN doc_index_jobs j ON j.id = (
			SELECT j2.id FROM doc_index_jobs j2
			WHERE j2.document_id = d.id AND j2.tenant_id = d.tenant_id
			ORDER BY j2.created_at DESC, j2.id DESC
			LIMIT 1
		)
		WHERE d.id > ?
		ORDER BY d.id ASC
		LIMIT ?`

	var rows []IndexCandidate
	if err := s.db.WithContext(ctx).Raw(statement, afterID, limit).Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list index candidates")
	}
	return rows, nil
}
