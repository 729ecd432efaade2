package store

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IndexJobPatch carries optional column updates applied with a transition.
type IndexJobPatch struct {
	Error             *string
	Reason            string
	AttemptedChecksum string
	Permanent         bool
}

// CreateIndexJob records a new queued index job.
func (s *Store) CreateIndexJob(ctx context.Context, tenantID string, documentID uuid.UUID) (*IndexJob, error) {
	return s.createIndexJob(ctx, tenantID, documentID, JobStatusQueued)
}

func (s *Store) createIndexJob(ctx context.Context, tenantID string, documentID uuid.UUID, status string) (*IndexJob, error) {
	now := s.clock()
	job := &IndexJob{
		TenantID:   tenantID,
		DocumentID: documentID,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, errors.Wrap(err, "create index job")
	}
	return job, nil
}

// TransitionIndexJob moves the document's jobs from one status to another.
//
// It is a compare-and-swap: only rows currently in from are touched, and the
// number of affected rows is returned. Zero is not an error.
func (s *Store) TransitionIndexJob(ctx context.Context, tenantID string, documentID uuid.UUID, from, to string, patch IndexJobPatch) (int64, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": s.clock(),
	}
	if patch.Error != nil {
		updates["error"] = *patch.Error
	}
	if patch.Reason != "" {
		updates["reason"] = patch.Reason
	}
	if patch.AttemptedChecksum != "" {
		updates["attempted_checksum"] = patch.AttemptedChecksum
	}
	if patch.Permanent {
		updates["permanent"] = true
	}

	result := s.db.WithContext(ctx).Model(&IndexJob{}).
		Where("tenant_id = ? AND document_id = ? AND status = ?", tenantID, documentID, from).
		Updates(updates)
	if result.Error != nil {
		return 0, errors.Wrapf(result.Error, "transition index job %s -> %s", from, to)
	}
	return result.RowsAffected, nil
}

// BeginIndexJob moves the document's queued job to processing.
//
// When no queued row exists and no other attempt is active, a new processing
// row is recorded so that a redelivered or retried job still reports its
// outcome. claimed is false when another attempt already holds the document.
func (s *Store) BeginIndexJob(ctx context.Context, tenantID string, documentID uuid.UUID) (claimed bool, err error) {
	affected, err := s.TransitionIndexJob(ctx, tenantID, documentID, JobStatusQueued, JobStatusProcessing, IndexJobPatch{})
	if err != nil {
		return false, errors.WithStack(err)
	}
	if affected > 0 {
		return true, nil
	}

	var active int64
	if err := s.db.WithContext(ctx).Model(&IndexJob{}).
		Where("tenant_id = ? AND document_id = ? AND status IN ?", tenantID, documentID,
			[]string{JobStatusQueued, JobStatusProcessing}).
		Count(&active).Error; err != nil {
		return false, errors.Wrap(err, "count active index jobs")
	}
	if active > 0 {
		return false, nil
	}
	if _, err := s.createIndexJob(ctx, tenantID, documentID, JobStatusProcessing); err != nil {
		return false, errors.WithStack(err)
	}
	return true, nil
}

// FailIndexJobs marks every non-terminal job of the document as failed.
func (s *Store) FailIndexJobs(ctx context.Context, tenantID string, documentID uuid.UUID, message string, patch IndexJobPatch) (int64, error) {
	updates := map[string]any{
		"status":     JobStatusFailed,
		"error":      message,
		"updated_at": s.clock(),
	}
	if patch.AttemptedChecksum != "" {
		updates["attempted_checksum"] = patch.AttemptedChecksum
	}
	if patch.Permanent {
		updates["permanent"] = true
	}
	result := s.db.WithContext(ctx).Model(&IndexJob{}).
		Where("tenant_id = ? AND document_id = ? AND status IN ?", tenantID, documentID,
			[]string{JobStatusQueued, JobStatusProcessing}).
		Updates(updates)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "mark index jobs failed")
	}
	return result.RowsAffected, nil
}

// LatestIndexJob returns the most recent job for the document, or nil when none exists.
func (s *Store) LatestIndexJob(ctx context.Context, tenantID string, documentID uuid.UUID) (*IndexJob, error) {
	var job IndexJob
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
		Order("created_at DESC").
		Order("id DESC").
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load latest index job")
	}
	return &job, nil
}

// ListIndexJobs returns the document's job history, oldest first.
func (s *Store) ListIndexJobs(ctx context.Context, tenantID string, documentID uuid.UUID) ([]IndexJob, error) {
	var jobs []IndexJob
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&jobs).Error; err != nil {
		return nil, errors.Wrap(err, "list index jobs")
	}
	return jobs, nil
}
