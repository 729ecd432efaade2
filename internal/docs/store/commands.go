package store

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateCommand records a scheduled reminder for a document.
func (s *Store) CreateCommand(ctx context.Context, tenantID string, documentID uuid.UUID, kind string, body datatypes.JSON, scheduledAt time.Time) (*DocumentCommand, error) {
	if kind == "" {
		kind = "reminder"
	}
	now := s.clock()
	cmd := &DocumentCommand{
		TenantID:    tenantID,
		DocumentID:  documentID,
		Kind:        kind,
		Body:        body,
		Status:      CommandStatusScheduled,
		ScheduledAt: scheduledAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(cmd).Error; err != nil {
		return nil, errors.Wrap(err, "create document command")
	}
	return cmd, nil
}

// GetCommand loads a command scoped to the tenant.
func (s *Store) GetCommand(ctx context.Context, tenantID string, commandID uuid.UUID) (*DocumentCommand, error) {
	var cmd DocumentCommand
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, commandID).
		Take(&cmd).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(ErrCommandNotFound)
		}
		return nil, errors.Wrap(err, "load document command")
	}
	return &cmd, nil
}

// SetCommandStatus moves a command from one status to another. It returns the affected row count.
func (s *Store) SetCommandStatus(ctx context.Context, tenantID string, commandID uuid.UUID, from, to string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&DocumentCommand{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, commandID, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": s.clock(),
		})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "update document command status")
	}
	return result.RowsAffected, nil
}

// MarkCommandNotified moves a scheduled command to notified, recording at.
// It returns false when the command was no longer scheduled.
func (s *Store) MarkCommandNotified(ctx context.Context, tenantID string, commandID uuid.UUID, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&DocumentCommand{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, commandID, CommandStatusScheduled).
		Updates(map[string]any{
			"status":      CommandStatusNotified,
			"notified_at": at.UTC(),
			"updated_at":  s.clock(),
		})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "mark command notified")
	}
	return result.RowsAffected > 0, nil
}
