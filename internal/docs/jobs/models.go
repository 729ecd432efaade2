package jobs

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// StatusPending marks a job waiting to be claimed.
	StatusPending = "pending"
	// StatusProcessing marks a job claimed by a worker.
	StatusProcessing = "processing"
	// StatusDone marks a job that completed.
	StatusDone = "done"
	// StatusFailed marks a job that will not be retried.
	StatusFailed = "failed"
)

// QueueJob is one durable queue entry.
type QueueJob struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	JobType     string         `gorm:"type:varchar(64);not null;index:idx_doc_queue_jobs_claim,priority:1"`
	Payload     datatypes.JSON `gorm:"type:json"`
	Status      string         `gorm:"type:varchar(16);not null;index:idx_doc_queue_jobs_claim,priority:2"`
	Attempts    int            `gorm:"not null;default:0"`
	MaxAttempts int            `gorm:"not null;default:5"`
	AvailableAt time.Time      `gorm:"not null;index:idx_doc_queue_jobs_claim,priority:3"`
	LockedAt    *time.Time
	LastError   *string `gorm:"type:text"`
	DedupeKey   *string `gorm:"type:varchar(255)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the database table name.
func (QueueJob) TableName() string {
	return "doc_queue_jobs"
}
