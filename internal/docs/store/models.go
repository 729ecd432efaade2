package store

import (
	"time"

	gutils "github.com/Laisky/go-utils/v6"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// JobStatusQueued marks an index job waiting for a worker.
	JobStatusQueued = "queued"
	// JobStatusProcessing marks an index job claimed by a worker.
	JobStatusProcessing = "processing"
	// JobStatusIndexed marks an index job that finished successfully.
	JobStatusIndexed = "indexed"
	// JobStatusFailed marks an index job that stopped with an error.
	JobStatusFailed = "failed"
)

const (
	// CommandStatusScheduled marks a reminder waiting for its fire time.
	CommandStatusScheduled = "scheduled"
	// CommandStatusNotified marks a reminder whose notification has fired.
	CommandStatusNotified = "notified"
	// CommandStatusDone marks a reminder the user completed.
	CommandStatusDone = "done"
	// CommandStatusCancelled marks a reminder that will never fire.
	CommandStatusCancelled = "cancelled"
)

// Document is a tenant-owned text document.
//
// The Postgres search_vector column is maintained by ReplaceChunks and
// is intentionally absent from the struct.
type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  string    `gorm:"type:varchar(64);not null;index:idx_doc_documents_tenant"`
	Title     string    `gorm:"type:varchar(512);not null;default:''"`
	Content   *string   `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (Document) TableName() string {
	return "doc_documents"
}

// BeforeCreate fills the ID with a UUIDv7 value when missing.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = gutils.UUID7Bytes()
	}
	return nil
}

// Text returns the raw content, treating NULL as empty.
func (d Document) Text() string {
	if d.Content == nil {
		return ""
	}
	return *d.Content
}

// DocumentChunk is one embedded slice of a document.
type DocumentChunk struct {
	ID         int64           `gorm:"primaryKey;autoIncrement"`
	DocumentID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_doc_chunks_document_idx,priority:1"`
	TenantID   string          `gorm:"type:varchar(64);not null;index:idx_doc_chunks_tenant"`
	Idx        int             `gorm:"column:idx;not null;uniqueIndex:uq_doc_chunks_document_idx,priority:2"`
	Content    string          `gorm:"type:text;not null"`
	Embedding  pgvector.Vector `gorm:"type:vector;not null"`
	CreatedAt  time.Time
}

// TableName returns the database table name.
func (DocumentChunk) TableName() string {
	return "doc_chunks"
}

// DocumentIndexState records the fingerprint of the last indexed content.
type DocumentIndexState struct {
	DocumentID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID      string    `gorm:"type:varchar(64);not null;index"`
	LastChecksum  string    `gorm:"type:char(64);not null"`
	ChunkCount    int       `gorm:"not null;default:0"`
	LastIndexedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name.
func (DocumentIndexState) TableName() string {
	return "doc_index_states"
}

// IndexJob is one attempt to index a document. Historical rows are kept.
type IndexJob struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID          string    `gorm:"type:varchar(64);not null;index:idx_doc_index_jobs_doc,priority:1"`
	DocumentID        uuid.UUID `gorm:"type:uuid;not null;index:idx_doc_index_jobs_doc,priority:2"`
	Status            string    `gorm:"type:varchar(16);not null;index"`
	Error             *string   `gorm:"type:text"`
	Reason            string    `gorm:"type:varchar(32);not null;default:''"`
	AttemptedChecksum string    `gorm:"type:varchar(64);not null;default:''"`
	Permanent         bool      `gorm:"not null;default:false"`
	CreatedAt         time.Time `gorm:"index:idx_doc_index_jobs_doc,priority:3"`
	UpdatedAt         time.Time
}

// TableName returns the database table name.
func (IndexJob) TableName() string {
	return "doc_index_jobs"
}

// BeforeCreate fills the ID with a UUIDv7 value when missing.
func (j *IndexJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = gutils.UUID7Bytes()
	}
	return nil
}

// Active reports whether the job has not reached a terminal state.
func (j IndexJob) Active() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusProcessing
}

// DocumentCommand is an inline reminder embedded in a document.
type DocumentCommand struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	TenantID    string         `gorm:"type:varchar(64);not null;index"`
	DocumentID  uuid.UUID      `gorm:"type:uuid;not null;index"`
	Kind        string         `gorm:"type:varchar(32);not null;default:'reminder'"`
	Body        datatypes.JSON `gorm:"type:json"`
	Status      string         `gorm:"type:varchar(16);not null;index"`
	ScheduledAt time.Time      `gorm:"not null"`
	NotifiedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the database table name.
func (DocumentCommand) TableName() string {
	return "doc_commands"
}

// BeforeCreate fills the ID with a UUIDv7 value when missing.
func (c *DocumentCommand) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = gutils.UUID7Bytes()
	}
	return nil
}

// Chunk is a chunk ready to be persisted.
type Chunk struct {
	Idx       int
	Content   string
	Embedding pgvector.Vector
}

// SearchCandidate is one row of retrieval output. Never persisted.
type SearchCandidate struct {
	DocumentID  uuid.UUID
	Title       string
	Idx         int
	Content     string
	Distance    float64
	TotalChunks int
}

// LexicalHit is one document matched by full-text search.
type LexicalHit struct {
	DocumentID uuid.UUID
	Title      string
	Score      float64
	Snippet    string
}
