// Package jobs is a database-backed, at-least-once job queue with retry,
// backoff, per-type worker pools and a lifecycle event stream.
package jobs

import (
	"encoding/json"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
)

// Type names a job kind.
type Type string

const (
	// TypeIndexDocument indexes one document.
	TypeIndexDocument Type = "index_document"
	// TypeSendReminder fires one reminder notification.
	TypeSendReminder Type = "send_reminder"
	// TypeSyncStaleDocuments runs one reconciler sweep.
	TypeSyncStaleDocuments Type = "sync_stale_documents"
)

// Payload is the closed set of job payloads accepted by the queue.
type Payload interface {
	JobType() Type
	Validate() error
}

// IndexDocument asks a worker to index one document.
type IndexDocument struct {
	TenantID   string    `json:"tenantId"`
	DocumentID uuid.UUID `json:"documentId"`
}

// JobType implements Payload.
func (IndexDocument) JobType() Type { return TypeIndexDocument }

// Validate implements Payload.
func (p IndexDocument) Validate() error {
	if strings.TrimSpace(p.TenantID) == "" {
		return errors.New("tenantId is required")
	}
	if p.DocumentID == uuid.Nil {
		return errors.New("documentId is required")
	}
	return nil
}

// SendReminder asks a worker to fire one document command.
type SendReminder struct {
	TenantID          string    `json:"tenantId"`
	DocumentCommandID uuid.UUID `json:"documentCommandId"`
}

// JobType implements Payload.
func (SendReminder) JobType() Type { return TypeSendReminder }

// Validate implements Payload.
func (p SendReminder) Validate() error {
	if strings.TrimSpace(p.TenantID) == "" {
		return errors.New("tenantId is required")
	}
	if p.DocumentCommandID == uuid.Nil {
		return errors.New("documentCommandId is required")
	}
	return nil
}

// SyncStaleDocuments asks a worker to run the stale document reconciler.
type SyncStaleDocuments struct{}

// JobType implements Payload.
func (SyncStaleDocuments) JobType() Type { return TypeSyncStaleDocuments }

// Validate implements Payload.
func (SyncStaleDocuments) Validate() error { return nil }

// DecodePayload parses and validates a stored payload.
// Unknown types and invalid payloads are permanent errors.
func DecodePayload(jobType Type, raw []byte) (Payload, error) {
	var payload Payload
	switch jobType {
	case TypeIndexDocument:
		var p IndexDocument
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, Permanent(errors.Wrap(err, "decode index_document payload"))
		}
		payload = p
	case TypeSendReminder:
		var p SendReminder
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, Permanent(errors.Wrap(err, "decode send_reminder payload"))
		}
		payload = p
	case TypeSyncStaleDocuments:
		payload = SyncStaleDocuments{}
	default:
		return nil, Permanent(errors.Errorf("unknown job type %q", jobType))
	}

	if err := payload.Validate(); err != nil {
		return nil, Permanent(errors.Wrapf(err, "invalid %s payload", jobType))
	}
	return payload, nil
}
