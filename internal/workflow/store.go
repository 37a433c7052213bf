package workflow

import (
	"context"

	"github.com/signoff-hq/signoff/model"
)

// RecordStore persists workflow records and their audit trails.
//
// State changes and their audit events commit atomically: Create and Commit
// either persist both the record and the event, or neither.
type RecordStore interface {
	// Create persists a new record together with its submission event.
	Create(ctx context.Context, record model.WorkflowRecord, event model.AuditEvent) error

	// Get retrieves a record by ID. Returns NOT_FOUND if it does not exist.
	Get(ctx context.Context, recordID string) (model.WorkflowRecord, error)

	// Commit persists an updated record and appends its audit event in one
	// atomic write. The record's Version must match the stored version;
	// on success the stored version is incremented. Returns STALE_STATE on
	// version mismatch and NOT_FOUND if the record does not exist.
	Commit(ctx context.Context, record model.WorkflowRecord, event model.AuditEvent) error

	// Events retrieves the audit trail for a record ordered by timestamp.
	// Returns NOT_FOUND if the record does not exist.
	Events(ctx context.Context, recordID string) ([]model.AuditEvent, error)

	// Find returns records matching the filters, newest first.
	Find(ctx context.Context, filters model.RecordFilters) ([]model.WorkflowRecord, error)
}
