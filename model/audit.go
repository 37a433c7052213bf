package model

import "time"

// AuditEvent is one immutable entry in a record's audit trail, appended
// atomically with the state transition it describes. Events are ordered by
// timestamp; the approved events for a record are strictly increasing and
// contiguous in step ordinal starting at 1.
type AuditEvent struct {
	ID          string    `json:"id"`
	RecordID    string    `json:"record_id"`
	StepOrdinal int       `json:"step_ordinal"`
	ActorID     string    `json:"actor_id"`
	Decision    string    `json:"decision"`
	Notes       string    `json:"notes,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
