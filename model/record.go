package model

import "time"

// Record status constants. A record is created active and leaves that status
// exactly once; approved and rejected are terminal.
const (
	RecordStatusActive   = "active"
	RecordStatusApproved = "approved"
	RecordStatusRejected = "rejected"
)

// Decision constants recorded on step outcomes and audit events.
const (
	DecisionSubmitted = "submitted"
	DecisionApproved  = "approved"
	DecisionRejected  = "rejected"
)

// WorkflowRecord is one in-flight or completed workflow instance: a leave
// request or a regulatory-assessment submission moving through its chain.
//
// CurrentStep only increases, never decreases, until the record reaches a
// terminal status. The transition engine is the sole writer of CurrentStep,
// Status, StepOutcomes, and AssignedActors. Version drives the optimistic
// concurrency check on every write.
type WorkflowRecord struct {
	ID             string              `json:"id"`
	WorkflowID     string              `json:"workflow_id"`
	SubjectID      string              `json:"subject_id"`
	CurrentStep    int                 `json:"current_step"`
	Status         string              `json:"status"`
	AssignedActors map[int]string      `json:"assigned_actors,omitempty"`
	StepOutcomes   map[int]StepOutcome `json:"step_outcomes,omitempty"`
	Version        int                 `json:"version"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// StepOutcome records the decision taken on one step. Outcomes are
// append-only: one entry per step that has been acted on.
type StepOutcome struct {
	ActorID   string    `json:"actor_id"`
	Decision  string    `json:"decision"`
	Notes     string    `json:"notes,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Terminal reports whether the record accepts no further transitions.
func (r WorkflowRecord) Terminal() bool {
	return r.Status != RecordStatusActive
}

// Clone returns a deep copy of the record. The maps are copied so that
// callers can mutate the clone without aliasing stored state.
func (r WorkflowRecord) Clone() WorkflowRecord {
	out := r
	if r.AssignedActors != nil {
		out.AssignedActors = make(map[int]string, len(r.AssignedActors))
		for k, v := range r.AssignedActors {
			out.AssignedActors[k] = v
		}
	}
	if r.StepOutcomes != nil {
		out.StepOutcomes = make(map[int]StepOutcome, len(r.StepOutcomes))
		for k, v := range r.StepOutcomes {
			out.StepOutcomes[k] = v
		}
	}
	return out
}

// RecordFilters are optional filters for listing workflow records.
type RecordFilters struct {
	WorkflowID string
	Status     string
	SubjectID  string
	Page       int
	PageSize   int
}
