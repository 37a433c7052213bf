package model

import "time"

// Per-step display statuses reported by the progress query.
const (
	StepStatusPending    = "pending"
	StepStatusApproved   = "approved"
	StepStatusRejected   = "rejected"
	StepStatusNotReached = "not_reached"
)

// TransitionResult is returned by a successfully applied transition.
// Warning is set when the post-commit notification failed; the transition
// itself is committed regardless.
type TransitionResult struct {
	NewStatus      string `json:"new_status"`
	NewCurrentStep int    `json:"new_current_step"`
	Warning        string `json:"warning,omitempty"`
}

// Progress is the frontend view of where a record stands in its chain.
type Progress struct {
	RecordID      string         `json:"record_id"`
	WorkflowID    string         `json:"workflow_id"`
	WorkflowName  string         `json:"workflow_name"`
	OverallStatus string         `json:"overall_status"`
	CurrentStep   int            `json:"current_step"`
	Steps         []StepProgress `json:"steps"`
}

// StepProgress is one step's position in the progress view.
type StepProgress struct {
	Ordinal   int        `json:"ordinal"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	ActorID   string     `json:"actor_id,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// StepDuration reports the time spent on one step, computed from the deltas
// between consecutive audit event timestamps.
type StepDuration struct {
	Ordinal int           `json:"ordinal"`
	Name    string        `json:"name"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Decided bool          `json:"decided"`
}

// RecordSummary is a lightweight representation of a workflow record used in
// list views.
type RecordSummary struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflow_id"`
	Name        string    `json:"name"`
	SubjectID   string    `json:"subject_id"`
	CurrentStep int       `json:"current_step"`
	StepName    string    `json:"step_name,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
