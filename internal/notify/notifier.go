// Package notify delivers workflow notifications to interested actors.
// Delivery is best-effort: the engine commits transitions regardless of
// notification outcome and surfaces failures as soft warnings.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Notification kinds.
const (
	KindSubmitted   = "submitted"
	KindStepPending = "step_pending"
	KindApproved    = "approved"
	KindRejected    = "rejected"
)

// Notification describes one workflow event to be delivered to a recipient.
// Exactly one of RecipientID and RecipientRole is set: a role recipient means
// every holder of that role should be reached.
type Notification struct {
	RecordID      string    `json:"record_id"`
	WorkflowID    string    `json:"workflow_id"`
	WorkflowName  string    `json:"workflow_name"`
	StepOrdinal   int       `json:"step_ordinal"`
	StepName      string    `json:"step_name"`
	Kind          string    `json:"kind"`
	Decision      string    `json:"decision,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	RecipientID   string    `json:"recipient_id,omitempty"`
	RecipientRole string    `json:"recipient_role,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier delivers notifications. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// LogNotifier writes notifications to the application log. Used in
// development and as the default driver.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info("notification",
		zap.String("kind", n.Kind),
		zap.String("record_id", n.RecordID),
		zap.String("workflow_id", n.WorkflowID),
		zap.Int("step_ordinal", n.StepOrdinal),
		zap.String("step_name", n.StepName),
		zap.String("recipient_id", n.RecipientID),
		zap.String("recipient_role", n.RecipientRole),
	)
	return nil
}
