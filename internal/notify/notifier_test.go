package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNopNotifier(t *testing.T) {
	var n Notifier = NopNotifier{}
	if err := n.Notify(context.Background(), Notification{Kind: KindSubmitted}); err != nil {
		t.Errorf("Notify() error = %v", err)
	}
}

func TestLogNotifier_logsFields(t *testing.T) {
	var buf bytes.Buffer
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	logger := zap.New(zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.DebugLevel))

	n := NewLogNotifier(logger)
	err := n.Notify(context.Background(), Notification{
		RecordID:    "rec-1",
		WorkflowID:  "leave.standard",
		StepOrdinal: 2,
		StepName:    "HR Certification",
		Kind:        KindStepPending,
		RecipientID: "user-y",
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["msg"] != "notification" {
		t.Errorf("msg = %q, want notification", entry["msg"])
	}
	if entry["record_id"] != "rec-1" {
		t.Errorf("record_id = %v, want rec-1", entry["record_id"])
	}
	if entry["kind"] != KindStepPending {
		t.Errorf("kind = %v, want %s", entry["kind"], KindStepPending)
	}
	if entry["step_ordinal"] != float64(2) {
		t.Errorf("step_ordinal = %v, want 2", entry["step_ordinal"])
	}
}

func TestNotification_jsonShape(t *testing.T) {
	occurred := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	n := Notification{
		RecordID:     "rec-1",
		WorkflowID:   "leave.standard",
		WorkflowName: "Leave Request",
		StepOrdinal:  3,
		StepName:     "Director Approval",
		Kind:         KindApproved,
		Decision:     "approved",
		RecipientID:  "user-w",
		OccurredAt:   occurred,
	}

	payload, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"record_id", "workflow_id", "workflow_name", "step_ordinal", "step_name", "kind", "decision", "recipient_id", "occurred_at"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("payload missing field %q", key)
		}
	}
	// Empty optional fields should be omitted from queue payloads.
	if _, ok := fields["recipient_role"]; ok {
		t.Error("recipient_role should be omitted when empty")
	}
	if _, ok := fields["notes"]; ok {
		t.Error("notes should be omitted when empty")
	}
}
