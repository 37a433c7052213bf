// Package workflow implements the transition engine: sequential, ordinal
// driven progression of records through their definition's step chain.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signoff-hq/signoff/internal/authz"
	"github.com/signoff-hq/signoff/internal/definition"
	"github.com/signoff-hq/signoff/internal/notify"
	"github.com/signoff-hq/signoff/internal/observability"
	"github.com/signoff-hq/signoff/model"
)

// Authorizer decides whether an actor may act on a step of a record.
type Authorizer interface {
	Authorize(rctx *model.RequestContext, record *model.WorkflowRecord, step model.StepDefinition) (authz.Grant, error)
}

// Engine manages the lifecycle of workflow records: submission, step
// decisions, and progress reporting.
type Engine struct {
	registry   *definition.Registry
	store      RecordStore
	authorizer Authorizer
	notifier   notify.Notifier
	logger     *zap.Logger
	metrics    *observability.Metrics

	now func() time.Time
}

// NewEngine creates a new workflow engine. The notifier and metrics may be
// nil; logger falls back to a no-op logger.
func NewEngine(
	registry *definition.Registry,
	store RecordStore,
	authorizer Authorizer,
	notifier notify.Notifier,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Engine {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry:   registry,
		store:      store,
		authorizer: authorizer,
		notifier:   notifier,
		logger:     logger,
		metrics:    metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a new record for the given workflow, entering step 1.
// Assignments name the actors for "assigned" steps up front, keyed by step
// ordinal; every assigned step needs one, and steps with other rule types
// reject assignments.
func (e *Engine) Submit(
	ctx context.Context,
	rctx *model.RequestContext,
	workflowID string,
	notes string,
	assignments map[int]string,
) (model.WorkflowRecord, error) {
	def, ok := e.registry.Get(workflowID)
	if !ok {
		return model.WorkflowRecord{}, model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", workflowID),
		)
	}

	var details []model.FieldError
	for ordinal := range assignments {
		step, ok := def.Step(ordinal)
		if !ok {
			details = append(details, model.FieldError{
				Field:   "assignments",
				Code:    "UNKNOWN_STEP",
				Message: fmt.Sprintf("workflow %q has no step %d", workflowID, ordinal),
			})
			continue
		}
		if step.Actor.Type != model.ActorRuleAssigned {
			details = append(details, model.FieldError{
				Field:   "assignments",
				Code:    "NOT_ASSIGNABLE",
				Message: fmt.Sprintf("step %d does not take an assigned actor", ordinal),
			})
		}
	}
	// Every assigned step needs its nominee up front; a record reaching an
	// unassigned "assigned" step would be undecidable forever.
	for _, step := range def.Steps {
		if step.Actor.Type != model.ActorRuleAssigned {
			continue
		}
		if assignments[step.Ordinal] == "" {
			details = append(details, model.FieldError{
				Field:   "assignments",
				Code:    "REQUIRED",
				Message: fmt.Sprintf("step %d requires an assigned actor", step.Ordinal),
			})
		}
	}
	if len(details) > 0 {
		return model.WorkflowRecord{}, model.NewValidationError(details)
	}

	now := e.now()
	record := model.WorkflowRecord{
		ID:             uuid.New().String(),
		WorkflowID:     workflowID,
		SubjectID:      rctx.SubjectID,
		CurrentStep:    1,
		Status:         model.RecordStatusActive,
		AssignedActors: make(map[int]string),
		StepOutcomes:   make(map[int]model.StepOutcome),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for ordinal, actorID := range assignments {
		record.AssignedActors[ordinal] = actorID
	}

	// Ordinal 0 marks the submission itself; decided steps start at 1.
	event := model.AuditEvent{
		ID:          uuid.New().String(),
		RecordID:    record.ID,
		StepOrdinal: 0,
		ActorID:     rctx.SubjectID,
		Decision:    model.DecisionSubmitted,
		Notes:       notes,
		Timestamp:   now,
	}

	if err := e.store.Create(ctx, record, event); err != nil {
		return model.WorkflowRecord{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordsSubmittedTotal.WithLabelValues(workflowID).Inc()
	}
	e.logger.Info("record submitted",
		zap.String("record_id", record.ID),
		zap.String("workflow_id", workflowID),
		zap.String("subject_id", rctx.SubjectID),
	)

	if step, ok := def.Step(1); ok {
		e.deliver(ctx, pendingNotification(record, def, step, now))
	}

	return record, nil
}

// ApplyTransition records the actor's decision on the given step of the
// given record and advances or terminates the record accordingly.
//
// Checks run in a fixed order so each refusal maps to exactly one error
// code: existence, terminal status, step ordinal, definition lookup,
// authorization. The state change and its audit event commit atomically;
// a concurrent commit on the same version surfaces as STALE_STATE.
func (e *Engine) ApplyTransition(
	ctx context.Context,
	rctx *model.RequestContext,
	recordID string,
	stepOrdinal int,
	decision string,
	notes string,
) (model.TransitionResult, error) {
	if decision != model.DecisionApproved && decision != model.DecisionRejected {
		return model.TransitionResult{}, model.NewBadRequestError(
			fmt.Sprintf("decision must be %q or %q", model.DecisionApproved, model.DecisionRejected),
		)
	}

	record, err := e.store.Get(ctx, recordID)
	if err != nil {
		return model.TransitionResult{}, err
	}

	if record.Terminal() {
		return model.TransitionResult{}, model.NewAlreadyTerminalError(
			fmt.Sprintf("record %q is %s, no further transitions", recordID, record.Status),
		)
	}

	if stepOrdinal != record.CurrentStep {
		e.countRefusal(record.WorkflowID, model.ErrWrongStep)
		return model.TransitionResult{}, model.NewWrongStepError(
			fmt.Sprintf("record %q is at step %d, not %d", recordID, record.CurrentStep, stepOrdinal),
		)
	}

	def, ok := e.registry.Get(record.WorkflowID)
	if !ok {
		return model.TransitionResult{}, model.NewInvalidDefinitionError(
			fmt.Sprintf("workflow %q is not defined", record.WorkflowID),
		)
	}
	step, ok := def.Step(stepOrdinal)
	if !ok {
		return model.TransitionResult{}, model.NewInvalidDefinitionError(
			fmt.Sprintf("workflow %q has no step %d", record.WorkflowID, stepOrdinal),
		)
	}

	grant, err := e.authorizer.Authorize(rctx, &record, step)
	if err != nil {
		e.countRefusal(record.WorkflowID, model.ErrNotAuthorized)
		return model.TransitionResult{}, err
	}

	now := e.now()
	stepStart := record.UpdatedAt

	updated := record.Clone()
	if grant.SelfAssign {
		updated.AssignedActors[stepOrdinal] = rctx.SubjectID
	}
	updated.StepOutcomes[stepOrdinal] = model.StepOutcome{
		ActorID:   rctx.SubjectID,
		Decision:  decision,
		Notes:     notes,
		DecidedAt: now,
	}

	switch {
	case decision == model.DecisionRejected:
		// Rejection is terminal at any step; the chain short-circuits.
		updated.Status = model.RecordStatusRejected
	case step.Terminal:
		updated.Status = model.RecordStatusApproved
	default:
		updated.CurrentStep++
	}
	updated.UpdatedAt = now

	event := model.AuditEvent{
		ID:          uuid.New().String(),
		RecordID:    record.ID,
		StepOrdinal: stepOrdinal,
		ActorID:     rctx.SubjectID,
		Decision:    decision,
		Notes:       notes,
		Timestamp:   now,
	}

	if err := e.store.Commit(ctx, updated, event); err != nil {
		if model.IsCode(err, model.ErrStaleState) {
			if e.metrics != nil {
				e.metrics.StaleStateConflictsTotal.WithLabelValues(record.WorkflowID).Inc()
			}
			e.logger.Warn("transition lost version race",
				zap.String("record_id", record.ID),
				zap.Int("step_ordinal", stepOrdinal),
				zap.String("actor_id", rctx.SubjectID),
			)
		}
		return model.TransitionResult{}, err
	}

	if e.metrics != nil {
		e.metrics.TransitionsTotal.WithLabelValues(record.WorkflowID, decision).Inc()
		e.metrics.StepDurationSeconds.WithLabelValues(record.WorkflowID).Observe(now.Sub(stepStart).Seconds())
		if updated.Status != model.RecordStatusActive {
			e.metrics.RecordsCompletedTotal.WithLabelValues(record.WorkflowID, updated.Status).Inc()
		}
	}
	e.logger.Info("transition applied",
		zap.String("record_id", record.ID),
		zap.String("workflow_id", record.WorkflowID),
		zap.Int("step_ordinal", stepOrdinal),
		zap.String("decision", decision),
		zap.String("actor_id", rctx.SubjectID),
		zap.String("new_status", updated.Status),
	)

	result := model.TransitionResult{
		NewStatus:      updated.Status,
		NewCurrentStep: updated.CurrentStep,
	}

	for _, n := range e.transitionNotifications(updated, def, step, decision, notes, now) {
		if !e.deliver(ctx, n) {
			result.Warning = "notification delivery failed"
		}
	}

	return result, nil
}

// Progress returns the step-by-step position of a record in its chain.
func (e *Engine) Progress(ctx context.Context, recordID string) (model.Progress, error) {
	record, err := e.store.Get(ctx, recordID)
	if err != nil {
		return model.Progress{}, err
	}

	def, ok := e.registry.Get(record.WorkflowID)
	if !ok {
		return model.Progress{}, model.NewInvalidDefinitionError(
			fmt.Sprintf("workflow %q is not defined", record.WorkflowID),
		)
	}

	steps := make([]model.StepProgress, 0, len(def.Steps))
	for _, step := range def.Steps {
		sp := model.StepProgress{
			Ordinal: step.Ordinal,
			Name:    step.Name,
		}
		if outcome, decided := record.StepOutcomes[step.Ordinal]; decided {
			sp.Status = outcome.Decision
			sp.ActorID = outcome.ActorID
			sp.Notes = outcome.Notes
			decidedAt := outcome.DecidedAt
			sp.DecidedAt = &decidedAt
		} else if step.Ordinal == record.CurrentStep && record.Status == model.RecordStatusActive {
			sp.Status = model.StepStatusPending
		} else {
			sp.Status = model.StepStatusNotReached
		}
		steps = append(steps, sp)
	}

	return model.Progress{
		RecordID:      record.ID,
		WorkflowID:    record.WorkflowID,
		WorkflowName:  def.Name,
		OverallStatus: record.Status,
		CurrentStep:   record.CurrentStep,
		Steps:         steps,
	}, nil
}

// Events returns the audit trail of a record ordered by timestamp.
func (e *Engine) Events(ctx context.Context, recordID string) ([]model.AuditEvent, error) {
	return e.store.Events(ctx, recordID)
}

// StepDurations reports how long each acted-on step waited for its decision,
// computed from the deltas between consecutive audit event timestamps. The
// currently pending step, if any, is reported as undecided with its elapsed
// time so far.
func (e *Engine) StepDurations(ctx context.Context, recordID string) ([]model.StepDuration, error) {
	record, err := e.store.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	def, ok := e.registry.Get(record.WorkflowID)
	if !ok {
		return nil, model.NewInvalidDefinitionError(
			fmt.Sprintf("workflow %q is not defined", record.WorkflowID),
		)
	}

	events, err := e.store.Events(ctx, recordID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	var durations []model.StepDuration
	var prev time.Time
	for _, evt := range events {
		if evt.Decision == model.DecisionSubmitted {
			prev = evt.Timestamp
			continue
		}
		name := ""
		if step, ok := def.Step(evt.StepOrdinal); ok {
			name = step.Name
		}
		durations = append(durations, model.StepDuration{
			Ordinal: evt.StepOrdinal,
			Name:    name,
			Start:   prev,
			End:     evt.Timestamp,
			Elapsed: evt.Timestamp.Sub(prev),
			Decided: true,
		})
		prev = evt.Timestamp
	}

	if record.Status == model.RecordStatusActive {
		now := e.now()
		name := ""
		if step, ok := def.Step(record.CurrentStep); ok {
			name = step.Name
		}
		durations = append(durations, model.StepDuration{
			Ordinal: record.CurrentStep,
			Name:    name,
			Start:   prev,
			End:     now,
			Elapsed: now.Sub(prev),
			Decided: false,
		})
	}

	return durations, nil
}

// List returns record summaries matching the filters, plus the total count.
func (e *Engine) List(
	ctx context.Context,
	filters model.RecordFilters,
) ([]model.RecordSummary, int, error) {
	if filters.PageSize <= 0 {
		filters.PageSize = 20
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}

	records, err := e.store.Find(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	unpaged := filters
	unpaged.Page = 0
	unpaged.PageSize = 0
	all, err := e.store.Find(ctx, unpaged)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]model.RecordSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, e.summarize(record))
	}
	return summaries, len(all), nil
}

// Inbox returns the active records whose current step the given actor may
// decide right now.
func (e *Engine) Inbox(ctx context.Context, rctx *model.RequestContext) ([]model.RecordSummary, error) {
	records, err := e.store.Find(ctx, model.RecordFilters{Status: model.RecordStatusActive})
	if err != nil {
		return nil, err
	}

	var summaries []model.RecordSummary
	for _, record := range records {
		def, ok := e.registry.Get(record.WorkflowID)
		if !ok {
			continue
		}
		step, ok := def.Step(record.CurrentStep)
		if !ok {
			continue
		}
		if _, err := e.authorizer.Authorize(rctx, &record, step); err != nil {
			continue
		}
		summaries = append(summaries, e.summarize(record))
	}
	return summaries, nil
}

func (e *Engine) summarize(record model.WorkflowRecord) model.RecordSummary {
	summary := model.RecordSummary{
		ID:          record.ID,
		WorkflowID:  record.WorkflowID,
		Name:        record.WorkflowID,
		SubjectID:   record.SubjectID,
		CurrentStep: record.CurrentStep,
		Status:      record.Status,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	if def, ok := e.registry.Get(record.WorkflowID); ok {
		summary.Name = def.Name
		if step, ok := def.Step(record.CurrentStep); ok {
			summary.StepName = step.Name
		}
	}
	return summary
}

// transitionNotifications builds the notifications owed after a committed
// transition: the submitter hears about terminal outcomes, the next step's
// authority hears about newly pending work.
func (e *Engine) transitionNotifications(
	record model.WorkflowRecord,
	def model.WorkflowDefinition,
	decided model.StepDefinition,
	decision, notes string,
	now time.Time,
) []notify.Notification {
	var out []notify.Notification

	switch record.Status {
	case model.RecordStatusApproved:
		out = append(out, notify.Notification{
			RecordID:     record.ID,
			WorkflowID:   record.WorkflowID,
			WorkflowName: def.Name,
			StepOrdinal:  decided.Ordinal,
			StepName:     decided.Name,
			Kind:         notify.KindApproved,
			Decision:     decision,
			Notes:        notes,
			RecipientID:  record.SubjectID,
			OccurredAt:   now,
		})
	case model.RecordStatusRejected:
		out = append(out, notify.Notification{
			RecordID:     record.ID,
			WorkflowID:   record.WorkflowID,
			WorkflowName: def.Name,
			StepOrdinal:  decided.Ordinal,
			StepName:     decided.Name,
			Kind:         notify.KindRejected,
			Decision:     decision,
			Notes:        notes,
			RecipientID:  record.SubjectID,
			OccurredAt:   now,
		})
	default:
		if next, ok := def.Step(record.CurrentStep); ok {
			out = append(out, pendingNotification(record, def, next, now))
		}
	}

	return out
}

// pendingNotification addresses the authority of a newly pending step.
func pendingNotification(
	record model.WorkflowRecord,
	def model.WorkflowDefinition,
	step model.StepDefinition,
	now time.Time,
) notify.Notification {
	n := notify.Notification{
		RecordID:     record.ID,
		WorkflowID:   record.WorkflowID,
		WorkflowName: def.Name,
		StepOrdinal:  step.Ordinal,
		StepName:     step.Name,
		Kind:         notify.KindStepPending,
		OccurredAt:   now,
	}
	if assigned, ok := record.AssignedActors[step.Ordinal]; ok && assigned != "" {
		n.RecipientID = assigned
	} else if step.Actor.Type == model.ActorRuleAssigned {
		// Assignment happens out of band; nobody to notify yet.
	} else {
		n.RecipientRole = step.Actor.Role
	}
	return n
}

// deliver sends a notification and reports success. Failures are logged and
// counted, never propagated.
func (e *Engine) deliver(ctx context.Context, n notify.Notification) bool {
	if err := e.notifier.Notify(ctx, n); err != nil {
		if e.metrics != nil {
			e.metrics.NotificationsFailedTotal.WithLabelValues(n.Kind).Inc()
		}
		e.logger.Warn("notification delivery failed",
			zap.String("kind", n.Kind),
			zap.String("record_id", n.RecordID),
			zap.Error(err),
		)
		return false
	}
	if e.metrics != nil {
		e.metrics.NotificationsSentTotal.WithLabelValues(n.Kind).Inc()
	}
	return true
}

func (e *Engine) countRefusal(workflowID, code string) {
	if e.metrics != nil {
		e.metrics.TransitionsRefusedTotal.WithLabelValues(workflowID, code).Inc()
	}
}
