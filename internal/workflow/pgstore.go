package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/signoff-hq/signoff/model"
)

// PgRecordStore is a PostgreSQL-backed RecordStore using pgx/v5. Record state
// and audit events commit in a single transaction.
type PgRecordStore struct {
	pool *pgxpool.Pool
}

// NewPgRecordStore creates a new PostgreSQL record store.
func NewPgRecordStore(pool *pgxpool.Pool) *PgRecordStore {
	return &PgRecordStore{pool: pool}
}

// Create inserts a new record and its submission event in one transaction.
func (s *PgRecordStore) Create(ctx context.Context, record model.WorkflowRecord, event model.AuditEvent) error {
	assignedJSON, outcomesJSON, err := marshalRecordMaps(record)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO workflow_records (
			id, workflow_id, subject_id,
			current_step, status, assigned_actors, step_outcomes, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.WorkflowID, record.SubjectID,
		record.CurrentStep, record.Status, assignedJSON, outcomesJSON, record.Version,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow record: %w", err)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Get retrieves a record by ID.
func (s *PgRecordStore) Get(ctx context.Context, recordID string) (model.WorkflowRecord, error) {
	var record model.WorkflowRecord
	var assignedJSON, outcomesJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, subject_id,
		       current_step, status, assigned_actors, step_outcomes, version,
		       created_at, updated_at
		FROM workflow_records
		WHERE id = $1`,
		recordID,
	).Scan(
		&record.ID, &record.WorkflowID, &record.SubjectID,
		&record.CurrentStep, &record.Status, &assignedJSON, &outcomesJSON, &record.Version,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkflowRecord{}, model.NewNotFoundError(
			fmt.Sprintf("record %q not found", recordID),
		)
	}
	if err != nil {
		return model.WorkflowRecord{}, fmt.Errorf("query workflow record: %w", err)
	}

	if err := unmarshalRecordMaps(&record, assignedJSON, outcomesJSON); err != nil {
		return model.WorkflowRecord{}, err
	}

	return record, nil
}

// Commit persists an updated record and appends its audit event in one
// transaction, with an optimistic version check on the UPDATE.
func (s *PgRecordStore) Commit(ctx context.Context, record model.WorkflowRecord, event model.AuditEvent) error {
	assignedJSON, outcomesJSON, err := marshalRecordMaps(record)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE workflow_records SET
			current_step = $1,
			status = $2,
			assigned_actors = $3,
			step_outcomes = $4,
			version = $5,
			updated_at = now()
		WHERE id = $6 AND version = $7`,
		record.CurrentStep, record.Status, assignedJSON, outcomesJSON, record.Version+1,
		record.ID, record.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing record from a lost version race.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM workflow_records WHERE id = $1)`,
			record.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check workflow record: %w", err)
		}
		if !exists {
			return model.NewNotFoundError(
				fmt.Sprintf("record %q not found", record.ID),
			)
		}
		return model.NewStaleStateError(
			fmt.Sprintf("record %q version conflict (expected %d)", record.ID, record.Version),
		)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Events retrieves the audit trail for a record ordered by timestamp.
func (s *PgRecordStore) Events(ctx context.Context, recordID string) ([]model.AuditEvent, error) {
	if _, err := s.Get(ctx, recordID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, record_id, step_ordinal, actor_id, decision, notes, created_at
		FROM audit_events
		WHERE record_id = $1
		ORDER BY created_at ASC, step_ordinal ASC`,
		recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var evt model.AuditEvent
		if err := rows.Scan(
			&evt.ID, &evt.RecordID, &evt.StepOrdinal,
			&evt.ActorID, &evt.Decision, &evt.Notes, &evt.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Find returns records matching the filters, newest first.
func (s *PgRecordStore) Find(ctx context.Context, filters model.RecordFilters) ([]model.WorkflowRecord, error) {
	query := `SELECT id, workflow_id, subject_id,
	                 current_step, status, assigned_actors, step_outcomes, version,
	                 created_at, updated_at
	          FROM workflow_records
	          WHERE 1 = 1`
	var args []any
	argIdx := 1

	if filters.WorkflowID != "" {
		query += fmt.Sprintf(" AND workflow_id = $%d", argIdx)
		args = append(args, filters.WorkflowID)
		argIdx++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.SubjectID != "" {
		query += fmt.Sprintf(" AND subject_id = $%d", argIdx)
		args = append(args, filters.SubjectID)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filters.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.PageSize)
		argIdx++
		if filters.Page > 1 {
			query += fmt.Sprintf(" OFFSET $%d", argIdx)
			args = append(args, (filters.Page-1)*filters.PageSize)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflow records: %w", err)
	}
	defer rows.Close()

	var records []model.WorkflowRecord
	for rows.Next() {
		var record model.WorkflowRecord
		var assignedJSON, outcomesJSON []byte
		if err := rows.Scan(
			&record.ID, &record.WorkflowID, &record.SubjectID,
			&record.CurrentStep, &record.Status, &assignedJSON, &outcomesJSON, &record.Version,
			&record.CreatedAt, &record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan workflow record: %w", err)
		}
		if err := unmarshalRecordMaps(&record, assignedJSON, outcomesJSON); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// HealthCheck verifies database connectivity.
func (s *PgRecordStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func insertEvent(ctx context.Context, tx pgx.Tx, event model.AuditEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO audit_events (
			id, record_id, step_ordinal, actor_id, decision, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.RecordID, event.StepOrdinal,
		event.ActorID, event.Decision, event.Notes, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func marshalRecordMaps(record model.WorkflowRecord) (assigned, outcomes []byte, err error) {
	assigned, err = json.Marshal(record.AssignedActors)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal assigned actors: %w", err)
	}
	outcomes, err = json.Marshal(record.StepOutcomes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal step outcomes: %w", err)
	}
	return assigned, outcomes, nil
}

func unmarshalRecordMaps(record *model.WorkflowRecord, assignedJSON, outcomesJSON []byte) error {
	if assignedJSON != nil {
		if err := json.Unmarshal(assignedJSON, &record.AssignedActors); err != nil {
			return fmt.Errorf("unmarshal assigned actors: %w", err)
		}
	}
	if outcomesJSON != nil {
		if err := json.Unmarshal(outcomesJSON, &record.StepOutcomes); err != nil {
			return fmt.Errorf("unmarshal step outcomes: %w", err)
		}
	}
	return nil
}
