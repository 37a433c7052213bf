package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signoff-hq/signoff/model"
)

// MemoryRecordStore is an in-memory RecordStore used for tests and local
// development.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]model.WorkflowRecord // key: record ID
	events  map[string][]model.AuditEvent   // key: record ID
}

// NewMemoryRecordStore creates a new in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[string]model.WorkflowRecord),
		events:  make(map[string][]model.AuditEvent),
	}
}

// Create persists a new record together with its submission event.
func (s *MemoryRecordStore) Create(_ context.Context, record model.WorkflowRecord, event model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return model.NewStaleStateError(
			fmt.Sprintf("record %q already exists", record.ID),
		)
	}

	s.records[record.ID] = record.Clone()
	s.events[record.ID] = append(s.events[record.ID], event)
	return nil
}

// Get retrieves a record by ID.
func (s *MemoryRecordStore) Get(_ context.Context, recordID string) (model.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[recordID]
	if !exists {
		return model.WorkflowRecord{}, model.NewNotFoundError(
			fmt.Sprintf("record %q not found", recordID),
		)
	}
	return record.Clone(), nil
}

// Commit persists an updated record and appends its audit event atomically,
// with an optimistic version check.
func (s *MemoryRecordStore) Commit(_ context.Context, record model.WorkflowRecord, event model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[record.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("record %q not found", record.ID),
		)
	}

	if existing.Version != record.Version {
		return model.NewStaleStateError(
			fmt.Sprintf("record %q version conflict (expected %d, stored %d)", record.ID, record.Version, existing.Version),
		)
	}

	stored := record.Clone()
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	s.records[record.ID] = stored
	s.events[record.ID] = append(s.events[record.ID], event)
	return nil
}

// Events retrieves the audit trail for a record ordered by timestamp.
func (s *MemoryRecordStore) Events(_ context.Context, recordID string) ([]model.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.records[recordID]; !exists {
		return nil, model.NewNotFoundError(
			fmt.Sprintf("record %q not found", recordID),
		)
	}

	events := s.events[recordID]
	result := make([]model.AuditEvent, len(events))
	copy(result, events)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// Find returns records matching the filters, newest first.
func (s *MemoryRecordStore) Find(_ context.Context, filters model.RecordFilters) ([]model.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkflowRecord
	for _, record := range s.records {
		if filters.WorkflowID != "" && record.WorkflowID != filters.WorkflowID {
			continue
		}
		if filters.Status != "" && record.Status != filters.Status {
			continue
		}
		if filters.SubjectID != "" && record.SubjectID != filters.SubjectID {
			continue
		}
		result = append(result, record.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filters.Page > 0 && filters.PageSize > 0 {
		offset := (filters.Page - 1) * filters.PageSize
		if offset >= len(result) {
			return []model.WorkflowRecord{}, nil
		}
		result = result[offset:]
		if filters.PageSize < len(result) {
			result = result[:filters.PageSize]
		}
	}

	return result, nil
}

// Len returns the total number of records. For testing.
func (s *MemoryRecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
