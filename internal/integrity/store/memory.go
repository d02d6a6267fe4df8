package store

import (
	"context"
	"sync"

	"carebook/internal/integrity/models"
	id "carebook/pkg/domain"
	"carebook/pkg/platform/sentinel"
)

// InMemory stores records in a map. Callers get copies; mutation goes
// through Execute.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.RecordID]*models.Record)}
}

// Create inserts a new record. Returns sentinel.ErrAlreadyUsed when the id exists.
func (s *InMemory) Create(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.records[record.ID] = clone(record)
	return nil
}

func (s *InMemory) Get(_ context.Context, recordID id.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(r), nil
}

// Execute runs validate then mutate on the record while holding the lock.
// A validate error aborts with nothing written.
func (s *InMemory) Execute(ctx context.Context, recordID id.RecordID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := clone(current)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.records[recordID] = working
	return clone(working), nil
}

// Put overwrites a record unconditionally. It exists for fixtures that
// simulate out-of-band edits of the mutable copy.
func (s *InMemory) Put(_ context.Context, record *models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = clone(record)
}
