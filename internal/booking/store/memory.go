package store

import (
	"context"
	"sync"
	"time"

	"carebook/internal/booking/models"
	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
	"carebook/pkg/platform/sentinel"
)

// numShards spreads slot keys over independent locks so claims on different
// slots never wait on each other.
const numShards = 128

// InMemory is the development and test store.
type InMemory struct {
	shards   [numShards]sync.Mutex
	mu       sync.RWMutex
	bookings map[id.BookingID]*models.Booking
	timeout  time.Duration
}

type MemoryOption func(*InMemory)

// WithTxTimeout overrides the default transaction timeout.
func WithTxTimeout(d time.Duration) MemoryOption {
	return func(s *InMemory) {
		s.timeout = d
	}
}

func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{
		bookings: make(map[id.BookingID]*models.Booking),
		timeout:  defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) Get(ctx context.Context, key id.BookingID) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(b), nil
}

// Transact holds the key's shard lock across fn and the write. A context
// that ends before the write aborts with nothing written.
func (s *InMemory) Transact(ctx context.Context, key id.BookingID, fn TransactFunc) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := withDefaultTimeout(ctx, s.timeout)
	defer cancel()

	shard := &s.shards[shardFor(key)]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	s.mu.RLock()
	current := clone(s.bookings[key])
	s.mu.RUnlock()

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	stored := clone(next)
	stored.Replaced = ""
	s.mu.Lock()
	s.bookings[key] = stored
	s.mu.Unlock()
	return clone(next), nil
}

func (s *InMemory) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Booking, error) {
	return s.list(ctx, func(b *models.Booking) bool { return b.UserID == userID })
}

func (s *InMemory) ListByResource(ctx context.Context, resourceID id.ResourceID) ([]*models.Booking, error) {
	return s.list(ctx, func(b *models.Booking) bool { return b.ResourceID == resourceID })
}

func (s *InMemory) list(ctx context.Context, match func(*models.Booking) bool) ([]*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*models.Booking, 0)
	for _, b := range s.bookings {
		if match(b) {
			out = append(out, clone(b))
		}
	}
	s.mu.RUnlock()
	newestFirst(out)
	return out, nil
}

// shardFor hashes the key with FNV-1a.
func shardFor(key id.BookingID) int {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime
	}
	return int(h % numShards)
}
