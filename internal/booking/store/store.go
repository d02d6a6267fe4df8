// Package store keeps bookings keyed by slot. Every implementation makes
// Transact linearizable per key: the read, the decision and the write happen
// under one lock, row lock or optimistic transaction.
package store

import (
	"context"
	"slices"
	"time"

	"carebook/internal/booking/models"
)

// TransactFunc decides the next state of a slot from its current booking,
// which is nil when the slot was never booked. Returning nil, nil leaves the
// slot untouched; returning an error aborts with nothing written. Optimistic
// stores may call it more than once, so it must not have side effects.
type TransactFunc func(current *models.Booking) (*models.Booking, error)

func clone(b *models.Booking) *models.Booking {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// newestFirst orders by CreatedAt descending, ties broken by id.
func newestFirst(bookings []*models.Booking) {
	slices.SortFunc(bookings, func(a, b *models.Booking) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}

// defaultTxTimeout bounds a transaction when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
