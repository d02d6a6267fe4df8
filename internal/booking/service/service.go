// Package service allocates bookable slots. Every state change of a slot goes
// through one Store.Transact call, so two claims on the same slot are
// serialized by the store and at most one of them sees a free slot.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"log/slog"

	"carebook/internal/booking/metrics"
	"carebook/internal/booking/models"
	"carebook/internal/booking/store"
	id "carebook/pkg/domain"
	"carebook/pkg/platform/audit"
)

// Store holds one booking per slot key.
type Store interface {
	Get(ctx context.Context, key id.BookingID) (*models.Booking, error)
	Transact(ctx context.Context, key id.BookingID, fn store.TransactFunc) (*models.Booking, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Booking, error)
	ListByResource(ctx context.Context, resourceID id.ResourceID) ([]*models.Booking, error)
}

// AuditRecorder takes operational events. Recording never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event)
}

type Option func(*Allocator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Allocator) {
		a.metrics = m
	}
}

func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(a *Allocator) {
		a.audit = recorder
	}
}
