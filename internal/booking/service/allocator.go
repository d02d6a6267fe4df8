package service

import (
	"context"
	"log/slog"
	"time"

	"carebook/internal/booking/metrics"
	"carebook/internal/booking/models"
	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
	"carebook/pkg/platform/audit"
	"carebook/pkg/requestcontext"
)

// ClaimRequest asks for one slot. ResourceID, Date and TimeOfDay are the raw
// inputs to the slot key; Kind accepts display forms such as "Live Chat".
type ClaimRequest struct {
	UserID     id.UserID
	ResourceID string
	Date       string
	TimeOfDay  string
	Kind       string
}

type Allocator struct {
	store   Store
	audit   AuditRecorder
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(store Store, opts ...Option) *Allocator {
	a := &Allocator{store: store}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

// Claim books the slot for req.UserID. A slot with no booking or a cancelled
// one is written as a new pending booking; a live booking yields ErrSlotTaken
// and nothing is written.
func (a *Allocator) Claim(ctx context.Context, req ClaimRequest) (id.BookingID, error) {
	start := time.Now()
	bookingID, err := a.claim(ctx, req)
	a.metrics.IncClaim(claimOutcome(err), time.Since(start).Seconds())
	return bookingID, err
}

func (a *Allocator) claim(ctx context.Context, req ClaimRequest) (id.BookingID, error) {
	if req.UserID.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "caller is not authenticated")
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		return "", err
	}
	key, err := models.DeriveSlotKey(req.ResourceID, req.Date, req.TimeOfDay)
	if err != nil {
		return "", err
	}
	if own, err := models.NormalizeResource(req.UserID.String()); err == nil && own == key.ResourceID {
		return "", dErrors.New(dErrors.CodeBadRequest, "you cannot book your own calendar")
	}

	now := requestcontext.Now(ctx)
	booking, err := a.store.Transact(ctx, key.ID, func(current *models.Booking) (*models.Booking, error) {
		if current.Occupies() {
			return nil, ErrSlotTaken
		}
		next, err := models.NewBooking(key, req.UserID, kind, now)
		if err != nil {
			return nil, err
		}
		if current != nil {
			next.Replaced = current.Status
		}
		return next, nil
	})
	if err != nil {
		err = storeError(err, "claim slot")
		a.logFailure(ctx, "slot claim failed", key.ID, err)
		return "", err
	}
	if booking.Reclaimed() {
		a.metrics.IncReclaimed()
	}

	a.record(ctx, audit.EventBookingClaimed, booking, req.UserID, string(models.StatusPending))
	a.logger.InfoContext(ctx, "slot claimed",
		"booking_id", booking.ID,
		"resource_id", booking.ResourceID,
		"reclaimed", booking.Reclaimed(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return booking.ID, nil
}

// Cancel frees the slot. Only the booking's user may cancel.
func (a *Allocator) Cancel(ctx context.Context, bookingID id.BookingID, requesterID id.UserID) (*models.Booking, error) {
	return a.transition(ctx, bookingID, requesterID, models.StatusCancelled, audit.EventBookingCancelled,
		func(b *models.Booking) error { return b.CanCancel(requesterID) })
}

// Confirm accepts a pending booking on behalf of the booked resource.
func (a *Allocator) Confirm(ctx context.Context, bookingID id.BookingID, resourceID id.ResourceID) (*models.Booking, error) {
	return a.transition(ctx, bookingID, id.UserID(resourceID), models.StatusConfirmed, audit.EventBookingConfirmed,
		func(b *models.Booking) error { return b.CanAdvance(resourceID, models.StatusConfirmed) })
}

// Complete closes a pending or confirmed booking after the session.
func (a *Allocator) Complete(ctx context.Context, bookingID id.BookingID, resourceID id.ResourceID) (*models.Booking, error) {
	return a.transition(ctx, bookingID, id.UserID(resourceID), models.StatusCompleted, audit.EventBookingCompleted,
		func(b *models.Booking) error { return b.CanAdvance(resourceID, models.StatusCompleted) })
}

func (a *Allocator) transition(ctx context.Context, bookingID id.BookingID, actor id.UserID, next models.Status, action audit.AuditEvent, allowed func(*models.Booking) error) (*models.Booking, error) {
	now := requestcontext.Now(ctx)
	booking, err := a.store.Transact(ctx, bookingID, func(current *models.Booking) (*models.Booking, error) {
		if current == nil {
			return nil, dErrors.New(dErrors.CodeNotFound, "booking not found")
		}
		if err := allowed(current); err != nil {
			return nil, err
		}
		current.MoveTo(next, now)
		return current, nil
	})
	if err != nil {
		err = storeError(err, "update booking")
		a.logFailure(ctx, "booking update failed", bookingID, err)
		return nil, err
	}

	a.metrics.IncTransition(string(next))
	a.record(ctx, action, booking, actor, string(next))
	return booking, nil
}

// Get returns the booking to its user or its resource.
func (a *Allocator) Get(ctx context.Context, bookingID id.BookingID, requesterID id.UserID) (*models.Booking, error) {
	booking, err := a.store.Get(ctx, bookingID)
	if err != nil {
		err = storeError(err, "load booking")
		a.logFailure(ctx, "booking lookup failed", bookingID, err)
		return nil, err
	}
	if !booking.VisibleTo(requesterID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "booking belongs to someone else")
	}
	return booking, nil
}

// ListByUser returns the user's bookings, newest first.
func (a *Allocator) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Booking, error) {
	bookings, err := a.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, "list bookings")
	}
	return bookings, nil
}

// ListByResource returns the resource's calendar, newest first.
func (a *Allocator) ListByResource(ctx context.Context, resourceID id.ResourceID) ([]*models.Booking, error) {
	bookings, err := a.store.ListByResource(ctx, resourceID)
	if err != nil {
		return nil, storeError(err, "list bookings")
	}
	return bookings, nil
}

func (a *Allocator) record(ctx context.Context, action audit.AuditEvent, b *models.Booking, actor id.UserID, decision string) {
	if a.audit == nil {
		return
	}
	a.audit.Record(ctx, audit.Event{
		Category:  audit.CategoryOperations,
		Timestamp: requestcontext.Now(ctx),
		UserID:    b.UserID,
		Subject:   b.ID.String(),
		Action:    string(action),
		Decision:  decision,
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   actor.String(),
	})
}

// logFailure keeps expected outcomes out of the error log.
func (a *Allocator) logFailure(ctx context.Context, msg string, bookingID id.BookingID, err error) {
	attrs := []any{
		"booking_id", bookingID,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	switch dErrors.GetCode(err) {
	case dErrors.CodeInternal:
		a.logger.ErrorContext(ctx, msg, attrs...)
	case dErrors.CodeTimeout, dErrors.CodeUnavailable:
		a.logger.WarnContext(ctx, msg, attrs...)
	default:
		a.logger.InfoContext(ctx, msg, attrs...)
	}
}
