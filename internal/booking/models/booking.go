package models

import (
	"strings"
	"time"

	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
)

// Status is the lifecycle of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusCompleted},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Kind is how the session takes place.
type Kind string

const (
	KindVideo    Kind = "video"
	KindPhone    Kind = "phone"
	KindLiveChat Kind = "live_chat"
	KindInPerson Kind = "in_person"
)

// ParseKind accepts display forms such as "Live Chat" or "in-person".
func ParseKind(s string) (Kind, error) {
	normalized := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch k := Kind(normalized); k {
	case KindVideo, KindPhone, KindLiveChat, KindInPerson:
		return k, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unsupported session kind: "+s)
}

// Booking occupies one slot. Bookings are never deleted; a cancelled
// booking's slot is reclaimed by overwriting it with a new pending booking.
type Booking struct {
	ID         id.BookingID
	UserID     id.UserID
	ResourceID id.ResourceID
	Date       string
	TimeOfDay  string
	Kind       Kind
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Replaced is the status of the booking a claim overwrote, empty for a
	// fresh slot. It describes a single write and is never persisted.
	Replaced Status
}

func NewBooking(key SlotKey, userID id.UserID, kind Kind, now time.Time) (*Booking, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "booking user cannot be empty")
	}
	if key.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "booking slot cannot be empty")
	}
	return &Booking{
		ID:         key.ID,
		UserID:     userID,
		ResourceID: key.ResourceID,
		Date:       key.Date,
		TimeOfDay:  key.TimeOfDay,
		Kind:       kind,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Reclaimed reports whether this booking was written over an earlier one.
func (b *Booking) Reclaimed() bool {
	return b.Replaced != ""
}

// Occupies reports whether the booking blocks new claims on its slot.
func (b *Booking) Occupies() bool {
	return b != nil && b.Status != StatusCancelled
}

// CanCancel allows only the booking's user to cancel a live booking.
func (b *Booking) CanCancel(requesterID id.UserID) error {
	if requesterID != b.UserID {
		return dErrors.New(dErrors.CodeForbidden, "only the booking owner can cancel it")
	}
	return b.canMoveTo(StatusCancelled)
}

// CanAdvance allows only the booked resource to confirm or complete.
func (b *Booking) CanAdvance(resourceID id.ResourceID, next Status) error {
	if resourceID != b.ResourceID {
		return dErrors.New(dErrors.CodeForbidden, "only the booked resource can "+verb(next)+" this booking")
	}
	return b.canMoveTo(next)
}

// MoveTo sets the status. Call CanCancel or CanAdvance first.
func (b *Booking) MoveTo(next Status, now time.Time) {
	b.Status = next
	b.UpdatedAt = now
}

// VisibleTo reports whether userID is the booking's user or its resource.
func (b *Booking) VisibleTo(userID id.UserID) bool {
	if userID == b.UserID {
		return true
	}
	resourceID, err := NormalizeResource(userID.String())
	return err == nil && resourceID == b.ResourceID
}

func (b *Booking) canMoveTo(next Status) error {
	if !b.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation, "booking is already "+string(b.Status))
	}
	return nil
}

func verb(s Status) string {
	switch s {
	case StatusConfirmed:
		return "confirm"
	case StatusCompleted:
		return "complete"
	}
	return "update"
}
