package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "carebook/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: review
	// decisions on records and anything written to the integrity ledger.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity such as booking lifecycle changes.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	// UserID is the user the event concerns (record owner, booking holder).
	UserID id.UserID
	// Subject is the affected entity: a record id or a booking id.
	Subject  string
	Action   string
	Decision string
	Reason   string
	// RequestID is the correlation id of the HTTP request.
	RequestID string
	// ActorID is who performed the action when different from UserID,
	// e.g. the reviewer approving a record.
	ActorID string
}

type AuditEvent string

const (
	// Record events
	EventRecordSubmitted AuditEvent = "record_submitted"
	EventRecordEdited    AuditEvent = "record_edited"
	EventRecordApproved  AuditEvent = "record_approved"
	EventRecordRejected  AuditEvent = "record_rejected"
	EventRecordPublished AuditEvent = "record_published"

	// Booking events
	EventBookingClaimed   AuditEvent = "booking_claimed"
	EventBookingCancelled AuditEvent = "booking_cancelled"
	EventBookingConfirmed AuditEvent = "booking_confirmed"
	EventBookingCompleted AuditEvent = "booking_completed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRecordSubmitted: CategoryCompliance,
	EventRecordEdited:    CategoryCompliance,
	EventRecordApproved:  CategoryCompliance,
	EventRecordRejected:  CategoryCompliance,
	EventRecordPublished: CategoryCompliance,

	EventBookingClaimed:   CategoryOperations,
	EventBookingCancelled: CategoryOperations,
	EventBookingConfirmed: CategoryOperations,
	EventBookingCompleted: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures actions that require guaranteed persistence.
// Use with the compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	Timestamp time.Time
	UserID    id.UserID // The user affected (required)
	Subject   string
	Action    AuditEvent
	Decision  string
	Reason    string
	RequestID string
	ActorID   string
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the stored Event shape.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:  CategoryCompliance,
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		Subject:   e.Subject,
		Action:    string(e.Action),
		Decision:  e.Decision,
		Reason:    e.Reason,
		RequestID: e.RequestID,
		ActorID:   e.ActorID,
	}
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
