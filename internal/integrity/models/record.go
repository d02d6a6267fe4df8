package models

import (
	"maps"
	"time"

	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
)

// RecordKind selects the field schema a record is fingerprinted under.
type RecordKind string

const (
	KindCredential   RecordKind = "credential"
	KindClinicalNote RecordKind = "clinical_note"
)

func ParseRecordKind(s string) (RecordKind, error) {
	switch k := RecordKind(s); k {
	case KindCredential, KindClinicalNote:
		return k, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unsupported record kind: "+s)
}

func (k RecordKind) String() string { return string(k) }

// RecordStatus is the review lifecycle of a record.
type RecordStatus string

const (
	StatusDraft    RecordStatus = "draft"
	StatusApproved RecordStatus = "approved"
	StatusRejected RecordStatus = "rejected"
)

// CanTransitionTo allows draft -> approved and draft -> rejected only.
func (s RecordStatus) CanTransitionTo(next RecordStatus) bool {
	return s == StatusDraft && (next == StatusApproved || next == StatusRejected)
}

// Fields holds a record's semantic values keyed by schema field name.
// Values are whatever the transport decoded (strings for JSON input,
// time.Time when constructed in code); the canonical encoder enforces types.
type Fields map[string]any

// Clone returns a shallow copy so callers cannot mutate stored state.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	return maps.Clone(f)
}

// Record is a reviewable document whose approved content is anchored in the
// integrity ledger.
//
// Invariants:
//   - ID, Kind and OwnerID are immutable after construction
//   - Status moves from draft to approved or rejected exactly once
//   - Fields of a rejected record are frozen
//   - Editing an approved record keeps it approved; verification detects the drift
type Record struct {
	ID         id.RecordID
	Kind       RecordKind
	OwnerID    id.UserID
	AuthorID   id.UserID
	Fields     Fields
	Status     RecordStatus
	ReviewerID id.UserID
	Reason     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ReviewedAt *time.Time
}

func NewRecord(recordID id.RecordID, kind RecordKind, ownerID, authorID id.UserID, fields Fields, now time.Time) (*Record, error) {
	if recordID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record id cannot be empty")
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record owner cannot be empty")
	}
	if _, err := ParseRecordKind(string(kind)); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record kind is not supported")
	}
	if authorID.IsNil() {
		authorID = ownerID
	}
	return &Record{
		ID:        recordID,
		Kind:      kind,
		OwnerID:   ownerID,
		AuthorID:  authorID,
		Fields:    fields.Clone(),
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanEdit checks that editorID may replace the record's fields.
// Rejected records are frozen.
func (r *Record) CanEdit(editorID id.UserID) error {
	if editorID != r.OwnerID {
		return dErrors.New(dErrors.CodeForbidden, "only the record owner can edit it")
	}
	if r.Status == StatusRejected {
		return dErrors.New(dErrors.CodeInvariantViolation, "rejected records cannot be edited")
	}
	return nil
}

// ApplyEdit replaces the fields. Call CanEdit first.
func (r *Record) ApplyEdit(fields Fields, now time.Time) {
	r.Fields = fields.Clone()
	r.UpdatedAt = now
}

// CanApprove checks that the record is still awaiting review.
func (r *Record) CanApprove() error {
	if !r.Status.CanTransitionTo(StatusApproved) {
		return dErrors.New(dErrors.CodeInvariantViolation, "record is already "+string(r.Status))
	}
	return nil
}

// ApplyApproval marks the record approved. Call CanApprove first, and only
// after its fingerprint has been published.
func (r *Record) ApplyApproval(reviewerID id.UserID, now time.Time) {
	r.Status = StatusApproved
	r.ReviewerID = reviewerID
	r.ReviewedAt = &now
	r.UpdatedAt = now
}

func (r *Record) CanReject() error {
	if !r.Status.CanTransitionTo(StatusRejected) {
		return dErrors.New(dErrors.CodeInvariantViolation, "record is already "+string(r.Status))
	}
	return nil
}

func (r *Record) ApplyRejection(reviewerID id.UserID, reason string, now time.Time) {
	r.Status = StatusRejected
	r.ReviewerID = reviewerID
	r.Reason = reason
	r.ReviewedAt = &now
	r.UpdatedAt = now
}

// IsApproved reports whether the record has a published fingerprint.
func (r *Record) IsApproved() bool {
	return r.Status == StatusApproved
}
