package ledger

import (
	"context"
	"errors"
	"fmt"

	id "carebook/pkg/domain"
)

// Category is the normalized ledger failure taxonomy.
type Category string

const (
	// CategoryUnavailable means the ledger could not be reached or answered with a transport failure.
	CategoryUnavailable Category = "unavailable"

	// CategoryTimeout means the call exceeded its deadline.
	CategoryTimeout Category = "timeout"

	// CategoryAlreadyPublished means a different fingerprint is already on record.
	CategoryAlreadyPublished Category = "already_published"

	// CategoryUnauthorizedSigner means the writer is not on the ledger's allowlist.
	CategoryUnauthorizedSigner Category = "unauthorized_signer"

	// CategoryBadData means the ledger returned a proof that cannot be decoded.
	CategoryBadData Category = "bad_data"
)

// LedgerError wraps ledger failures with normalized categorization.
type LedgerError struct {
	Category   Category
	RecordID   id.RecordID
	Message    string
	Underlying error
	Retryable  bool
}

func (e *LedgerError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("ledger [%s] record %s: %s: %v", e.Category, e.RecordID, e.Message, e.Underlying)
	}
	return fmt.Sprintf("ledger [%s] record %s: %s", e.Category, e.RecordID, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Underlying
}

// Is matches the category sentinels, so errors.Is(err, ErrAlreadyPublished)
// holds for any already_published error regardless of record.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && t.RecordID == "" && t.Underlying == nil && t.Category == e.Category
}

// NewError creates a categorized ledger error.
func NewError(category Category, recordID id.RecordID, message string, underlying error) *LedgerError {
	return &LedgerError{
		Category:   category,
		RecordID:   recordID,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == CategoryUnavailable || category == CategoryTimeout,
	}
}

// Sentinels for errors.Is.
var (
	ErrUnavailable        = &LedgerError{Category: CategoryUnavailable}
	ErrTimeout            = &LedgerError{Category: CategoryTimeout}
	ErrAlreadyPublished   = &LedgerError{Category: CategoryAlreadyPublished}
	ErrUnauthorizedSigner = &LedgerError{Category: CategoryUnauthorizedSigner}
	ErrBadData            = &LedgerError{Category: CategoryBadData}
)

// GetCategory extracts the category, or "" for errors that are not ledger errors.
func GetCategory(err error) Category {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Category
	}
	return ""
}

// IsUnavailable reports failures that say nothing about the ledger's content:
// the ledger could not be asked.
func IsUnavailable(err error) bool {
	switch GetCategory(err) {
	case CategoryUnavailable, CategoryTimeout:
		return true
	}
	return false
}

// Classify maps a raw adapter error into the taxonomy. Ledger errors pass
// through; deadline expiry is a timeout; everything else is unavailable.
func Classify(recordID id.RecordID, op string, err error) error {
	if err == nil {
		return nil
	}
	var le *LedgerError
	if errors.As(err, &le) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CategoryTimeout, recordID, op+" timed out", err)
	}
	return NewError(CategoryUnavailable, recordID, op+" failed", err)
}
