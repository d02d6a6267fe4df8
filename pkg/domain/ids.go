package domain

import (
	"unicode/utf8"

	dErrors "carebook/pkg/domain-errors"
)

// Typed identifiers. Each is a distinct string type so that a RecordID can
// never be passed where a BookingID is expected.
//
// Identifiers are opaque, caller-visible strings (the identity provider's
// subject for users, a stable slug for records). Construct them with the
// Parse* functions at trust boundaries; direct conversion skips validation
// and is reserved for values read back from storage.
type (
	UserID     string
	ResourceID string
	RecordID   string
	BookingID  string
)

// MaxIDLength bounds every identifier accepted from the outside.
const MaxIDLength = 128

func ParseUserID(s string) (UserID, error) {
	v, err := parseID("user id", s)
	return UserID(v), err
}

func ParseResourceID(s string) (ResourceID, error) {
	v, err := parseID("resource id", s)
	return ResourceID(v), err
}

func ParseRecordID(s string) (RecordID, error) {
	v, err := parseID("record id", s)
	return RecordID(v), err
}

func ParseBookingID(s string) (BookingID, error) {
	v, err := parseID("booking id", s)
	return BookingID(v), err
}

func (id UserID) String() string     { return string(id) }
func (id ResourceID) String() string { return string(id) }
func (id RecordID) String() string   { return string(id) }
func (id BookingID) String() string  { return string(id) }

func (id UserID) IsNil() bool     { return id == "" }
func (id ResourceID) IsNil() bool { return id == "" }
func (id RecordID) IsNil() bool   { return id == "" }
func (id BookingID) IsNil() bool  { return id == "" }

// AsResource views a principal as the bookable resource it represents.
// Professionals are both users (they sign in) and resources (they are booked).
func (id UserID) AsResource() ResourceID { return ResourceID(id) }

// parseID accepts ASCII letters, digits and the separators . _ - @.
// Anything else (whitespace, path separators, quotes, control bytes) is
// rejected rather than normalized.
func parseID(kind, s string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > MaxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" must be valid UTF-8")
	}
	for i := 0; i < len(s); i++ {
		if !isIDByte(s[i]) {
			return "", dErrors.New(dErrors.CodeInvalidInput, kind+" contains invalid characters")
		}
	}
	return s, nil
}

func isIDByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '-', c == '@':
		return true
	}
	return false
}
