package models

import (
	"strings"
	"time"
	"unicode"

	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
)

// SlotKey is the storage address of a bookable slot. Equal
// (resource, date, time) triples always derive the same key, however the
// caller formatted them, so concurrent claims collide on one document.
type SlotKey struct {
	// ID is "<resource>_<YYYYMMDD>_<HHMM>" and doubles as the booking id.
	ID         id.BookingID
	ResourceID id.ResourceID
	// Date is YYYY-MM-DD.
	Date string
	// TimeOfDay is 24-hour HH:MM.
	TimeOfDay string
}

func (k SlotKey) String() string { return k.ID.String() }

var dateLayouts = []string{"2006-01-02", "2006/01/02", "20060102"}

var timeLayouts = []string{"15:04", "1504", "15.04", "15:04:05", "3:04 PM", "3:04PM"}

// DeriveSlotKey normalizes the triple and builds its key. Malformed input is
// CodeInvalidInput.
func DeriveSlotKey(resource, date, timeOfDay string) (SlotKey, error) {
	resourceID, err := NormalizeResource(resource)
	if err != nil {
		return SlotKey{}, err
	}
	day, err := parseDate(date)
	if err != nil {
		return SlotKey{}, err
	}
	clock, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return SlotKey{}, err
	}
	key := resourceID.String() + "_" + day.Format("20060102") + "_" + clock.Format("1504")
	bookingID, err := id.ParseBookingID(key)
	if err != nil {
		return SlotKey{}, err
	}
	return SlotKey{
		ID:         bookingID,
		ResourceID: resourceID,
		Date:       day.Format("2006-01-02"),
		TimeOfDay:  clock.Format("15:04"),
	}, nil
}

// NormalizeResource trims and lowercases a resource id and replaces ':' and
// whitespace with '_'.
func NormalizeResource(resource string) (id.ResourceID, error) {
	s := strings.ToLower(strings.TrimSpace(resource))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "resource id is required")
	}
	s = strings.Map(func(r rune) rune {
		if r == ':' || unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, s)
	return id.ParseResourceID(s)
}

func parseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "date must be a calendar date as YYYY-MM-DD")
}

func parseTimeOfDay(raw string) (time.Time, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Second() != 0 {
			return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "time of day must be on a whole minute")
		}
		return t, nil
	}
	return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "time of day must be HH:MM")
}
