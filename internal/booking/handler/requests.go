package handler

import (
	"strings"

	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
)

// ClaimRequest is the body of POST /booking/claim. Date and time formats are
// checked by the allocator when it derives the slot key.
type ClaimRequest struct {
	ResourceID string `json:"resourceId"`
	Date       string `json:"date"`
	TimeOfDay  string `json:"timeOfDay"`
	Kind       string `json:"kind"`
}

// Validate implements httputil.Validatable.
func (r *ClaimRequest) Validate() error {
	r.ResourceID = strings.TrimSpace(r.ResourceID)
	r.Date = strings.TrimSpace(r.Date)
	r.TimeOfDay = strings.TrimSpace(r.TimeOfDay)
	r.Kind = strings.TrimSpace(r.Kind)
	switch {
	case r.ResourceID == "":
		return dErrors.New(dErrors.CodeValidation, "resourceId is required")
	case r.Date == "":
		return dErrors.New(dErrors.CodeValidation, "date is required")
	case r.TimeOfDay == "":
		return dErrors.New(dErrors.CodeValidation, "timeOfDay is required")
	case r.Kind == "":
		return dErrors.New(dErrors.CodeValidation, "kind is required")
	}
	return nil
}

// BookingActionRequest is the body of cancel, confirm and complete.
type BookingActionRequest struct {
	BookingID string `json:"bookingId"`

	bookingID id.BookingID
}

func (r *BookingActionRequest) Validate() error {
	var err error
	r.bookingID, err = id.ParseBookingID(strings.TrimSpace(r.BookingID))
	return err
}
