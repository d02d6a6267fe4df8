package handler

import (
	"time"

	"carebook/internal/booking/models"
)

type ClaimResponse struct {
	BookingID string `json:"bookingId"`
}

type BookingResponse struct {
	BookingID  string    `json:"bookingId"`
	UserID     string    `json:"userId"`
	ResourceID string    `json:"resourceId"`
	Date       string    `json:"date"`
	TimeOfDay  string    `json:"timeOfDay"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type BookingListResponse struct {
	Bookings []BookingResponse `json:"bookings"`
}

func toBookingResponse(b *models.Booking) BookingResponse {
	return BookingResponse{
		BookingID:  b.ID.String(),
		UserID:     b.UserID.String(),
		ResourceID: b.ResourceID.String(),
		Date:       b.Date,
		TimeOfDay:  b.TimeOfDay,
		Kind:       string(b.Kind),
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func toListResponse(bookings []*models.Booking) BookingListResponse {
	out := make([]BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	return BookingListResponse{Bookings: out}
}
