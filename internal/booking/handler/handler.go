// Package handler exposes the slot allocator over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"carebook/internal/booking/models"
	"carebook/internal/booking/service"
	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
	"carebook/pkg/platform/httputil"
	"carebook/pkg/requestcontext"
)

type Allocator interface {
	Claim(ctx context.Context, req service.ClaimRequest) (id.BookingID, error)
	Cancel(ctx context.Context, bookingID id.BookingID, requesterID id.UserID) (*models.Booking, error)
	Confirm(ctx context.Context, bookingID id.BookingID, resourceID id.ResourceID) (*models.Booking, error)
	Complete(ctx context.Context, bookingID id.BookingID, resourceID id.ResourceID) (*models.Booking, error)
	Get(ctx context.Context, bookingID id.BookingID, requesterID id.UserID) (*models.Booking, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Booking, error)
	ListByResource(ctx context.Context, resourceID id.ResourceID) ([]*models.Booking, error)
}

type Handler struct {
	allocator Allocator
	logger    *slog.Logger
}

func New(allocator Allocator, logger *slog.Logger) *Handler {
	return &Handler{allocator: allocator, logger: logger}
}

// Register mounts the booking endpoints. The router must already require auth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/booking/claim", h.HandleClaim)
	r.Post("/booking/cancel", h.HandleCancel)
	r.Post("/booking/confirm", h.HandleConfirm)
	r.Post("/booking/complete", h.HandleComplete)
	r.Get("/booking", h.HandleList)
	r.Get("/booking/{bookingId}", h.HandleGet)
}

// HandleClaim handles POST /booking/claim.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ClaimRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	bookingID, err := h.allocator.Claim(ctx, service.ClaimRequest{
		UserID:     userID,
		ResourceID: req.ResourceID,
		Date:       req.Date,
		TimeOfDay:  req.TimeOfDay,
		Kind:       req.Kind,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ClaimResponse{BookingID: bookingID.String()})
}

// HandleCancel handles POST /booking/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[BookingActionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	booking, err := h.allocator.Cancel(ctx, req.bookingID, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBookingResponse(booking))
}

// HandleConfirm handles POST /booking/confirm. The caller acts as the
// resource named by their own id.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, h.allocator.Confirm)
}

// HandleComplete handles POST /booking/complete.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, h.allocator.Complete)
}

type advanceFunc func(ctx context.Context, bookingID id.BookingID, resourceID id.ResourceID) (*models.Booking, error)

func (h *Handler) advance(w http.ResponseWriter, r *http.Request, next advanceFunc) {
	ctx := r.Context()
	resourceID, ok := h.callerAsResource(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[BookingActionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	booking, err := next(ctx, req.bookingID, resourceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBookingResponse(booking))
}

// HandleGet handles GET /booking/{bookingId}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	bookingID, err := id.ParseBookingID(chi.URLParam(r, "bookingId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	booking, err := h.allocator.Get(ctx, bookingID, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBookingResponse(booking))
}

// HandleList handles GET /booking. With ?as=resource it returns the caller's
// own calendar instead of the sessions they booked.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		bookings []*models.Booking
		err      error
	)
	switch r.URL.Query().Get("as") {
	case "", "user":
		userID, ok := h.caller(w, r)
		if !ok {
			return
		}
		bookings, err = h.allocator.ListByUser(ctx, userID)
	case "resource":
		resourceID, ok := h.callerAsResource(w, r)
		if !ok {
			return
		}
		bookings, err = h.allocator.ListByResource(ctx, resourceID)
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "as must be user or resource"))
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(bookings))
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID := requestcontext.UserID(r.Context())
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return userID, true
}

func (h *Handler) callerAsResource(w http.ResponseWriter, r *http.Request) (id.ResourceID, bool) {
	userID, ok := h.caller(w, r)
	if !ok {
		return "", false
	}
	resourceID, err := models.NormalizeResource(userID.String())
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return resourceID, true
}
