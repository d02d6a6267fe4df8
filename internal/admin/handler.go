// Package admin exposes operator views over the audit trail. Routes are
// mounted behind the admin token middleware.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
	"carebook/pkg/platform/audit"
	"carebook/pkg/platform/httputil"
	"carebook/pkg/requestcontext"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// AuditReader is the read side of audit.Store.
type AuditReader interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Handler struct {
	audit  AuditReader
	logger *slog.Logger
}

func New(reader AuditReader, logger *slog.Logger) *Handler {
	return &Handler{audit: reader, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/audit/recent", h.HandleRecent)
	r.Get("/admin/audit/users/{userId}", h.HandleUserTrail)
}

// RecentRequest is the body of POST /admin/audit/recent. An empty body
// means the default limit.
type RecentRequest struct {
	Limit int `json:"limit"`
}

func (r *RecentRequest) Validate() error {
	switch {
	case r.Limit < 0:
		return dErrors.New(dErrors.CodeValidation, "limit must not be negative")
	case r.Limit == 0:
		r.Limit = defaultRecentLimit
	case r.Limit > maxRecentLimit:
		r.Limit = maxRecentLimit
	}
	return nil
}

// HandleRecent handles POST /admin/audit/recent.
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := &RecentRequest{}
	if r.ContentLength != 0 {
		var ok bool
		req, ok = httputil.DecodeAndPrepare[RecentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
	} else {
		_ = req.Validate()
	}

	events, err := h.audit.ListRecent(ctx, req.Limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditList(events))
}

// HandleUserTrail handles GET /admin/audit/users/{userId}.
func (h *Handler) HandleUserTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.audit.ListByUser(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditList(events))
}
