// Package handler exposes record review and public verification over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"carebook/internal/integrity/models"
	"carebook/internal/integrity/service"
	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
	"carebook/pkg/platform/httputil"
	"carebook/pkg/platform/middleware/auth"
	"carebook/pkg/requestcontext"
)

// RecordService is the review workflow.
type RecordService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*models.Record, error)
	Edit(ctx context.Context, recordID id.RecordID, editorID id.UserID, fields models.Fields) (*models.Record, error)
	Approve(ctx context.Context, recordID id.RecordID, reviewerID id.UserID) (*models.ProofReceipt, error)
	Reject(ctx context.Context, recordID id.RecordID, reviewerID id.UserID, reason string) (*models.Record, error)
	Get(ctx context.Context, recordID id.RecordID) (*models.Record, error)
}

// Verifier answers public integrity checks.
type Verifier interface {
	Verify(ctx context.Context, recordID id.RecordID) (*models.VerificationResult, error)
	VerifyMany(ctx context.Context, recordIDs []id.RecordID) ([]*models.VerificationResult, error)
}

type Handler struct {
	records  RecordService
	verifier Verifier
	logger   *slog.Logger
}

func New(records RecordService, verifier Verifier, logger *slog.Logger) *Handler {
	return &Handler{records: records, verifier: verifier, logger: logger}
}

// RegisterPublic mounts the unauthenticated verification endpoints.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/verify/{recordId}", h.HandleVerify)
	r.Post("/verify", h.HandleVerifyBatch)
}

// Register mounts the record endpoints. The router must already require auth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/records", h.HandleSubmit)
	r.Get("/records/{recordId}", h.HandleGet)
	r.Put("/records/{recordId}", h.HandleEdit)

	reviewer := r.With(auth.RequireRole(requestcontext.RoleReviewer, h.logger))
	reviewer.Post("/records/{recordId}/approve", h.HandleApprove)
	reviewer.Post("/records/{recordId}/reject", h.HandleReject)
}

// HandleVerify handles GET /verify/{recordId}. An unavailable ledger is a
// 503 that must not be cached; every verdict is a 200.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := h.recordIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.verifier.Verify(ctx, recordID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeTimeout, "verification cancelled"))
		return
	}
	writeVerification(w, result)
}

// HandleVerifyBatch handles POST /verify for list screens.
func (h *Handler) HandleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[VerifyBatchRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	results, err := h.verifier.VerifyMany(ctx, req.recordIDs)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeTimeout, "verification cancelled"))
		return
	}
	resp := make([]VerificationResponse, 0, len(results))
	for _, result := range results {
		if !result.Status.IsFinal() {
			w.Header().Set("Cache-Control", "no-store")
		}
		resp = append(resp, toVerificationResponse(result))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": resp})
}

func writeVerification(w http.ResponseWriter, result *models.VerificationResult) {
	status := http.StatusOK
	if !result.Status.IsFinal() {
		w.Header().Set("Cache-Control", "no-store")
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, toVerificationResponse(result))
}

// HandleSubmit handles POST /records.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.records.Submit(ctx, service.SubmitRequest{
		RecordID:         req.recordID,
		Kind:             req.kind,
		OwnerID:          req.ownerID,
		CallerID:         callerID,
		CallerIsReviewer: requestcontext.HasRole(ctx, requestcontext.RoleReviewer),
		Fields:           req.Fields,
	})
	if err != nil {
		h.logFailure(ctx, "record submit failed", req.recordID, err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "record submitted",
		"request_id", requestID,
		"record_id", record.ID,
		"kind", record.Kind,
	)
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(record))
}

// HandleGet handles GET /records/{recordId}. Owners, authors and reviewers may read.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	recordID, ok := h.recordIDParam(w, r)
	if !ok {
		return
	}

	record, err := h.records.Get(ctx, recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if callerID != record.OwnerID && callerID != record.AuthorID &&
		!requestcontext.HasRole(ctx, requestcontext.RoleReviewer) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "not allowed to view this record"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

// HandleEdit handles PUT /records/{recordId}.
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	recordID, ok := h.recordIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[EditRecordRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	record, err := h.records.Edit(ctx, recordID, callerID, req.Fields)
	if err != nil {
		h.logFailure(ctx, "record edit failed", recordID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

// HandleApprove handles POST /records/{recordId}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reviewerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	recordID, ok := h.recordIDParam(w, r)
	if !ok {
		return
	}

	receipt, err := h.records.Approve(ctx, recordID, reviewerID)
	if err != nil {
		h.logFailure(ctx, "record approval failed", recordID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ApprovalResponse{
		RecordID:    recordID.String(),
		Fingerprint: receipt.Fingerprint.String(),
		PublishedAt: receipt.PublishedAt,
		Replayed:    receipt.Replayed,
	})
}

// HandleReject handles POST /records/{recordId}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reviewerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	recordID, ok := h.recordIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectRecordRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	record, err := h.records.Reject(ctx, recordID, reviewerID, req.Reason)
	if err != nil {
		h.logFailure(ctx, "record rejection failed", recordID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID := requestcontext.UserID(r.Context())
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return userID, true
}

func (h *Handler) recordIDParam(w http.ResponseWriter, r *http.Request) (id.RecordID, bool) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordId"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return recordID, true
}

// logFailure logs client errors at Info and everything else at Error.
func (h *Handler) logFailure(ctx context.Context, msg string, recordID id.RecordID, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"record_id", recordID,
		"error", err,
	}
	switch dErrors.GetCode(err) {
	case dErrors.CodeInternal, "":
		h.logger.ErrorContext(ctx, msg, attrs...)
	case dErrors.CodeUnavailable, dErrors.CodeTimeout:
		h.logger.WarnContext(ctx, msg, attrs...)
	default:
		h.logger.InfoContext(ctx, msg, attrs...)
	}
}
