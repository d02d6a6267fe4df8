package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"carebook/internal/integrity/canonical"
	"carebook/internal/integrity/ledger"
	"carebook/internal/integrity/metrics"
	"carebook/internal/integrity/models"
	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
	"carebook/pkg/platform/audit"
	"carebook/pkg/requestcontext"
)

// SubmitRequest creates a draft record. CallerID becomes the author; the
// owner defaults to the caller.
type SubmitRequest struct {
	RecordID         id.RecordID
	Kind             models.RecordKind
	OwnerID          id.UserID
	CallerID         id.UserID
	CallerIsReviewer bool
	Fields           models.Fields
}

// RecordService drives the draft -> approved/rejected lifecycle and is the
// only component that publishes fingerprints.
type RecordService struct {
	store   RecordStore
	ledger  ledger.Client
	encoder *canonical.Encoder
	tx      StoreTx
	audit   AuditPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewRecordService(store RecordStore, ledgerClient ledger.Client, opts ...Option) *RecordService {
	cfg := newConfig(opts)
	return &RecordService{
		store:   store,
		ledger:  ledgerClient,
		encoder: cfg.encoder,
		tx:      cfg.tx,
		audit:   cfg.auditPublisher,
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}
}

// Submit validates the fields against the kind's schema and stores a draft.
// Fields are stored in normalized form so that re-encoding after a storage
// round trip is byte-identical.
func (s *RecordService) Submit(ctx context.Context, req SubmitRequest) (*models.Record, error) {
	kind, err := models.ParseRecordKind(string(req.Kind))
	if err != nil {
		return nil, err
	}
	owner := req.OwnerID
	if owner.IsNil() {
		owner = req.CallerID
	}
	if owner != req.CallerID && !req.CallerIsReviewer {
		return nil, dErrors.New(dErrors.CodeForbidden, "records can only be submitted for yourself")
	}
	fields, err := s.encoder.Normalize(kind, req.Fields)
	if err != nil {
		return nil, encodingError(err)
	}

	record, err := models.NewRecord(req.RecordID, kind, owner, req.CallerID, fields, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, dErrors.Message(err))
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, record); err != nil {
			return storeError(err, "create record")
		}
		return s.emit(txCtx, audit.EventRecordSubmitted, record, req.CallerID, "", "")
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Edit replaces the fields of a draft or approved record. Editing an approved
// record keeps it approved; verification reports the drift.
func (s *RecordService) Edit(ctx context.Context, recordID id.RecordID, editorID id.UserID, fields models.Fields) (*models.Record, error) {
	now := requestcontext.Now(ctx)
	var normalized models.Fields
	var updated *models.Record

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = s.store.Execute(txCtx, recordID,
			func(r *models.Record) error {
				if err := r.CanEdit(editorID); err != nil {
					return err
				}
				normalized, err = s.encoder.Normalize(r.Kind, fields)
				if err != nil {
					return encodingError(err)
				}
				return nil
			},
			func(r *models.Record) { r.ApplyEdit(normalized, now) },
		)
		if err != nil {
			return storeError(err, "edit record")
		}
		return s.emit(txCtx, audit.EventRecordEdited, updated, editorID, string(updated.Status), "")
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

var errApprovedConcurrently = errors.New("record approved concurrently")

// Approve fingerprints the stored fields, publishes them and only then marks
// the record approved. A ledger failure leaves the record in draft.
// Approving an already-approved record replays the ledger's receipt.
func (s *RecordService) Approve(ctx context.Context, recordID id.RecordID, reviewerID id.UserID) (*models.ProofReceipt, error) {
	record, err := s.store.Get(ctx, recordID)
	if err != nil {
		return nil, storeError(err, "load record")
	}
	if record.Status == models.StatusRejected {
		s.metrics.IncApproval("rejected_record")
		return nil, record.CanApprove()
	}

	fp, err := s.encoder.ComputeFingerprint(record.Kind, record.Fields)
	if err != nil {
		s.metrics.IncApproval("encoding_error")
		return nil, encodingError(err)
	}

	receipt, err := s.ledger.Publish(ctx, recordID, fp)
	if err != nil {
		s.metrics.IncApproval(string(outcomeFor(err)))
		s.logger.WarnContext(ctx, "fingerprint publish failed",
			"record_id", recordID,
			"fingerprint", fp.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, ledgerError(err)
	}
	if record.IsApproved() {
		s.metrics.IncApproval("replayed")
		return receipt, nil
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.store.Execute(txCtx, recordID,
			func(r *models.Record) error {
				if r.IsApproved() {
					return errApprovedConcurrently
				}
				if err := r.CanApprove(); err != nil {
					return err
				}
				current, err := s.encoder.ComputeFingerprint(r.Kind, r.Fields)
				if err != nil || !current.Equal(fp) {
					return dErrors.New(dErrors.CodeConflict, "record changed while it was being approved")
				}
				return nil
			},
			func(r *models.Record) { r.ApplyApproval(reviewerID, now) },
		)
		if errors.Is(err, errApprovedConcurrently) {
			return nil
		}
		if err != nil {
			return storeError(err, "approve record")
		}
		if err := s.emit(txCtx, audit.EventRecordApproved, updated, reviewerID, "approved", ""); err != nil {
			return err
		}
		if receipt.Replayed {
			return nil
		}
		return s.emit(txCtx, audit.EventRecordPublished, updated, reviewerID, "published", fp.String())
	})
	if err != nil {
		s.metrics.IncApproval("store_error")
		s.logger.ErrorContext(ctx, "fingerprint published but record not approved",
			"record_id", recordID,
			"fingerprint", fp.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, err
	}

	s.metrics.IncApproval("approved")
	s.logger.InfoContext(ctx, "record approved",
		"record_id", recordID,
		"fingerprint", fp.String(),
		"published_at", receipt.PublishedAt,
		"request_id", requestcontext.RequestID(ctx),
	)
	return receipt, nil
}

// Reject closes review of a draft without publishing anything.
func (s *RecordService) Reject(ctx context.Context, recordID id.RecordID, reviewerID id.UserID, reason string) (*models.Record, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	now := requestcontext.Now(ctx)

	var updated *models.Record
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = s.store.Execute(txCtx, recordID,
			func(r *models.Record) error { return r.CanReject() },
			func(r *models.Record) { r.ApplyRejection(reviewerID, reason, now) },
		)
		if err != nil {
			return storeError(err, "reject record")
		}
		return s.emit(txCtx, audit.EventRecordRejected, updated, reviewerID, "rejected", reason)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *RecordService) Get(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	record, err := s.store.Get(ctx, recordID)
	if err != nil {
		err = storeError(err, "load record")
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.logger.InfoContext(ctx, "record not found", "record_id", recordID)
		}
		return nil, err
	}
	return record, nil
}

func (s *RecordService) emit(ctx context.Context, action audit.AuditEvent, r *models.Record, actor id.UserID, decision, reason string) error {
	if s.audit == nil {
		return nil
	}
	err := s.audit.Emit(ctx, audit.ComplianceEvent{
		Timestamp: requestcontext.Now(ctx),
		UserID:    r.OwnerID,
		Subject:   r.ID.String(),
		Action:    action,
		Decision:  decision,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   actor.String(),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func outcomeFor(err error) ledger.Category {
	if c := ledger.GetCategory(err); c != "" {
		return c
	}
	return "error"
}
