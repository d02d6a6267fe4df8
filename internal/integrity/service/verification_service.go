package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"carebook/internal/integrity/canonical"
	"carebook/internal/integrity/ledger"
	"carebook/internal/integrity/metrics"
	"carebook/internal/integrity/models"
	id "carebook/pkg/domain"
	"carebook/pkg/platform/sentinel"
	"carebook/pkg/platform/tracing"
	"carebook/pkg/requestcontext"
)

// VerificationService compares a record's current fields against the
// fingerprint anchored on the ledger. It never writes and never caches.
type VerificationService struct {
	store   RecordStore
	ledger  ledger.Client
	encoder *canonical.Encoder
	logger  *slog.Logger
	metrics *metrics.Metrics
	limit   int
}

func NewVerificationService(store RecordStore, ledgerClient ledger.Client, opts ...Option) *VerificationService {
	cfg := newConfig(opts)
	return &VerificationService{
		store:   store,
		ledger:  ledgerClient,
		encoder: cfg.encoder,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		limit:   cfg.verifyLimit,
	}
}

// Verify returns exactly one outcome for recordID. The only error is the
// caller cancelling; every other failure, an expired deadline included, is
// a result.
func (s *VerificationService) Verify(ctx context.Context, recordID id.RecordID) (*models.VerificationResult, error) {
	ctx, end := tracing.StartSpan(ctx, "integrity.verify", attribute.String("record.id", recordID.String()))
	result, err := s.verify(ctx, recordID)
	end(err)
	if err != nil {
		return nil, err
	}
	tracing.SetAttributes(ctx, attribute.String("verification.status", string(result.Status)))
	s.metrics.IncVerification(string(result.Status))
	return result, nil
}

func (s *VerificationService) verify(ctx context.Context, recordID id.RecordID) (*models.VerificationResult, error) {
	if callerCanceled(ctx) {
		return nil, ctx.Err()
	}
	if ctx.Err() != nil {
		return models.Unavailable(recordID, "deadline exceeded before verification"), nil
	}

	record, err := s.store.Get(ctx, recordID)
	if err != nil {
		if callerCanceled(ctx) {
			return nil, ctx.Err()
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.InfoContext(ctx, "verification for unknown record",
				"record_id", recordID,
				"request_id", requestcontext.RequestID(ctx),
			)
			return models.RecordNotFound(recordID), nil
		}
		s.logger.WarnContext(ctx, "record store unavailable during verification",
			"record_id", recordID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return models.Unavailable(recordID, "record store unavailable"), nil
	}

	recomputed, encErr := s.encoder.ComputeFingerprint(record.Kind, record.Fields)

	proof, err := s.ledger.Fetch(ctx, recordID)
	if err != nil {
		if callerCanceled(ctx) {
			return nil, ctx.Err()
		}
		s.logger.WarnContext(ctx, "ledger unavailable during verification",
			"record_id", recordID,
			"category", ledger.GetCategory(err),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return models.Unavailable(recordID, "integrity ledger unavailable"), nil
	}
	if proof == nil {
		return models.NoProof(recordID), nil
	}

	if encErr != nil {
		s.logger.WarnContext(ctx, "published record no longer encodes",
			"record_id", recordID,
			"published_fingerprint", proof.Fingerprint.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", encErr,
		)
		result := models.Tampered(recordID, proof.Fingerprint, models.Fingerprint{}, proof.PublishedAt)
		result.Reason = encErr.Error()
		return result, nil
	}

	if proof.Fingerprint.Equal(recomputed) {
		return models.Verified(recordID, proof.Fingerprint, proof.PublishedAt), nil
	}

	s.logger.WarnContext(ctx, "record tampered",
		"record_id", recordID,
		"published_fingerprint", proof.Fingerprint.String(),
		"recomputed_fingerprint", recomputed.String(),
		"published_at", proof.PublishedAt,
		"request_id", requestcontext.RequestID(ctx),
	)
	return models.Tampered(recordID, proof.Fingerprint, recomputed, proof.PublishedAt), nil
}

// callerCanceled reports whether the caller gave up, as opposed to running
// out of time.
func callerCanceled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

// VerifyMany verifies records concurrently, bounded by the configured limit.
// Results are returned in the order of recordIDs.
func (s *VerificationService) VerifyMany(ctx context.Context, recordIDs []id.RecordID) ([]*models.VerificationResult, error) {
	results := make([]*models.VerificationResult, len(recordIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, recordID := range recordIDs {
		g.Go(func() error {
			result, err := s.Verify(gctx, recordID)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
