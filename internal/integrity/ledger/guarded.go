package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"carebook/internal/integrity/metrics"
	"carebook/internal/integrity/models"
	id "carebook/pkg/domain"
	"carebook/pkg/platform/circuit"
	"carebook/pkg/platform/tracing"
)

const defaultCallTimeout = 3 * time.Second

// Guarded decorates a Client with a per-call timeout, a circuit breaker,
// tracing and metrics, and normalizes every failure into a LedgerError.
//
// Only unavailable and timeout outcomes count against the breaker. When the
// caller's own context ends the breaker is left alone: cancellation is
// returned unchanged and an expired deadline becomes a CategoryTimeout error.
type Guarded struct {
	next    Client
	timeout time.Duration
	breaker *circuit.Breaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type GuardOption func(*Guarded)

func WithCallTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) GuardOption {
	return func(g *Guarded) {
		g.breaker = b
	}
}

func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guarded) {
		g.metrics = m
	}
}

func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guarded) {
		g.logger = logger
	}
}

func NewGuarded(next Client, opts ...GuardOption) *Guarded {
	g := &Guarded{
		next:    next,
		timeout: defaultCallTimeout,
		breaker: circuit.New("ledger"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) Publish(ctx context.Context, recordID id.RecordID, fp models.Fingerprint) (receipt *models.ProofReceipt, err error) {
	ctx, end := tracing.StartClientSpan(ctx, "ledger.publish",
		attribute.String("record.id", recordID.String()),
		attribute.String("record.fingerprint", fp.String()),
	)
	defer func() { end(err) }()

	err = g.call(ctx, "publish", recordID, func(callCtx context.Context) error {
		var callErr error
		receipt, callErr = g.next.Publish(callCtx, recordID, fp)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		err = NewError(CategoryBadData, recordID, "ledger returned no receipt", nil)
		return nil, err
	}
	tracing.SetAttributes(ctx, attribute.Bool("ledger.replayed", receipt.Replayed))
	return receipt, nil
}

func (g *Guarded) Fetch(ctx context.Context, recordID id.RecordID) (proof *models.Proof, err error) {
	ctx, end := tracing.StartClientSpan(ctx, "ledger.fetch",
		attribute.String("record.id", recordID.String()),
	)
	defer func() { end(err) }()

	err = g.call(ctx, "fetch", recordID, func(callCtx context.Context) error {
		var callErr error
		proof, callErr = g.next.Fetch(callCtx, recordID)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	tracing.SetAttributes(ctx, attribute.Bool("ledger.found", proof != nil))
	return proof, nil
}

func (g *Guarded) call(ctx context.Context, op string, recordID id.RecordID, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return callerDone(recordID, op, err)
	}
	if !g.breaker.Allow() {
		g.metrics.ObserveLedgerCall(op, "circuit_open", 0)
		return NewError(CategoryUnavailable, recordID, "ledger circuit open", nil)
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && ctx.Err() != nil {
		// The caller's own budget ran out; that says nothing about ledger
		// health, so the breaker is left alone.
		g.metrics.ObserveLedgerCall(op, "caller_done", time.Since(start).Seconds())
		return callerDone(recordID, op, ctx.Err())
	}
	err = Classify(recordID, op, err)

	outcome := "ok"
	if err != nil {
		outcome = string(GetCategory(err))
	}
	g.metrics.ObserveLedgerCall(op, outcome, time.Since(start).Seconds())

	if IsUnavailable(err) {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.metrics.SetBreakerOpen(true)
			g.logger.WarnContext(ctx, "ledger circuit opened", "op", op, "error", err)
		}
	} else {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.metrics.SetBreakerOpen(false)
			g.logger.InfoContext(ctx, "ledger circuit closed", "op", op)
		}
	}
	return err
}

// callerDone maps the end of the caller's context. Cancellation passes through
// untouched; a caller deadline resolves to a ledger timeout, as the per-call
// timeout does.
func callerDone(recordID id.RecordID, op string, ctxErr error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return NewError(CategoryTimeout, recordID, op+" exceeded caller deadline", ctxErr)
	}
	return ctxErr
}
