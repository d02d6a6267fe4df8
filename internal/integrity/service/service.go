// Package service orchestrates record review and integrity verification.
//
// Approval is the only write path to the ledger: the service fingerprints the
// stored fields, publishes, and only on ledger success moves the record to
// approved. Verification is read-only and reports every outcome as a result
// variant rather than an error.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"log/slog"

	"carebook/internal/integrity/canonical"
	"carebook/internal/integrity/metrics"
	"carebook/internal/integrity/models"
	id "carebook/pkg/domain"
	"carebook/pkg/platform/audit"
)

// RecordStore is the mutable copy of records.
type RecordStore interface {
	Create(ctx context.Context, record *models.Record) error
	Get(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	Execute(ctx context.Context, recordID id.RecordID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error)
}

// AuditPublisher persists compliance events. Emit failures fail the caller.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// StoreTx groups a record mutation and its audit event into one unit.
// Implementations may wrap a database transaction placed in ctx.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type serviceConfig struct {
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	encoder        *canonical.Encoder
	tx             StoreTx
	verifyLimit    int
}

type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(c *serviceConfig) {
		c.auditPublisher = publisher
	}
}

func WithStoreTx(tx StoreTx) Option {
	return func(c *serviceConfig) {
		c.tx = tx
	}
}

// WithVerifyConcurrency bounds the fan-out of VerifyMany.
func WithVerifyConcurrency(n int) Option {
	return func(c *serviceConfig) {
		if n > 0 {
			c.verifyLimit = n
		}
	}
}

const defaultVerifyConcurrency = 8

func newConfig(opts []Option) *serviceConfig {
	cfg := &serviceConfig{
		verifyLimit: defaultVerifyConcurrency,
		encoder:     canonical.NewEncoder(canonical.DefaultSchemas()...),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.tx == nil {
		cfg.tx = passthroughTx{}
	}
	return cfg
}

// passthroughTx runs fn directly. The in-memory store serializes each
// Execute on its own, so there is no wider unit to open.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
