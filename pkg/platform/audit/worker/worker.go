// Package worker relays audit outbox entries to the message broker.
package worker

import (
	"context"
	"log/slog"
	"time"

	"carebook/internal/platform/kafka"
	"carebook/pkg/platform/audit/store/postgres"
)

// Outbox is the transactional batch source (the postgres audit store).
type Outbox interface {
	RelayBatch(ctx context.Context, limit int, fn func(context.Context, []postgres.OutboxEntry) error) (int, error)
}

// Publisher is the broker side (the kafka producer).
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Relay polls the outbox and publishes unprocessed entries. Entries are
// marked processed only after the broker acknowledged them, so delivery is
// at-least-once; consumers dedupe on the event id header.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	batch     int
	logger    *slog.Logger
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(outbox Outbox, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		interval:  2 * time.Second,
		batch:     100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled. A full batch is followed immediately by
// another poll; an empty or failed one waits for the interval.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
		}
		if err == nil && n == r.batch {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes at most one batch and returns how many entries it relayed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	return r.outbox.RelayBatch(ctx, r.batch, func(ctx context.Context, entries []postgres.OutboxEntry) error {
		msgs := make([]kafka.Message, len(entries))
		for i, e := range entries {
			msgs[i] = kafka.Message{
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: map[string]string{
					"event_id":   e.ID.String(),
					"event_type": e.EventType,
				},
			}
		}
		return r.publisher.Publish(ctx, msgs...)
	})
}
