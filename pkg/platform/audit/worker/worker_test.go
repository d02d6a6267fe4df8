package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carebook/internal/platform/kafka"
	"carebook/pkg/platform/audit/store/postgres"
)

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []postgres.OutboxEntry
	processed []postgres.OutboxEntry
}

func (f *fakeOutbox) RelayBatch(ctx context.Context, limit int, fn func(context.Context, []postgres.OutboxEntry) error) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := min(limit, len(f.pending))
	if n == 0 {
		return 0, nil
	}
	batch := f.pending[:n]
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}
	f.processed = append(f.processed, batch...)
	f.pending = f.pending[n:]
	return n, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []kafka.Message
}

func (f *fakePublisher) Publish(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

func entries(n int) []postgres.OutboxEntry {
	out := make([]postgres.OutboxEntry, n)
	for i := range out {
		out[i] = postgres.OutboxEntry{ID: uuid.New(), AggregateID: "patient-1", EventType: "booking_claimed", Payload: []byte(`{}`)}
	}
	return out
}

func TestRelayOnce(t *testing.T) {
	t.Run("publishes with event headers and marks processed", func(t *testing.T) {
		outbox := &fakeOutbox{pending: entries(3)}
		pub := &fakePublisher{}
		relay := NewRelay(outbox, pub, WithBatchSize(2))

		n, err := relay.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		require.Len(t, pub.sent, 2)
		assert.Equal(t, "booking_claimed", pub.sent[0].Headers["event_type"])
		assert.Equal(t, []byte("patient-1"), pub.sent[0].Key)
		assert.Len(t, outbox.pending, 1)
	})

	t.Run("broker failure leaves entries pending", func(t *testing.T) {
		outbox := &fakeOutbox{pending: entries(2)}
		relay := NewRelay(outbox, &fakePublisher{err: errors.New("broker down")})

		_, err := relay.RelayOnce(context.Background())
		require.Error(t, err)
		assert.Len(t, outbox.pending, 2)
		assert.Empty(t, outbox.processed)
	})
}

func TestRun_DrainsUntilCancelled(t *testing.T) {
	outbox := &fakeOutbox{pending: entries(5)}
	pub := &fakePublisher{}
	relay := NewRelay(outbox, pub, WithBatchSize(2), WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.sent) == 5
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
