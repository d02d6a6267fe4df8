package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"carebook/internal/ratelimit/metrics"
	"carebook/internal/ratelimit/models"
	"carebook/internal/ratelimit/store/bucket"
	id "carebook/pkg/domain"
	"carebook/pkg/platform/circuit"
	"carebook/pkg/platform/middleware/metadata"
	"carebook/pkg/requestcontext"
)

// scriptedBucket fails while err is set and records the keys it saw.
type scriptedBucket struct {
	err   error
	inner *bucket.InMemoryBucketStore
	keys  []string
}

func (b *scriptedBucket) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	b.keys = append(b.keys, key)
	if b.err != nil {
		return nil, b.err
	}
	return b.inner.Allow(ctx, key, limit, window)
}

type RateLimitSuite struct {
	suite.Suite
	primary  *scriptedBucket
	fallback *bucket.InMemoryBucketStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func TestRateLimitSuite(t *testing.T) {
	suite.Run(t, new(RateLimitSuite))
}

func (s *RateLimitSuite) SetupTest() {
	s.primary = &scriptedBucket{inner: bucket.New()}
	s.fallback = bucket.New()
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *RateLimitSuite) newMiddleware(opts ...Option) *Middleware {
	base := []Option{
		WithLimit(models.ClassPublic, models.Limit{RequestsPerWindow: 2, Window: time.Minute}),
		WithLimit(models.ClassAuthenticated, models.Limit{RequestsPerWindow: 3, Window: time.Minute}),
		WithMetrics(s.metrics),
	}
	return New(s.primary, s.logger, append(base, opts...)...)
}

func (s *RateLimitSuite) serve(h http.Handler, ip string, userID string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/verify", nil)
	ctx := metadata.WithClientIP(r.Context(), ip)
	if userID != "" {
		ctx = requestcontext.WithUserID(ctx, id.UserID(userID))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r.WithContext(ctx))
	return w
}

var noContent = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func (s *RateLimitSuite) TestByIPRejectsOverBudget() {
	h := s.newMiddleware().ByIP(models.ClassPublic)(noContent)

	w := s.serve(h, "192.0.2.1", "")
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("2", w.Header().Get("X-RateLimit-Limit"))
	s.Equal("1", w.Header().Get("X-RateLimit-Remaining"))

	s.Equal(http.StatusNoContent, s.serve(h, "192.0.2.1", "").Code)

	w = s.serve(h, "192.0.2.1", "")
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.NotEmpty(w.Header().Get("Retry-After"))
	s.Contains(w.Body.String(), "rate_limit_exceeded")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("public")))

	s.Equal(http.StatusNoContent, s.serve(h, "192.0.2.2", "").Code, "other addresses keep their own budget")
}

func (s *RateLimitSuite) TestByUserKeysOnCaller() {
	h := s.newMiddleware().ByUser(models.ClassAuthenticated)(noContent)

	for range 3 {
		s.Equal(http.StatusNoContent, s.serve(h, "192.0.2.1", "patient-1").Code)
	}
	s.Equal(http.StatusTooManyRequests, s.serve(h, "192.0.2.9", "patient-1").Code,
		"changing address does not reset a caller's budget")
	s.Equal(http.StatusNoContent, s.serve(h, "192.0.2.1", "patient-2").Code)
	s.Equal(models.UserKey("patient-1", models.ClassAuthenticated), s.primary.keys[0])
}

func (s *RateLimitSuite) TestUnconfiguredClassPassesThrough() {
	m := New(s.primary, s.logger)
	h := m.ByIP(models.ClassPublic)(noContent)
	for range 10 {
		s.Equal(http.StatusNoContent, s.serve(h, "192.0.2.1", "").Code)
	}
	s.Empty(s.primary.keys)
}

func (s *RateLimitSuite) TestStoreFailureUsesFallback() {
	s.primary.err = errors.New("redis: connection refused")
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	h := s.newMiddleware(WithFallback(s.fallback), WithBreaker(breaker)).ByIP(models.ClassPublic)(noContent)

	w := s.serve(h, "192.0.2.1", "")
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("degraded", w.Header().Get("X-RateLimit-Status"))

	s.Equal(http.StatusNoContent, s.serve(h, "192.0.2.1", "").Code)
	s.True(breaker.IsOpen())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Degraded))

	w = s.serve(h, "192.0.2.1", "")
	s.Equal(http.StatusTooManyRequests, w.Code, "fallback still enforces the budget")
	s.Len(s.primary.keys, 2, "open breaker skips the primary")
	s.Equal(2.0, testutil.ToFloat64(s.metrics.StoreFailures))
}

func (s *RateLimitSuite) TestStoreFailureWithoutFallbackFailsOpen() {
	s.primary.err = errors.New("redis: timeout")
	h := s.newMiddleware().ByIP(models.ClassPublic)(noContent)
	for range 5 {
		s.Equal(http.StatusNoContent, s.serve(h, "192.0.2.1", "").Code)
	}
}
