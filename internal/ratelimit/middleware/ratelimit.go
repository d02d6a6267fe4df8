// Package middleware enforces per-IP and per-caller request budgets.
//
// Checks go to a shared bucket store. When that store fails, the request is
// checked against an in-process fallback instead of being let through
// unchecked, and a breaker keeps traffic on the fallback until the store
// recovers. Responses served in that mode carry X-RateLimit-Status: degraded.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"carebook/internal/ratelimit/metrics"
	"carebook/internal/ratelimit/models"
	"carebook/pkg/platform/circuit"
	"carebook/pkg/platform/httputil"
	"carebook/pkg/platform/middleware/metadata"
	"carebook/pkg/requestcontext"
)

var errStoreCircuitOpen = errors.New("rate limit store circuit open")

// Bucket is a sliding-window request counter.
type Bucket interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

type Middleware struct {
	primary  Bucket
	fallback Bucket
	breaker  *circuit.Breaker
	limits   map[models.EndpointClass]models.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Middleware)

// WithFallback sets the bucket used while the primary is failing.
// Without one, failures let requests through.
func WithFallback(b Bucket) Option {
	return func(m *Middleware) {
		m.fallback = b
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.breaker = b
	}
}

func WithLimit(class models.EndpointClass, limit models.Limit) Option {
	return func(m *Middleware) {
		m.limits[class] = limit
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func New(primary Bucket, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		primary: primary,
		breaker: circuit.New("ratelimit"),
		limits:  make(map[models.EndpointClass]models.Limit),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ByIP limits a route group by client address. It needs metadata.ClientMetadata upstream.
func (m *Middleware) ByIP(class models.EndpointClass) func(http.Handler) http.Handler {
	return m.limit(class, func(ctx context.Context) string {
		return models.IPKey(metadata.GetClientIP(ctx), class)
	})
}

// ByUser limits a route group by authenticated caller, falling back to the
// client address for requests without one.
func (m *Middleware) ByUser(class models.EndpointClass) func(http.Handler) http.Handler {
	return m.limit(class, func(ctx context.Context) string {
		if userID := requestcontext.UserID(ctx); !userID.IsNil() {
			return models.UserKey(userID.String(), class)
		}
		return models.IPKey(metadata.GetClientIP(ctx), class)
	})
}

func (m *Middleware) limit(class models.EndpointClass, key func(context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limit, ok := m.limits[class]
		if !ok || !limit.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			result, degraded, err := m.check(ctx, key(ctx), limit)
			if err != nil {
				m.logger.ErrorContext(ctx, "rate limit check failed, allowing request",
					"class", class,
					"ip_prefix", metadata.AnonymizeIP(metadata.GetClientIP(ctx)),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if degraded {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}
			if !result.Allowed {
				m.metrics.IncRejected(string(class))
				writeRateLimitExceeded(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// check consults the primary bucket unless the breaker is open, and the
// fallback when the primary is skipped or fails.
func (m *Middleware) check(ctx context.Context, key string, limit models.Limit) (*models.Result, bool, error) {
	if m.breaker.Allow() {
		result, err := m.primary.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
		if err == nil {
			if _, change := m.breaker.RecordSuccess(); change.Closed {
				m.metrics.SetDegraded(false)
				m.logger.InfoContext(ctx, "rate limit store recovered")
			}
			return result, false, nil
		}
		m.metrics.IncStoreFailure()
		if _, change := m.breaker.RecordFailure(); change.Opened {
			m.metrics.SetDegraded(true)
			m.logger.WarnContext(ctx, "rate limit store failing, using in-process fallback", "error", err)
		}
		if m.fallback == nil {
			return nil, false, err
		}
	} else if m.fallback == nil {
		return nil, false, errStoreCircuitOpen
	}

	result, err := m.fallback.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	return result, true, err
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
