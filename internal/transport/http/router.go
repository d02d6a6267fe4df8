// Package httptransport assembles the HTTP surface: the middleware chain,
// the public, authenticated and operator route groups, health and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carebook/internal/platform/metrics"
	ratelimit "carebook/internal/ratelimit/middleware"
	"carebook/internal/ratelimit/models"
	"carebook/pkg/platform/httputil"
	adminmw "carebook/pkg/platform/middleware/admin"
	"carebook/pkg/platform/middleware/auth"
	"carebook/pkg/platform/middleware/metadata"
	"carebook/pkg/platform/middleware/request"
	"carebook/pkg/platform/middleware/requesttime"
)

// RouteRegistrar mounts a module's routes on a router group.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// PublicRegistrar mounts routes that need no caller identity.
type PublicRegistrar interface {
	RegisterPublic(r chi.Router)
}

// HealthCheck reports whether one backing dependency answers.
type HealthCheck func(ctx context.Context) error

// Config is everything the router needs. Nil modules are skipped, and a nil
// RateLimit leaves every group unlimited.
type Config struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Validator  auth.JWTValidator
	AdminToken string
	RateLimit  *ratelimit.Middleware

	Public        []PublicRegistrar
	Authenticated []RouteRegistrar
	Admin         []RouteRegistrar
	HealthChecks  map[string]HealthCheck
}

const healthCheckTimeout = 2 * time.Second

func NewRouter(cfg Config) chi.Router {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.Logger(cfg.Logger))
	r.Use(requesttime.Middleware)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/healthz", healthHandler(cfg.HealthChecks))
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit.ByIP(models.ClassPublic))
		}
		for _, m := range cfg.Public {
			m.RegisterPublic(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit.ByUser(models.ClassAuthenticated))
		}
		for _, m := range cfg.Authenticated {
			m.Register(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(cfg.AdminToken, cfg.Logger))
		for _, m := range cfg.Admin {
			m.Register(r)
		}
	})

	return r
}

// healthHandler answers 200 when every check passes and 503 naming the
// failing dependencies otherwise.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		var failing []string
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failing = append(failing, name)
			}
		}
		if len(failing) > 0 {
			sort.Strings(failing)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "degraded",
				"failing": failing,
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
