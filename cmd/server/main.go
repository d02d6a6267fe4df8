package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"carebook/internal/admin"
	bookinghandler "carebook/internal/booking/handler"
	bookingmetrics "carebook/internal/booking/metrics"
	bookingservice "carebook/internal/booking/service"
	bookingstore "carebook/internal/booking/store"
	integrityhandler "carebook/internal/integrity/handler"
	"carebook/internal/integrity/ledger"
	ledgermemory "carebook/internal/integrity/ledger/memory"
	ledgerpostgres "carebook/internal/integrity/ledger/postgres"
	ledgerredis "carebook/internal/integrity/ledger/redis"
	integritymetrics "carebook/internal/integrity/metrics"
	integrityservice "carebook/internal/integrity/service"
	integritystore "carebook/internal/integrity/store"
	jwttoken "carebook/internal/jwt_token"
	"carebook/internal/platform/config"
	"carebook/internal/platform/httpserver"
	"carebook/internal/platform/kafka"
	"carebook/internal/platform/logger"
	"carebook/internal/platform/metrics"
	"carebook/internal/platform/postgres"
	platformredis "carebook/internal/platform/redis"
	ratelimitmetrics "carebook/internal/ratelimit/metrics"
	ratelimit "carebook/internal/ratelimit/middleware"
	"carebook/internal/ratelimit/models"
	"carebook/internal/ratelimit/store/bucket"
	httptransport "carebook/internal/transport/http"
	"carebook/pkg/platform/audit"
	"carebook/pkg/platform/audit/publishers/compliance"
	auditmemory "carebook/pkg/platform/audit/store/memory"
	auditpostgres "carebook/pkg/platform/audit/store/postgres"
	"carebook/pkg/platform/audit/worker"
	"carebook/pkg/platform/circuit"
)

func main() {
	cfg, errs := config.Load(os.Getenv("CAREBOOK_CONFIG"))
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(2)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("carebook stopped", "error", err)
		os.Exit(1)
	}
}

// infra holds the connections shared by the stores.
type infra struct {
	db    *sql.DB
	redis *platformredis.Client
	kafka *kafka.Producer
}

func (i *infra) close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting carebook", "config", cfg.LogSummary())

	deps, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	reg := prometheus.DefaultRegisterer
	checks := map[string]httptransport.HealthCheck{}

	// Audit: the Postgres outbox when a database is configured, so compliance
	// events commit with the record change; memory otherwise.
	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	var outbox *auditpostgres.Store
	if deps.db != nil {
		outbox = auditpostgres.New(deps.db)
		auditStore = outbox
		checks["postgres"] = deps.db.PingContext
	}
	if deps.redis != nil {
		checks["redis"] = deps.redis.Health
	}
	publisher := compliance.New(auditStore,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)

	// Integrity
	iMetrics := integritymetrics.NewWithRegistry(reg)
	ledgerClient, err := buildLedger(cfg, deps, iMetrics, log)
	if err != nil {
		return err
	}
	recordStore, recordTx := buildRecordStore(cfg, deps)
	opts := []integrityservice.Option{
		integrityservice.WithLogger(log),
		integrityservice.WithMetrics(iMetrics),
		integrityservice.WithAuditPublisher(publisher),
		integrityservice.WithVerifyConcurrency(cfg.Ledger.VerifyConcurrency),
	}
	if recordTx != nil {
		opts = append(opts, integrityservice.WithStoreTx(recordTx))
	}
	integrity := integrityhandler.New(
		integrityservice.NewRecordService(recordStore, ledgerClient, opts...),
		integrityservice.NewVerificationService(recordStore, ledgerClient, opts...),
		log,
	)

	// Booking
	bookings, err := buildBookingStore(cfg, deps)
	if err != nil {
		return err
	}
	booking := bookinghandler.New(bookingservice.New(bookings,
		bookingservice.WithLogger(log),
		bookingservice.WithMetrics(bookingmetrics.NewWithRegistry(reg)),
		bookingservice.WithAuditRecorder(publisher),
	), log)

	validator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience),
	)
	router := httptransport.NewRouter(httptransport.Config{
		Logger:        log,
		Metrics:       metrics.NewWithRegistry(reg),
		Validator:     validator,
		AdminToken:    cfg.Auth.AdminToken,
		RateLimit:     buildRateLimit(cfg, deps, reg, log),
		Public:        []httptransport.PublicRegistrar{integrity},
		Authenticated: []httptransport.RouteRegistrar{integrity, booking},
		Admin:         []httptransport.RouteRegistrar{admin.New(auditStore, log)},
		HealthChecks:  checks,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if outbox != nil && deps.kafka != nil {
		relay := worker.NewRelay(outbox, deps.kafka,
			worker.WithInterval(cfg.Kafka.RelayInterval),
			worker.WithBatchSize(cfg.Kafka.RelayBatch),
			worker.WithLogger(log),
		)
		log.Info("audit relay started", "topic", deps.kafka.Topic())
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// connect opens only the backends some store was configured to use.
func connect(ctx context.Context, cfg *config.Config) (*infra, error) {
	deps := &infra{}
	uses := func(backend string) bool {
		return cfg.Storage.Bookings == backend || cfg.Storage.Records == backend ||
			cfg.Ledger.Backend == backend || cfg.RateLimit.Backend == backend
	}

	if uses(config.BackendPostgres) {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		deps.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			deps.close()
			return nil, err
		}
	}
	if uses(config.BackendRedis) {
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.redis = client
	}
	if cfg.RelayEnabled() && deps.db != nil {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.kafka = producer
		if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
			deps.close()
			return nil, err
		}
	}
	return deps, nil
}

func buildLedger(cfg *config.Config, deps *infra, m *integritymetrics.Metrics, log *slog.Logger) (ledger.Client, error) {
	signer := ledger.Signer{ID: cfg.Ledger.SignerID, Allowed: cfg.Ledger.AllowedSigners}

	var base ledger.Client
	switch cfg.Ledger.Backend {
	case config.BackendPostgres:
		base = ledgerpostgres.New(deps.db, signer)
	case config.BackendRedis:
		base = ledgerredis.New(deps.redis.Client, signer)
	case config.BackendMemory:
		log.Warn("integrity ledger is in memory; proofs are lost on restart")
		base = ledgermemory.New(signer)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Ledger.Backend)
	}

	breaker := circuit.New("integrity-ledger",
		circuit.WithFailureThreshold(cfg.Ledger.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Ledger.SuccessThreshold),
		circuit.WithCooldown(cfg.Ledger.Cooldown),
	)
	return ledger.NewGuarded(base,
		ledger.WithCallTimeout(cfg.Ledger.CallTimeout),
		ledger.WithBreaker(breaker),
		ledger.WithMetrics(m),
		ledger.WithLogger(log),
	), nil
}

func buildRecordStore(cfg *config.Config, deps *infra) (integrityservice.RecordStore, integrityservice.StoreTx) {
	if cfg.Storage.Records == config.BackendPostgres {
		return integritystore.NewPostgres(deps.db), newRecordPostgresTx(deps.db, cfg.Storage.TxTimeout)
	}
	return integritystore.NewInMemory(), nil
}

func buildBookingStore(cfg *config.Config, deps *infra) (bookingservice.Store, error) {
	switch cfg.Storage.Bookings {
	case config.BackendPostgres:
		return bookingstore.NewPostgres(deps.db), nil
	case config.BackendRedis:
		return bookingstore.NewRedis(deps.redis.Client), nil
	case config.BackendMemory:
		return bookingstore.NewInMemory(bookingstore.WithTxTimeout(cfg.Storage.TxTimeout)), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Storage.Bookings)
}

// buildRateLimit shares buckets through Redis when configured, with an
// in-process fallback for Redis outages.
func buildRateLimit(cfg *config.Config, deps *infra, reg prometheus.Registerer, log *slog.Logger) *ratelimit.Middleware {
	opts := []ratelimit.Option{
		ratelimit.WithLimit(models.ClassPublic, models.Limit{RequestsPerWindow: cfg.RateLimit.PublicLimit, Window: cfg.RateLimit.Window}),
		ratelimit.WithLimit(models.ClassAuthenticated, models.Limit{RequestsPerWindow: cfg.RateLimit.AuthenticatedLimit, Window: cfg.RateLimit.Window}),
		ratelimit.WithMetrics(ratelimitmetrics.NewWithRegistry(reg)),
	}
	if cfg.RateLimit.Backend == config.BackendRedis {
		opts = append(opts, ratelimit.WithFallback(bucket.New()))
		return ratelimit.New(bucket.NewRedis(deps.redis.Client), log, opts...)
	}
	return ratelimit.New(bucket.New(), log, opts...)
}
