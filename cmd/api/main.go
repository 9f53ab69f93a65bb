package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smartattend/internal/attendance"
	"smartattend/internal/audit"
	"smartattend/internal/auth"
	"smartattend/internal/config"
	"smartattend/internal/httpapi"
	"smartattend/internal/httpmiddleware"
	"smartattend/internal/logging"
	"smartattend/internal/metrics"
	"smartattend/internal/queue"
	"smartattend/internal/store"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api failed", "error", err)
		os.Exit(1)
	}
}

// stores groups the attendance store implementations chosen by config.
type stores struct {
	tokens      attendance.TokenStore
	records     attendance.RecordStore
	fences      attendance.FenceStore
	classes     attendance.ClassStore
	corrections attendance.CorrectionStore
	reports     attendance.ReportStore
	authUsers   auth.UserStore
	refresh     auth.RefreshStore
	audit       audit.Store
}

func run(ctx context.Context, cfg config.App, logger *slog.Logger) error {
	health := map[string]httpapi.HealthCheck{}
	var s stores

	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("schema migrated")
		}
		health["db"] = db.Healthy

		repo := attendance.NewRepository(db.Client)
		users := auth.NewRepository(db.Client)
		s = stores{
			tokens: repo, records: repo, fences: repo, classes: repo,
			corrections: repo, reports: repo,
			authUsers: users, refresh: users,
			audit: audit.NewRepository(db.Client),
		}
	default:
		mem := attendance.NewMemoryStore()
		users := auth.NewMemoryStore()
		if err := seedDemo(mem, users, cfg.DefaultFence); err != nil {
			return err
		}
		logger.Warn("using in-memory stores; data is lost on restart")
		s = stores{
			tokens: mem, records: mem, fences: mem, classes: mem,
			corrections: mem, reports: mem,
			authUsers: users, refresh: users,
			audit: audit.NewMemoryStore(),
		}
	}

	var rdb *store.Redis
	if cfg.TokenBackend == "redis" || cfg.QueueBackend == "redis" {
		rdb = store.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		health["redis"] = rdb.Healthy
	}
	if cfg.TokenBackend == "redis" {
		tokens := attendance.NewRedisTokenStore(rdb.Client, "")
		s.tokens = tokens
		s.reports = attendance.SplitReports{Held: tokens, Attended: s.reports}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tokens := attendance.NewTokenManager(s.tokens, cfg.TokenTTL,
		attendance.WithLocation(cfg.Location), attendance.WithTokenLogger(logger))
	classes := attendance.NewClassService(s.classes)
	auditSvc := audit.NewService(s.audit, nil, logger)

	recorder, err := newRecorder(ctx, cfg, rdb, auditSvc, logger)
	if err != nil {
		return err
	}

	limiter := httpapi.NewLimiter(cfg.RateLimitPerMin)
	checkinLimiter := httpapi.NewCheckinLimiter()
	go httpmiddleware.SweepEvery(ctx, 5*time.Minute, limiter, checkinLimiter)

	var denylist auth.SessionDenylist
	if rdb != nil {
		denylist = auth.NewRedisDenylist(rdb.Client, "")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Auth: auth.NewService(s.authUsers, s.refresh, auth.Config{
			Issuer:     cfg.JWTIssuer,
			SigningKey: cfg.JWTSigningKey,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
			Logger:     logger,
			Denylist:   denylist,
		}),
		Tokens: tokens,
		Verifier: attendance.NewVerifier(tokens, s.records, s.fences, attendance.VerifierConfig{
			DefaultFence:    cfg.DefaultFence,
			Location:        cfg.Location,
			LocationTimeout: cfg.LocationTimeout,
			Logger:          logger,
		}),
		Classes:     classes,
		Corrections: attendance.NewCorrectionService(s.corrections, classes, s.records, nil),
		Standing:    attendance.NewStandingService(s.classes, s.reports),
		Records:     s.records,
		Audit:       auditSvc,
		Recorder:    recorder,
		Metrics:     m,

		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health:          health,
		Logger:          logger,
		QRSize:          cfg.QRSize,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		Limiter:         limiter,
		CheckinLimiter:  checkinLimiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "store", cfg.StoreBackend, "tokens", cfg.TokenBackend, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", "error", err)
	}
	logger.Info("server exited")
	return nil
}

// newRecorder picks how audit entries reach storage. Memory stores are
// written directly since a separate worker cannot see them. With Postgres
// entries go through the queue; a memory queue is drained in process and a
// Redis queue is left to cmd/worker.
func newRecorder(ctx context.Context, cfg config.App, rdb *store.Redis, svc *audit.Service, logger *slog.Logger) (audit.Recorder, error) {
	if cfg.StoreBackend == "memory" {
		return svc, nil
	}
	if cfg.QueueBackend == "redis" {
		return audit.NewQueueRecorder(queue.NewRedisQueue(rdb.Client, queue.DefaultKey, logger), nil, logger), nil
	}
	q := queue.NewInMemory(256)
	msgs, err := q.Consume(ctx)
	if err != nil {
		return nil, fmt.Errorf("consume audit queue: %w", err)
	}
	go func() {
		n := audit.Drain(logging.ContextWithLogger(context.WithoutCancel(ctx), logger), msgs, svc)
		logger.Info("audit drain stopped", "written", n)
	}()
	return audit.NewQueueRecorder(q, nil, logger), nil
}
