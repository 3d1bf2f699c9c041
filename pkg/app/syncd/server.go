// Package syncd implements app.Runner for the sync daemon: the forward
// catalog sync, the change detector, the reverse stock reconciliation, and
// the admin HTTP surface.
package syncd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/commercebridge/retail-middleware/pkg/app/httpserver"
	"github.com/commercebridge/retail-middleware/pkg/auth"
	"github.com/commercebridge/retail-middleware/pkg/checkpoint"
	"github.com/commercebridge/retail-middleware/pkg/config"
	"github.com/commercebridge/retail-middleware/pkg/coordinator"
	"github.com/commercebridge/retail-middleware/pkg/detector"
	"github.com/commercebridge/retail-middleware/pkg/pgutil"
	"github.com/commercebridge/retail-middleware/pkg/retail"
	"github.com/commercebridge/retail-middleware/pkg/stock"
	"github.com/commercebridge/retail-middleware/pkg/storefront"
	syncrun "github.com/commercebridge/retail-middleware/pkg/sync"
)

const (
	defaultGracefulShutdownTimeout = 30 * time.Second
	defaultHTTPMiddlewareTimeout   = 60 * time.Second
	defaultHTTPReadTimeout         = 15 * time.Second
	defaultHTTPWriteTimeout        = 15 * time.Second
	defaultHTTPIdleTimeout         = 60 * time.Second

	// scheduledSyncID keys the recurring full sync's checkpoint, so a
	// restart mid-run resumes instead of starting over.
	scheduledSyncID = "scheduled-full-sync"
)

// Server holds configuration for the sync daemon process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new syncd Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts the background loops and the admin HTTP server. It blocks
// until an OS shutdown signal is received or a fatal server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting retail-storefront sync daemon")

	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect retail db: %w", err)
	}
	store := retail.NewStore(db)
	defer func() { _ = store.Close() }()
	logger.Info("Retail database connection established")

	client := storefront.NewClient(&cfg.Storefront, logger)

	checkpoints, cleanupCheckpoints, err := s.newCheckpointStore(logger)
	if err != nil {
		return fmt.Errorf("initialize checkpoint store: %w", err)
	}
	if cleanupCheckpoints != nil {
		defer cleanupCheckpoints()
	}

	registry := syncrun.NewRegistry()
	orchestrator := syncrun.NewOrchestrator(store, client, checkpoints, registry, logger)

	det := detector.New(store, orchestrator, cfg.Detector, logger)
	if err := det.Start(ctx); err != nil {
		return fmt.Errorf("start change detector: %w", err)
	}
	defer det.Stop()

	coord := coordinator.New(
		cfg.StockSync.Enabled,
		time.Duration(cfg.StockSync.DelayMinutes)*time.Minute,
		cfg.StockSync.StatePath,
		logger,
	)
	reconciler := stock.NewReconciler(store, client, coord, cfg.StockSync.PageSize, logger)

	scheduler, err := s.startScheduler(ctx, orchestrator, coord, reconciler, logger)
	if err != nil {
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	router := s.newRouter(orchestrator, registry, det, coord, reconciler, db, logger)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := newHTTPServer(serverAddr, router)

	return httpserver.ServeAndWait(ctx, logger, httpServer, defaultGracefulShutdownTimeout)
}

// newCheckpointStore picks the checkpoint tier layout: file-only, or a
// redis fast tier layered in front when configured.
func (s *Server) newCheckpointStore(logger *zap.Logger) (checkpoint.Store, func(), error) {
	cfg := s.cfg.Checkpoint

	fileStore, err := checkpoint.NewFileStore(cfg.Dir, cfg.StaleAfter, logger)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Redis.Enabled {
		return fileStore, nil, nil
	}

	redisStore := checkpoint.NewRedisStore(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.Info("Fast checkpoint tier enabled", zap.String("addr", cfg.Redis.Addr))

	tiered := checkpoint.NewTieredStore(redisStore, fileStore, cfg.Redis.TTL, logger)
	cleanup := func() { _ = redisStore.Close() }
	return tiered, cleanup, nil
}

// startScheduler wires the recurring jobs: the cron-scheduled full sync and
// the coordinator eligibility tick that fires the reverse stock sync.
func (s *Server) startScheduler(ctx context.Context, orchestrator *syncrun.Orchestrator, coord *coordinator.Coordinator, reconciler *stock.Reconciler, logger *zap.Logger) (*cron.Cron, error) {
	cfg := s.cfg
	scheduler := cron.New()

	if cfg.Sync.Schedule != "" {
		_, err := scheduler.AddFunc(cfg.Sync.Schedule, func() {
			opts := syncrun.Options{
				SyncID: scheduledSyncID,
				Filters: retail.Filters{
					IncludeZeroStock: cfg.Sync.IncludeZeroStock,
				},
				ForceUpdate:     cfg.Sync.ForceUpdate,
				PageSize:        cfg.Sync.PageSize,
				BatchSize:       cfg.Sync.BatchSize,
				CheckpointEvery: cfg.Sync.CheckpointEvery,
				PageDelay:       cfg.Sync.PageDelay,
				RunTimeout:      cfg.Sync.RunTimeout,
			}
			report, err := orchestrator.Run(ctx, opts)
			if err != nil {
				logger.Error("Scheduled full sync failed", zap.Error(err))
			}
			coord.NotifyForwardCompleted(err == nil && report != nil && report.Success)
		})
		if err != nil {
			return nil, fmt.Errorf("invalid sync schedule %q: %w", cfg.Sync.Schedule, err)
		}
		logger.Info("Scheduled full sync enabled", zap.String("schedule", cfg.Sync.Schedule))
	}

	if cfg.StockSync.Enabled {
		_, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.StockSync.TickInterval), func() {
			summary, err := reconciler.RunIfEligible(ctx)
			if err != nil {
				logger.Error("Reverse stock sync failed", zap.Error(err))
				return
			}
			if summary != nil {
				logger.Info("Reverse stock sync completed",
					zap.Int("checked", summary.Checked),
					zap.Int("updated", summary.Updated))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule stock sync tick: %w", err)
		}
		logger.Info("Reverse stock sync enabled",
			zap.Int("delay_minutes", cfg.StockSync.DelayMinutes),
			zap.Duration("tick_interval", cfg.StockSync.TickInterval))
	}

	scheduler.Start()
	return scheduler, nil
}

func (s *Server) newRouter(orchestrator *syncrun.Orchestrator, registry *syncrun.Registry, det *detector.Detector, coord *coordinator.Coordinator, reconciler *stock.Reconciler, pinger readyPinger, logger *zap.Logger) http.Handler {
	cfg := s.cfg

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	// NOTE: chi's middleware.Logger logs to stdlib.
	// Keep it temporarily if access logs are useful; replace with zap-based middleware later.
	r.Use(middleware.Logger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", handleReady(pinger))

	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	verifier := auth.NewVerifier(cfg.Admin.JWTSecret, cfg.Admin.JWTIssuer)
	h := &handlers{
		cfg:          cfg,
		orchestrator: orchestrator,
		registry:     registry,
		detector:     det,
		coordinator:  coord,
		reconciler:   reconciler,
		logger:       logger,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.getStatus)
		r.Get("/sync/{id}/progress", h.getProgress)
		r.Get("/detector/status", h.getDetectorStatus)
		r.Get("/stock-sync/status", h.getStockSyncStatus)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier, logger))
			r.Post("/sync", h.postSync)
			r.Post("/sync/full", h.postFullSync)
			r.Post("/sync/{id}/cancel", h.postCancel)
		})
	})

	return r
}

// readyPinger is the readiness dependency: the retail database connection.
type readyPinger interface {
	PingContext(ctx context.Context) error
}

func handleReady(pinger readyPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  defaultHTTPReadTimeout,
		WriteTimeout: defaultHTTPWriteTimeout,
		IdleTimeout:  defaultHTTPIdleTimeout,
	}
}
