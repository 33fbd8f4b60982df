// Package server собирает HTTP сервер синхронизации из компонентов.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/boardsync/internal/config"
	"github.com/iudanet/boardsync/internal/server/handlers"
	"github.com/iudanet/boardsync/internal/server/jwt"
	"github.com/iudanet/boardsync/internal/server/metrics"
	"github.com/iudanet/boardsync/internal/server/middleware"
	"github.com/iudanet/boardsync/internal/server/mutators"
	"github.com/iudanet/boardsync/internal/server/poke"
	"github.com/iudanet/boardsync/internal/server/rowsync"
	"github.com/iudanet/boardsync/internal/server/storage"
	"github.com/iudanet/boardsync/internal/server/storage/boltcvr"
	"github.com/iudanet/boardsync/internal/server/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// Server HTTP сервер синхронизации со всеми зависимостями
type Server struct {
	logger   *slog.Logger
	cfg      *config.Config
	db       *sqlite.Storage
	cvrs     storage.CVRStorage
	closers  []func() error
	metrics  *metrics.Collector
	hub      *poke.Hub
	registry *prometheus.Registry
	limiters []*middleware.RateLimiter
	handler  http.Handler
}

// New открывает хранилища и собирает маршруты
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Server, error) {
	db, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Server{
		logger:   logger,
		cfg:      cfg,
		db:       db,
		closers:  []func() error{db.Close},
		metrics:  metrics.NewCollector(),
		registry: prometheus.NewRegistry(),
	}

	switch cfg.CVR.Backend {
	case config.CVRBackendBolt:
		bolt, err := boltcvr.New(ctx, cfg.CVR.Path)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to open CVR store: %w", err)
		}
		s.cvrs = bolt
		s.closers = append(s.closers, bolt.Close)
	default:
		s.cvrs = db
	}

	if err := s.registry.Register(s.metrics); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s.handler = s.routes(version)
	return s, nil
}

func (s *Server) routes(version string) http.Handler {
	s.hub = poke.NewHub(s.logger)
	tokens := jwt.NewService(s.cfg.JWT.Secret, s.cfg.JWT.AccessTokenTTL)

	syncService := rowsync.NewService(s.logger, s.db, s.cvrs, mutators.NewDispatcher(s.logger),
		rowsync.WithNotifier(s.hub),
		rowsync.WithMetrics(s.metrics),
	)

	authHandler := handlers.NewAuthHandler(s.logger, s.db, tokens)
	syncHandler := handlers.NewSyncHandler(s.logger, syncService)
	pokeHandler := handlers.NewPokeHandler(s.logger, s.hub, s.metrics)
	healthHandler := handlers.NewHealthHandler(s.logger, s.db.DB(), version)

	authLimit := middleware.NewRateLimiter(s.cfg.RateLimit.Auth, s.cfg.RateLimit.Window, s.logger)
	syncLimit := middleware.NewRateLimiter(s.cfg.RateLimit.Sync, s.cfg.RateLimit.Window, s.logger)
	s.limiters = append(s.limiters, authLimit, syncLimit)

	authenticated := func(h http.HandlerFunc) http.Handler {
		return syncLimit.Middleware(middleware.AuthMiddleware(s.logger, tokens)(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/auth/register", authLimit.Middleware(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/v1/auth/login", authLimit.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/v1/pull", authenticated(syncHandler.Pull))
	mux.Handle("POST /api/v1/push", authenticated(syncHandler.Push))
	mux.Handle("GET /api/v1/poke", authenticated(pokeHandler.Poke))
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)
	if s.cfg.Metrics {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = middleware.LoggingWithSkip(s.logger, []string{"/api/v1/health", "/metrics"})(handler)
	handler = middleware.RecoveryMiddleware(s.logger)(handler)
	return handler
}

// Handler корневой http.Handler со всеми middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run обслуживает запросы на ln до отмены ctx, затем плавно останавливается
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	// отменяется при остановке: закрывает poke websocket соединения
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.sweepCVRs(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server")
		cancelBase()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close освобождает хранилища и фоновые горутины
func (s *Server) Close() error {
	for _, l := range s.limiters {
		l.Stop()
	}
	s.limiters = nil

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
