// Package server assembles the store, document archive, dispatcher and HTTP
// stack from configuration and runs them until the context ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"qitp/internal/adapters/api"
	"qitp/internal/blob"
	"qitp/internal/config"
	"qitp/internal/core"
	"qitp/internal/documents"
	"qitp/internal/fixtures"
	"qitp/internal/observability"
	"qitp/internal/query"
	"qitp/internal/routing"
	"qitp/pkg/domain"
)

// Server is a fully wired service instance.
type Server struct {
	cfg        config.Config
	logger     *zap.Logger
	store      core.Store
	blobs      blob.Store
	metrics    *observability.Metrics
	dispatcher *routing.Dispatcher
	handler    http.Handler
}

// New opens the configured backends, seeds fixtures and builds the router.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	store, err := OpenSeededStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	archive, err := documents.NewArchive(blobs)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	tag, err := cfg.API.Language()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	instrumented := core.Instrument(store, metrics)
	dispatcher := routing.NewDispatcher(
		routing.WithLatency(cfg.API.Latency),
		routing.WithLogger(logger.Named("dispatch")),
	)
	api.NewHandler(instrumented, archive,
		api.WithSorter(query.NewSorter(tag)),
		api.WithLogger(logger.Named("api")),
	).Register(dispatcher)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		store:      instrumented,
		blobs:      blobs,
		metrics:    metrics,
		dispatcher: dispatcher,
	}
	s.handler = s.routes()
	logger.Info("server assembled",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", string(blobs.Driver())),
		zap.Int("routes", len(dispatcher.Routes())),
	)
	return s, nil
}

// OpenSeededStore opens the configured store and, when enabled, seeds
// fixtures into its empty tables.
func OpenSeededStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (core.Store, error) {
	store, err := core.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	if !cfg.Fixtures.Enabled {
		return store, nil
	}
	var snap domain.Snapshot
	if cfg.Fixtures.Path != "" {
		snap, err = fixtures.Load(cfg.Fixtures.Path)
	} else {
		snap, err = fixtures.Default()
	}
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	created, err := fixtures.Seed(ctx, store, snap)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	total := 0
	for _, n := range created {
		total += n
	}
	logger.Info("fixtures seeded", zap.Int("records", total), zap.Int("tables", len(created)))
	return store, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.AccessLog(s.logger.Named("http")))
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		routing.WriteEnvelope(w, routing.OK(map[string]string{"status": "ok"}))
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Handle("/api/*", s.dispatcher)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		routing.WriteEnvelope(w, routing.Failure(http.StatusNotFound, routing.MessageNotFound))
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Store returns the instrumented record store.
func (s *Server) Store() core.Store { return s.store }

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.HTTP.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles connections on ln until ctx is cancelled, then shuts down
// gracefully within http.shutdown_timeout and closes the store.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := s.cfg.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	err := g.Wait()
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close releases the store.
func (s *Server) Close() error {
	return s.store.Close()
}
