// Package server exposes the lineage queries over HTTP and, optionally,
// rebuilds the map when template files change.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leaplineage/internal/engine"
)

// Server serves one engine.
type Server struct {
	engine    *engine.Engine
	addr      string
	watch     bool
	watchDirs []string
	debounce  time.Duration
	logger    *slog.Logger
	notifier  *notifier

	buildMu sync.Mutex
}

// Config holds configuration for the server.
type Config struct {
	Engine *engine.Engine
	// Addr is the listen address, such as ":8080".
	Addr string
	// Watch rebuilds the map when a file under WatchDirs changes.
	Watch     bool
	WatchDirs []string
	// Debounce delays a rebuild until changes settle (default 200ms).
	Debounce time.Duration
	Logger   *slog.Logger
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &Server{
		engine:    cfg.Engine,
		addr:      cfg.Addr,
		watch:     cfg.Watch,
		watchDirs: cfg.WatchDirs,
		debounce:  debounce,
		logger:    logger,
		notifier:  newNotifier(),
	}
}

// Handler returns the HTTP API.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/tables", s.handleTables)
		r.Get("/uris", s.handleURIs)
		r.Get("/upstream/{table}", s.handleTraverse(s.engine.Upstream))
		r.Get("/downstream/{table}", s.handleTraverse(s.engine.Downstream))
		r.Get("/labels", s.handleLabels)
		r.Get("/unmapped", s.handleUnmapped)
		r.Get("/map", s.handleMap)
		r.Get("/graph.svg", s.handleGraphSVG)
		r.Post("/build", s.handleBuild)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Serve starts the server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting server", "addr", s.addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch {
		eg.Go(func() error {
			return s.watchFiles(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Rebuild runs one build and notifies event stream subscribers. Builds
// never overlap.
func (s *Server) Rebuild(ctx context.Context) (*engine.BuildResult, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	result, err := s.engine.Build(ctx)
	ev := BuildEvent{At: time.Now().UTC()}
	if err != nil {
		ev.Failed = err.Error()
		s.logger.Error("rebuild failed", "error", err)
	} else {
		ev.Templates = result.Templates
		ev.Tables = len(result.Graph.Tables())
		ev.Unmapped = len(result.Unmapped)
		ev.Errors = len(result.Errors)
	}
	s.notifier.publish(ev)
	return result, err
}
