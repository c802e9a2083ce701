// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mystindex/internal/api"
	"github.com/starford/mystindex/internal/index"
	"github.com/starford/mystindex/internal/mcpserver"
	"github.com/starford/mystindex/internal/metrics"
	"github.com/starford/mystindex/internal/models"
	"github.com/starford/mystindex/internal/sse"
	"github.com/starford/mystindex/internal/storage"
	"github.com/starford/mystindex/internal/workspace"
)

// session is the state shared by every command: one workspace and the
// resources it owns.
type session struct {
	logger  *slog.Logger
	store   *storage.FS
	db      *index.DB
	metrics *metrics.Metrics
	ws      *workspace.Workspace
}

func (s *session) Close() error {
	return s.db.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", output: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// open builds the session. Logs go to logOut as JSON.
func (app *application) open(logOut io.Writer, onEvent workspace.EventCallback) (*session, error) {
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("project_root", cfg.Project.Root),
		slog.Bool("watch", cfg.Project.Watch),
		slog.Any("extensions", cfg.Parsing.Extensions),
		slog.String("index_dsn", cfg.Index.DSN),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Project.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.Index.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	m := metrics.New()
	wsOpts := []workspace.Option{
		workspace.WithLogger(logger),
		workspace.WithMetrics(m),
	}
	if onEvent != nil {
		wsOpts = append(wsOpts, workspace.WithEventCallback(onEvent))
	}
	ws := workspace.New(db, cfg.Parsing.Workspace(), wsOpts...)

	return &session{logger: logger, store: store, db: db, metrics: m, ws: ws}, nil
}

// scan runs the initial project scan, logging progress at debug level.
func (s *session) scan(ctx context.Context) (workspace.ScanResult, error) {
	return s.ws.Scan(ctx, s.store, func(done, total int) {
		s.logger.Debug("scan progress", slog.Int("done", done), slog.Int("total", total))
	})
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	sess, err := app.open(os.Stdout, broker.PublishDocumentEvent)
	if err != nil {
		return err
	}
	defer sess.Close()
	logger := sess.logger

	if _, err := sess.scan(ctx); err != nil {
		logger.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(sess.ws, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.MetricsMiddleware(sess.metrics))

	// Health check and metrics endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", sess.metrics.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Project.Watch {
		g.Go(func() error {
			if err := workspace.Watch(gCtx, sess.ws, sess.store, sess.store.Root(), logger); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stops the watcher when shutdown came from a signal.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// ScanReport is what the scan command prints.
type ScanReport struct {
	workspace.ScanResult
	Records []models.Target `json:"records"`
}

// Scan analyzes the project once and writes every target record as JSON.
func Scan(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	sess, err := app.open(os.Stderr, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	res, err := sess.scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	report := ScanReport{ScanResult: res, Records: []models.Target{}}
	for t := range sess.ws.IterateTargets(false, nil) {
		report.Records = append(report.Records, t)
	}

	enc := json.NewEncoder(app.output)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ServeMCP scans the project and serves the query tools over MCP stdio.
// Logs go to standard error since standard output carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	sess, err := app.open(os.Stderr, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := sess.scan(ctx); err != nil {
		sess.logger.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if app.config.Project.Watch {
		go func() {
			if err := workspace.Watch(ctx, sess.ws, sess.store, sess.store.Root(), sess.logger); err != nil {
				sess.logger.Error("watcher failed", slog.String("error", err.Error()))
			}
		}()
	}

	srv := mcpserver.New(sess.ws, sess.store, app.version)
	sess.logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
