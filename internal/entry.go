// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tether/internal/api"
	"github.com/starford/tether/internal/companion"
	"github.com/starford/tether/internal/index"
	"github.com/starford/tether/internal/jobs"
	"github.com/starford/tether/internal/mcpserver"
	"github.com/starford/tether/internal/notify"
	"github.com/starford/tether/internal/sse"
	"github.com/starford/tether/internal/visibility"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := NewLogger(app.logOutput, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("notes_folder", cfg.Companion.NotesFolder),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(cfg.Visibility.TreeThrottle)
	defer broker.Close()

	rt, err := Open(cfg, logger,
		companion.WithNotifier(notify.Multi{notify.NewLog(logger), broker}),
		companion.WithListener(broker),
	)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Presentation tree kept in step with note existence.
	tree := visibility.NewFileTree(rt.Store)
	synchronizer := visibility.NewSynchronizer(rt.Companions, rt.Companions.Settings(), logger)
	synchronizer.SetTree(tree)

	g, gCtx := errgroup.WithContext(ctx)

	refresh := func() {
		if err := tree.Reload(); err != nil {
			logger.Warn("tree reload failed", slog.String("error", err.Error()))
			return
		}
		if n := synchronizer.Refresh(gCtx); n > 0 {
			broker.Publish(sse.Event{Type: sse.TypeTreeUpdated, Data: map[string]int{"changed": n}})
		}
	}
	debouncer := visibility.NewDebouncer(cfg.Visibility.Debounce, refresh)
	defer debouncer.Cancel()
	refresh()

	// Periodic resync.
	runner := jobs.NewRunner(logger, jobs.Func{
		JobName: "resync",
		Spec:    cfg.Visibility.ResyncSchedule,
		Fn: func(context.Context) error {
			if _, err := index.Sync(rt.DB, rt.Store, logger); err != nil {
				return err
			}
			// Sources can change without a note changing.
			debouncer.Trigger()
			return nil
		},
	})
	if err := runner.Start(gCtx); err != nil {
		return err
	}
	defer runner.Stop()

	apiRouter := api.NewRouter(api.Deps{
		Companions: rt.Companions,
		Links:      rt.DB,
		Tree:       tree,
		Events:     broker,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
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

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Start file watcher: index upkeep, SSE, auto-create and visibility.
	g.Go(func() error {
		return index.Watch(gCtx, rt.DB, rt.Store, rt.Store.Root(), logger, func(kind, path string) {
			broker.PublishFileEvent(kind, path)
			rt.Companions.HandleFileEvent(gCtx, kind, path)
			debouncer.Trigger()
		}, index.IgnoreDir(rt.Store.TrashDir()))
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown and reload signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(quit)

	loop:
		for {
			select {
			case sig := <-quit:
				if sig == syscall.SIGHUP {
					app.applyReload(logger, rt.Companions, synchronizer)
					debouncer.Trigger()
					continue
				}
				logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
				break loop
			case <-gCtx.Done():
				logger.Info("Context cancelled, initiating shutdown")
				break loop
			}
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// applyReload re-reads the configuration and re-injects the companion
// settings. Settings that need a restart (ports, paths) are ignored.
func (a *application) applyReload(logger *slog.Logger, svc *companion.Service, s *visibility.Synchronizer) {
	if a.reload == nil {
		logger.Warn("reload requested but no config source is set")
		return
	}
	cfg, err := a.reload()
	if err != nil {
		logger.Error("config reload failed", slog.String("error", err.Error()))
		return
	}
	settings := cfg.Companion.Settings()
	svc.SetSettings(settings)
	s.SetSettings(settings)
	logger.Info("Configuration reloaded",
		slog.String("placement", settings.Placement.String()),
		slog.Bool("hide_sources", settings.HideSources),
		slog.Bool("auto_create", settings.AutoCreate))
}

// RunMCP serves the companion tools over stdio. Logs go to stderr unless
// another writer is configured.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if app.logOutput == nil {
		app.logOutput = os.Stderr
	}
	logger := NewLogger(app.logOutput, app.config.App.LogLevel)
	slog.SetDefault(logger)

	rt, err := Open(app.config, logger, companion.WithNotifier(notify.NewLog(logger)))
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("Serving MCP over stdio", slog.String("vault_path", app.config.Vault.Path))
	return mcpserver.New(rt.Companions).ServeStdio()
}
