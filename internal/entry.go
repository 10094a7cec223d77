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

	"github.com/veddartha/cairn/internal/api"
	"github.com/veddartha/cairn/internal/backend"
	"github.com/veddartha/cairn/internal/cache"
	"github.com/veddartha/cairn/internal/index"
	"github.com/veddartha/cairn/internal/mcpserver"
	"github.com/veddartha/cairn/internal/models"
	"github.com/veddartha/cairn/internal/sse"
	"github.com/veddartha/cairn/internal/storage"
	"github.com/veddartha/cairn/internal/watch"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("project_path", cfg.Project.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure project directory exists.
	if err := os.MkdirAll(cfg.Project.Path, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}

	// Initialize storage.
	store, err := storage.NewFS(cfg.Project.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite metadata index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	// Backend fetch/move/file operations.
	client := backend.New(store, db, logger)

	// SSE broker consuming cache change events.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Reconciliation engine. Every committed snapshot, full reloads
	// included, surfaces to SSE consumers as a throttled snapshot event.
	engine := cache.NewEngine(client,
		cfg.Cache.ReloadWindow, cfg.Cache.RenameWindow,
		func([]models.Artifact) { broker.PublishSnapshotUpdated() },
		broker.PublishArtifactEvent, logger)

	if app.mcpStdio {
		logger.Info("Starting MCP stdio server")
		if err := engine.FullReload(ctx); err != nil {
			logger.Warn("initial load failed", slog.String("error", err.Error()))
		}
		return mcpserver.New(engine, client).ServeStdio()
	}

	// Watcher hub and subscription for the active project. A watch setup
	// failure is degraded mode, not fatal: the cache still serves reads
	// and manual reloads without live updates.
	hub := watch.NewHub(cfg.Cache.BatchWindow, logger)
	defer hub.Close()

	// Subscribe with the storage root, not the raw config path: the config
	// may hold a relative path, and batch paths mirror the watched root.
	subs := cache.NewSubscriptionManager(hub, engine, logger)
	unsubscribe, err := subs.Subscribe(store.Root())
	if err != nil {
		logger.Warn("watch setup failed, live updates disabled", slog.String("error", err.Error()))
	} else {
		defer unsubscribe()
	}

	// Initial full load.
	if err := engine.FullReload(ctx); err != nil {
		logger.Warn("initial load failed", slog.String("error", err.Error()))
	}

	// Build API router.
	apiRouter := api.NewRouter(engine, client, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Background batch worker applying watcher-driven updates.
	g.Go(func() error {
		return engine.Start(gCtx)
	})

	// Start HTTP server.
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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Commit any pending debounced rename before exit.
		if err := engine.Renames().Finalize(); err != nil {
			logger.Warn("final rename flush failed", slog.String("error", err.Error()))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
