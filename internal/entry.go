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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/display"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/retrace"
	"github.com/starford/raido/internal/session"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/storage"
)

// sseNotifier forwards user-facing retrace messages to SSE clients so the
// editor frontend can echo them, mirroring each one to the log.
type sseNotifier struct {
	broker *sse.Broker
	logger *slog.Logger
}

func (n *sseNotifier) Info(msg string) {
	n.logger.Info(msg)
	n.broker.PublishEvent("notify", map[string]string{"level": "info", "message": msg})
}

func (n *sseNotifier) Warn(msg string) {
	n.logger.Warn(msg)
	n.broker.PublishEvent("notify", map[string]string{"level": "warn", "message": msg})
}

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
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	workdir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve workdir: %w", err)
	}

	root, err := storage.ResolveRoot(cfg.Store.Mode, cfg.Store.Path, workdir)
	if err != nil {
		return fmt.Errorf("resolve store root: %w", err)
	}

	sqlitePath := cfg.SQLite.Path
	if sqlitePath == "" {
		sqlitePath = filepath.Join(filepath.Dir(root), "index.db")
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_mode", cfg.Store.Mode),
		slog.String("store_root", root),
		slog.String("sqlite_path", sqlitePath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize session storage.
	store, err := storage.NewFS(root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if err := store.Init(); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite index.
	db, err := index.Open(sqlitePath)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	// Run initial sync.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)

	// Session service and the default session it guarantees.
	svc := session.NewService(store, db, workdir)
	if _, err := svc.GetOrCreateDefault(ctx); err != nil {
		return fmt.Errorf("ensure default session: %w", err)
	}

	// Retrace engine and its editor-facing surfaces.
	renderer := display.NewRenderer(broker, cfg.Retrace.PreviewLength, logger)
	sink := retrace.NewEventList(broker)
	notify := &sseNotifier{broker: broker, logger: logger}
	engine := retrace.New(sink, renderer, notify, svc, logger)

	// Build API handler set and router.
	h := api.NewHandler(svc, db, engine, sink, renderer, broker, logger)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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

	// Watch the session store for out-of-band edits. Each change becomes an
	// SSE cue, and an active retrace of the touched session is rebuilt.
	g.Go(func() error {
		index.Watch(gCtx, db, store, logger, func(kind, sessionID string) {
			broker.PublishSessionEvent(kind, sessionID)
			if st := engine.CurrentState(); st != nil && st.SessionID == sessionID {
				if kind == "deleted" {
					engine.Stop()
				} else {
					engine.Refresh()
				}
			}
		})
		return nil
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
		broker.Close()

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
