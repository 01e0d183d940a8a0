// kiroku - puzzle-gated narrative LINE bot server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/kiroku/internal/config"
	"github.com/ashureev/kiroku/internal/dispatch"
	"github.com/ashureev/kiroku/internal/engine"
	"github.com/ashureev/kiroku/internal/line"
	"github.com/ashureev/kiroku/internal/session"
	"github.com/ashureev/kiroku/internal/webhook"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const dedupSweepInterval = time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"step_delay", cfg.StepDelay,
		"persistent_sessions", cfg.PersistsSessions())

	if !cfg.VerifiesSignature() {
		slog.Warn("LINE_CHANNEL_SECRET not set: webhook signature verification is DISABLED")
	}

	// Initialize dependencies.
	var sessions session.Store
	if cfg.PersistsSessions() {
		sqlStore, err := session.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize session database", "error", err)
			os.Exit(1)
		}
		if err := sqlStore.Ping(context.Background()); err != nil {
			slog.Error("Session database health check failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Session database connected", "path", cfg.DBPath)
		sessions = sqlStore
	} else {
		sessions = session.NewMemoryStore()
		slog.Info("Using in-memory session store")
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	client, err := line.NewClient(cfg.ChannelAccessToken)
	if err != nil {
		slog.Error("Failed to initialize messaging client", "error", err)
		os.Exit(1)
	}

	table, err := engine.NewStoryTable()
	if err != nil {
		slog.Error("Failed to build story table", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	sequencer := dispatch.NewSequencer(client, cfg.StepDelay, cfg.IntroCooldown)
	deduper := dispatch.NewDeduper(cfg.DedupTTL)
	eng := engine.New(sessions, table, sequencer, deduper, client, client)

	// Initialize handlers.
	webhookHandler := webhook.NewHandler(eng, cfg.ChannelSecret)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	webhookHandler.RegisterRoutes(r)

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start dedup sweep worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatch.StartSweepWorker(ctx, deduper, sequencer, dedupSweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
