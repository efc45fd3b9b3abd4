// SupportFlow - Customer Support Workflow Server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/dkrenev/supportflow/internal/agent"
	"github.com/dkrenev/supportflow/internal/api"
	"github.com/dkrenev/supportflow/internal/config"
	"github.com/dkrenev/supportflow/internal/llm"
	"github.com/dkrenev/supportflow/internal/middleware"
	"github.com/dkrenev/supportflow/internal/search"
	"github.com/dkrenev/supportflow/internal/session"
	"github.com/dkrenev/supportflow/internal/store"
	"github.com/dkrenev/supportflow/internal/tracker"
	"github.com/dkrenev/supportflow/internal/workflow"
	"github.com/dkrenev/supportflow/internal/ws"
	"github.com/dkrenev/supportflow/web"
)

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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize the checkpoint store.
	var cpStore workflow.CheckpointStore
	if cfg.DBPath == "" {
		cpStore = store.NewMemory()
		slog.Info("Using in-memory checkpoint store")
	} else {
		sqliteStore, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		cpStore = sqliteStore
		slog.Info("Using SQLite checkpoint store", "path", cfg.DBPath)
	}
	defer func() {
		if closeErr := cpStore.Close(); closeErr != nil {
			slog.Error("Failed to close checkpoint store", "error", closeErr)
		}
	}()

	if err := cpStore.Ping(context.Background()); err != nil {
		slog.Error("Checkpoint store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Checkpoint store connected")

	// Pick the language model. Without an API key the keyword classifier and
	// template drafter keep the workflow functional.
	var classifier agent.Classifier
	var drafter agent.Drafter
	aiEnabled := cfg.OpenAIAPIKey != ""
	if aiEnabled {
		model := llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		classifier, drafter = model, model
		slog.Info("Language model enabled", "model", model.Model())
	} else {
		heuristic := llm.NewHeuristic()
		classifier, drafter = heuristic, heuristic
		slog.Info("AI features disabled (OPENAI_API_KEY not set), using keyword classifier")
	}

	svc, err := agent.NewService(agent.Collaborators{
		Classifier: classifier,
		Drafter:    drafter,
		Searcher:   search.NewRetrying(search.NewStatic(), search.DefaultRetryPolicy()),
		Tracker:    tracker.NewStub(),
	}, cpStore)
	if err != nil {
		slog.Error("Failed to build support workflow", "error", err)
		os.Exit(1)
	}

	sessions := session.NewRegistry(session.Config{
		IdleTimeout: cfg.Session.IdleTimeout,
		MaxAge:      cfg.Session.MaxAge,
		MaxEntries:  cfg.Session.MaxEntries,
	})

	hub := ws.NewHub()

	// Initialize handlers.
	chatHandler := api.NewChatHandler(svc, sessions, hub)
	healthHandler := api.NewHealthHandler(cpStore, cfg.Timeout.HealthCheck)
	wsHandler := ws.NewHandler(hub, sessions, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve the embedded chat page.
	r.Handle("/*", web.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	// Start the session sweeper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions.StartSweeper(ctx, cfg.Session.SweepInterval)
	slog.Info("Session sweeper started", "interval", cfg.Session.SweepInterval)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
