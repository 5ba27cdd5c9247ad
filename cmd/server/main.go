// Support chat server: accounts, LLM-backed chat and conversation analysis.
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

	"github.com/ashureev/support-chat/internal/analysis"
	"github.com/ashureev/support-chat/internal/api"
	"github.com/ashureev/support-chat/internal/chat"
	"github.com/ashureev/support-chat/internal/config"
	"github.com/ashureev/support-chat/internal/llm"
	"github.com/ashureev/support-chat/internal/middleware"
	"github.com/ashureev/support-chat/internal/session"
	"github.com/ashureev/support-chat/internal/store"
	"github.com/ashureev/support-chat/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const sessionSweepInterval = time.Minute

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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "llm_provider", cfg.LLM.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	model, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize model backend", "error", err)
		os.Exit(1)
	}
	var modelStatus api.ModelStatusChecker
	if ollama, ok := model.(*llm.OllamaClient); ok {
		modelStatus = ollama
	}

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize services.
	sessions := session.NewManager(repo, session.Options{TTL: cfg.SessionTTL})
	cookies := session.NewCookieCodec(cfg.SessionSecret, cfg.SessionTTL, !cfg.IsDevelopment())
	chatGateway := chat.NewGateway(model, conversationLogger, cfg.LLM.SystemPrompt)
	analysisGateway := analysis.NewGateway(
		analysis.NewProcessAnalyzer(cfg.Analyzer),
		analysis.NewProcessMailer(cfg.Mailer),
		cfg.Mailer.Timeout,
	)

	// Initialize handlers.
	handler := api.NewHandler(repo, sessions, cookies, chatGateway, analysisGateway, modelStatus)
	healthHandler := api.NewHealthHandler(repo, sessions, 5*time.Second)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Session-scoped routes.
	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(sessions, cookies))
		handler.RegisterRoutes(r)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + cfg.Analyzer.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	session.StartSweeper(ctx, sessions, sessionSweepInterval)

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
	}

	// Let in-flight follow-up emails finish before exiting.
	analysisGateway.Wait()

	slog.Info("Server stopped successfully")
}
