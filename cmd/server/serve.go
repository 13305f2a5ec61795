package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/legalai/legal-assistant/internal/api"
	"github.com/legalai/legal-assistant/internal/config"
	"github.com/legalai/legal-assistant/internal/conversation"
	"github.com/legalai/legal-assistant/internal/identity"
	"github.com/legalai/legal-assistant/internal/llm"
	"github.com/legalai/legal-assistant/internal/store"
	"github.com/legalai/legal-assistant/internal/transcript"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting server",
		zap.String("port", cfg.Port),
		zap.Bool("dev", cfg.IsDevelopment()),
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("llm_provider", cfg.LLM.Provider))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(ctx, cfg.DB, logger.Named("store"))
	if err != nil {
		logger.Error("Failed to initialize database", zap.Error(err))
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Error("Failed to close repository", zap.Error(closeErr))
		}
	}()
	logger.Info("Database connected")

	gateway, err := llm.New(ctx, cfg.LLM, logger.Named("llm"))
	if err != nil {
		// Stay up: every query reports an LLM service error until fixed.
		logger.Error("LLM provider unavailable, queries will fail", zap.Error(err))
		gateway = llm.Unavailable{Provider: cfg.LLM.Provider, Cause: err}
	}

	opts := []conversation.Option{conversation.WithMaxQueryLength(cfg.MaxQueryLength)}
	if cfg.Transcript.Enabled {
		tw, err := transcript.New(cfg.Transcript, logger)
		if err != nil {
			logger.Error("Failed to initialize transcript writer", zap.Error(err))
			return err
		}
		defer func() { _ = tw.Close() }()
		opts = append(opts, conversation.WithTranscript(tw))
		logger.Info("Conversation transcripts enabled", zap.String("dir", cfg.Transcript.Dir))
	}

	resolver := identity.NewResolver(repo, logger.Named("identity"))
	svc := conversation.NewService(repo, resolver, gateway, logger.Named("conversation"), opts...)

	cookies := identity.Cookies{
		Name:   cfg.Cookie.Name,
		MaxAge: cfg.Cookie.MaxAge,
		Dev:    cfg.IsDevelopment(),
	}
	handler := api.NewHandler(svc, cookies, logger.Named("api"))
	health := api.NewHealthHandler(repo, logger.Named("health"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler, health, corsOrigins(cfg), logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Covers the slowest provider call plus storage.
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}

// corsOrigins adds the configured frontend to the allowed origins.
func corsOrigins(cfg *config.Config) []string {
	origins := append([]string(nil), cfg.CORSOrigins...)
	if cfg.FrontendURL != "" {
		origins = append(origins, cfg.FrontendURL)
	}
	return origins
}
