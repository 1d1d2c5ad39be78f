package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ejournal-workflow-api/internal/api"
	"github.com/ejournal-workflow-api/internal/auth"
	"github.com/ejournal-workflow-api/internal/blobstore"
	"github.com/ejournal-workflow-api/internal/config"
	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/ejournal-workflow-api/internal/service"
	"github.com/ejournal-workflow-api/internal/transport"
	"github.com/ejournal-workflow-api/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(config.LogConfig{Level: "info", Format: "json"})
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(cfg.Log)
	log.Info().Msg("Starting editorial workflow API server...")

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	ctx := context.Background()

	// Initialize storage and email transport
	blobs, err := blobstore.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize blob store")
	}
	mailer, err := transport.New(ctx, cfg.Mail, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize email transport")
	}

	// Initialize repositories and services
	runner := repository.NewTxRunner(db)
	authz := auth.NewAuthorizer(runner.Repos().User)
	services := service.NewServices(runner, authz, blobs, mailer, cfg, log)

	// Start notification dispatcher
	go services.Notification.StartProcessor(ctx)
	log.Info().Msg("Notification dispatcher started")

	// Initialize router
	router := api.NewRouter(services, runner.Repos().Replay, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop dispatcher after in-flight requests have enqueued their work
	services.Notification.StopProcessor()

	log.Info().Msg("Server exited gracefully")
}
