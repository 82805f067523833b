package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/boxdarr/boxdarr/internal/api"
	"github.com/boxdarr/boxdarr/internal/config"
	"github.com/boxdarr/boxdarr/internal/controllers"
	"github.com/boxdarr/boxdarr/internal/models"
	"github.com/boxdarr/boxdarr/internal/scheduler"
	"github.com/boxdarr/boxdarr/internal/services/discord"
	"github.com/boxdarr/boxdarr/internal/services/letterboxd"
	"github.com/boxdarr/boxdarr/internal/services/plex"
	"github.com/boxdarr/boxdarr/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel, cfg.DiscordLoggingWebhookURL)
	logger.Info("Starting boxdarr")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize the watch ledger
	freshLedger := false
	if _, err := os.Stat(cfg.DatabaseFile); os.IsNotExist(err) {
		freshLedger = true
	}

	db, recovered, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// An empty ledger means already-recorded watches may be re-notified;
	// the diary side still dedupes via Letterboxd's own rejection
	if recovered {
		logger.WithField("quarantined", cfg.DatabaseFile+".corrupt").
			Warn("Ledger file was unreadable and moved aside, starting from an empty ledger")
	} else if freshLedger {
		logger.Warn("Ledger file was missing, starting from an empty ledger")
	}
	logger.Info("Database initialized")

	// Cursor recovery: a fresh ledger starts polling from now instead of
	// replaying the server's entire history
	cursor, err := db.GetCursor()
	if err != nil {
		return fmt.Errorf("failed to read poll cursor: %w", err)
	}
	if cursor.IsZero() {
		if err := db.SaveCursor(time.Now()); err != nil {
			return fmt.Errorf("failed to initialize poll cursor: %w", err)
		}
		logger.Info("Poll cursor initialized to now")
	}

	// 4. Initialize services
	plexClient, err := plex.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Plex client: %w", err)
	}
	logger.Info("Plex client initialized")

	letterboxdClient, err := letterboxd.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Letterboxd client: %w", err)
	}
	logger.Info("Letterboxd client initialized")

	notifier, err := discord.NewNotifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Discord notifier: %w", err)
	}
	logger.Info("Discord notifier initialized")

	// 5. Initialize controllers
	detector := controllers.NewDetector(db, plexClient, cfg.CompletionFraction, cfg.DateThresholdHour, logger)
	reconciler := controllers.NewReconciler(db, detector, notifier, letterboxdClient, logger)
	logger.Info("Controllers initialized")

	if err := reconciler.ResumePending(); err != nil {
		logger.WithError(err).Warn("Failed to resume pending records")
	}

	// 6. Initialize scheduler
	sched := scheduler.NewScheduler(reconciler, cfg.PollIntervalMinutes, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 7. Initialize HTTP server
	server := api.NewServer(cfg, db, reconciler, logger)

	// Start server in goroutine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 8. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("boxdarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("boxdarr stopped")
	return nil
}
