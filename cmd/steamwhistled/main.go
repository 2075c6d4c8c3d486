package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/thewrongjames/steamwhistle/config"
	"github.com/thewrongjames/steamwhistle/internal/api"
	"github.com/thewrongjames/steamwhistle/internal/db"
	"github.com/thewrongjames/steamwhistle/internal/docstore"
	"github.com/thewrongjames/steamwhistle/internal/logging"
	"github.com/thewrongjames/steamwhistle/internal/notifier"
	"github.com/thewrongjames/steamwhistle/internal/poller"
	"github.com/thewrongjames/steamwhistle/internal/push"
	"github.com/thewrongjames/steamwhistle/internal/reconciler"
	"github.com/thewrongjames/steamwhistle/internal/steam"
	"github.com/thewrongjames/steamwhistle/internal/store"
	"github.com/thewrongjames/steamwhistle/internal/trigger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatal("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("driver", cfg.Database.Driver))

	// Writes to the document store are fanned out to the triggers below.
	dispatcher := trigger.NewDispatcher(cfg.Triggers.Workers, cfg.Triggers.InvocationTimeout, logger.Named("trigger"))
	docs := docstore.NewGormStore(gormDB, dispatcher)
	appStore := store.New(docs, logger.Named("store"))

	steamClient := steam.NewClient(&cfg.Steam, logger.Named("steam"))
	pushClient := push.NewClient(&cfg.Push, logger.Named("push"))

	reconciler.New(appStore, steamClient, logger.Named("reconciler"), nil).Register(dispatcher)
	notifier.New(appStore, pushClient, cfg.Steam.CurrencySymbol, logger.Named("notifier")).Register(dispatcher)
	dispatcher.Start(ctx)

	pollerSvc := poller.NewService(&cfg.Poller, appStore, steamClient, logger.Named("poller"), nil)
	go pollerSvc.Run(ctx)

	router := api.NewRouter(cfg, appStore, logger.Named("api"))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}

	// Let queued triggers finish before the workers are cancelled.
	drained := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn("gave up waiting for trigger invocations")
	}
	cancel()

	logger.Info("server gracefully stopped")
}
