package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/inference-hitl/internal/bootstrap"
	"github.com/cuongbtq/inference-hitl/internal/config"
	"github.com/cuongbtq/inference-hitl/internal/inference"
	"github.com/cuongbtq/inference-hitl/internal/lifecycle"
	"github.com/cuongbtq/inference-hitl/internal/storage"
	"github.com/cuongbtq/inference-hitl/internal/worker"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := "worker-" + uuid.NewString()
	workerLogger := appLogger.With(slog.String("worker_id", workerID))

	workerLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConn, err := bootstrap.InitDatabase(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	broker, err := bootstrap.InitBroker(ctx, cfg, workerID, appLogger.Logger)
	if err != nil {
		dbConn.Close()
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	appLogger.Info("Broker connection established")

	// Consumers stop first, then the broker, then the store.
	cleanup := func() {
		if err := broker.Close(); err != nil {
			appLogger.Error("Failed to close broker", slog.Any("error", err))
		}
		if err := dbConn.Close(); err != nil {
			appLogger.Error("Failed to close database", slog.Any("error", err))
		}
	}

	store := storage.NewStorage(dbConn.GetDB(), appLogger.Logger)
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:       workerLogger.Logger,
		Store:        store,
		Transitioner: lifecycle.NewTransitioner(store, appLogger.Logger),
		Invoker: inference.NewInvoker(inference.Config{
			URL:             cfg.Inference.URL,
			APIKey:          cfg.Inference.APIKey,
			Timeout:         cfg.Inference.Timeout,
			ContentType:     cfg.Inference.ContentType,
			MaxResponseSize: cfg.Inference.MaxResponseSize,
		}, appLogger.Logger),
		Subscriber:      broker,
		OnUpstreamError: worker.UpstreamPolicy(cfg.Worker.OnUpstreamError),
		RequeueDelay:    cfg.Worker.RequeueDelay,
		WorkerID:        workerID,
	})

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		// Start only returns early when the subscription is lost.
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		cleanup()
		return err
	}

	// Give the in-flight message time to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}
