/**
 * AquaPanel Worker - Main Entry Point
 *
 * Queue-driven worker that reads four-gauge aquarium panel photos with the
 * quadrant OCR engine and records the readings per unit.
 *
 * Architecture:
 * - Redis-backed job queue (raw LIST consumer or asynq, per QUEUE_DRIVER)
 * - Quadrant extraction pipeline: partition, preprocess variants, Tesseract
 *   OCR, range/confidence candidate selection
 * - PostgreSQL persistence keyed by unit id, Redis latest-reading mirror
 * - Prometheus metrics and health endpoint
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/reeflab/aquapanel-worker/internal/clients"
	"github.com/reeflab/aquapanel-worker/internal/config"
	"github.com/reeflab/aquapanel-worker/internal/logging"
	"github.com/reeflab/aquapanel-worker/internal/metrics"
	"github.com/reeflab/aquapanel-worker/internal/processor"
	"github.com/reeflab/aquapanel-worker/internal/queue"
	"github.com/reeflab/aquapanel-worker/internal/storage"
)

// consumer is the common surface of both queue drivers.
type consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger("worker")
	logger.Info("AquaPanel worker starting",
		"queue", cfg.QueueName, "driver", cfg.QueueDriver, "concurrency", cfg.WorkerConcurrency)

	store, err := storage.NewManager(cfg.DatabaseURL, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("storage initialized (PostgreSQL + Redis cache)")

	proc, err := processor.NewPanelProcessor(&processor.ProcessorConfig{
		Language:     cfg.TesseractLang,
		MaxImageSize: cfg.MaxImageSize,
	})
	if err != nil {
		logger.Error("failed to initialize panel processor", "error", err)
		os.Exit(1)
	}
	logger.Info("panel processor initialized", "language", cfg.TesseractLang)

	var capture *clients.CaptureClient
	if cfg.CaptureAPIURL != "" {
		capture = clients.NewCaptureClient(cfg.CaptureAPIURL, cfg.MaxImageSize)
		logger.Info("capture API client initialized", "base", cfg.CaptureAPIURL)
	}

	var queueConsumer consumer
	switch cfg.QueueDriver {
	case "asynq":
		queueConsumer, err = queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			Storage:           store,
			Capture:           capture,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
	default:
		queueConsumer, err = queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			Storage:           store,
			Capture:           capture,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
	}
	if err != nil {
		logger.Error("failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := queueConsumer.Start(ctx); err != nil {
		logger.Error("failed to start queue consumer", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
		if err := metrics.Serve(cfg.MetricsAddr, store); err != nil {
			logger.Warn("metrics endpoint stopped", "error", err)
		}
	}()

	logger.Info("worker ready, waiting for capture jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.Info("shutdown signal received", "signal", sig)

	if err := queueConsumer.Stop(ctx); err != nil {
		logger.Error("error stopping queue consumer", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("error closing storage", "error", err)
	}
	logger.Info("shutdown complete")
}
