/**
 * imagetext Worker - Main Entry Point
 *
 * Headless runner for the extraction workflow.
 *
 * Architecture:
 * - Asynq consumer (QUEUE_BACKEND=asynq) or plain Redis list consumer
 *   (QUEUE_BACKEND=redis) for ocr:extract jobs
 * - Each job drives one selection cycle: the job's image path answers the
 *   picker, the image is confined to MEDIA_ROOT and sent once to
 *   Google Cloud Vision TEXT_DETECTION
 * - Every settled state is published as a job:<phase> event on
 *   EVENTS_CHANNEL via Redis pub/sub
 *
 * The workflow holds a single state, so jobs are processed one at a time.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/imagetext/imagetext/internal/acquire"
	"github.com/imagetext/imagetext/internal/clients"
	"github.com/imagetext/imagetext/internal/config"
	"github.com/imagetext/imagetext/internal/logging"
	"github.com/imagetext/imagetext/internal/queue"
	"github.com/imagetext/imagetext/internal/workflow"
)

const healthCheckInterval = 30 * time.Second

type consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func main() {
	logger := logging.NewLogger("imagetext-worker")

	if err := config.LoadEnvFile(".env"); err != nil {
		logger.Warn("ignoring .env", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = logging.New(os.Stdout, "imagetext-worker", logging.ParseLevel(cfg.LogLevel))

	if err := run(cfg, logger); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *logging.Logger) error {
	logger.Info("worker starting",
		"backend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"events", cfg.EventsChannel,
		"media_root", cfg.MediaRoot,
		"timeout", cfg.OCRTimeout)

	if cfg.VisionAPIKey == "" {
		logger.Warn("GOOGLE_VISION_API_KEY is not set, extractions will fail")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	handoff := acquire.NewHandoff()

	adapter, err := acquire.NewAdapter(&acquire.AdapterConfig{
		Chooser:    handoff,
		Permission: acquire.AlwaysGranted{},
		MediaRoot:  cfg.MediaRoot,
		MaxBytes:   cfg.MaxImageSize,
		Logger:     logger.With("acquire"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize image adapter: %w", err)
	}

	vision := clients.NewVisionClient(&clients.VisionClientConfig{
		Endpoint: cfg.VisionEndpoint,
		APIKey:   cfg.VisionAPIKey,
		Timeout:  cfg.OCRTimeout,
		Logger:   logger.With("vision"),
	})

	controller, err := workflow.NewController(&workflow.ControllerConfig{
		Picker:   adapter,
		Detector: vision,
		Logger:   logger.With("workflow"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize workflow: %w", err)
	}

	runner, err := queue.NewRunner(&queue.RunnerConfig{
		Controller: controller,
		Handoff:    handoff,
		Publisher:  queue.NewRedisPublisher(rdb, cfg.EventsChannel),
		Timeout:    cfg.OCRTimeout + time.Minute,
		Logger:     logger.With("runner"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize runner: %w", err)
	}

	var qc consumer
	switch cfg.QueueBackend {
	case queue.BackendRedis:
		qc, err = queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			Client:    rdb,
			QueueName: cfg.QueueName,
			Runner:    runner,
			Logger:    logger.With("redis"),
		})
	default:
		qc, err = queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:  cfg.RedisURL,
			QueueName: cfg.QueueName,
			Runner:    runner,
			Logger:    logger.With("consumer"),
		})
	}
	if err != nil {
		return fmt.Errorf("failed to initialize queue consumer: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := qc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	logger.Info("waiting for jobs", "queue", cfg.QueueName)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(healthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := healthCheck(gctx, rdb); err != nil {
					logger.Warn("health check failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.OCRTimeout+10*time.Second)
		defer cancel()
		if err := qc.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop queue consumer: %w", err)
		}
		logger.Info("queue consumer stopped", "phase", controller.State().Phase)
		return nil
	})

	return g.Wait()
}

func healthCheck(ctx context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
