/**
 * Asynq Consumer for imagetext
 *
 * Consumes ocr:extract tasks and runs each through the workflow runner.
 * The workflow owns exactly one state, so the server runs with concurrency 1
 * and tasks are never retried.
 */

package queue

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/imagetext/imagetext/internal/logging"
	"github.com/imagetext/imagetext/internal/workflow"
)

// Consumer handles task consumption from an asynq queue
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner JobRunner
	config *ConsumerConfig
	log    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL  string
	QueueName string
	Runner    JobRunner
	Logger    *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Runner == nil {
		return nil, fmt.Errorf("Runner is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	// Parse Redis connection options
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				cfg.QueueName: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn("task did not succeed", "type", task.Type(), "error", err)
			}),
			Logger: &asynqLogger{log: logger.With("asynq")},
		},
	)

	consumer := &Consumer{
		server: server,
		mux:    asynq.NewServeMux(),
		runner: cfg.Runner,
		config: cfg,
		log:    logger,
	}

	consumer.mux.HandleFunc(TaskTypeExtract, consumer.handleExtract)

	return consumer, nil
}

// Start starts the queue consumer. It returns once the server is processing.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("starting asynq consumer", "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.log.Info("stopping asynq consumer")

	c.server.Shutdown()
	return nil
}

// handleExtract processes one ocr:extract task
func (c *Consumer) handleExtract(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	job, err := ParseExtractJob(task.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	c.log.Info("processing job", "job", job.JobID, "image", job.ImagePath)

	st, err := c.runner.Run(ctx, job)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	duration := time.Since(startTime)
	if st.Phase != workflow.PhaseSucceeded {
		c.log.Warn("job finished without text", "job", job.JobID, "phase", st.Phase, "duration", duration)
		return fmt.Errorf("job %s ended in %s: %s: %w", job.JobID, st.Phase, st.Message(), asynq.SkipRetry)
	}

	c.log.Info("job completed", "job", job.JobID, "duration", duration, "chars", len(st.ExtractedText))
	return nil
}

// asynqLogger bridges asynq's logger interface to the key-value logger.
type asynqLogger struct {
	log *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
