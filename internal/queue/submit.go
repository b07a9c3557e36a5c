package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Queue backends understood by NewSubmitter and the worker.
const (
	BackendAsynq = "asynq"
	BackendRedis = "redis"
)

// Submitter hands extract jobs to a worker queue.
type Submitter interface {
	Submit(ctx context.Context, job ExtractJob) error
	Close() error
}

// SubmitterConfig selects the backend a Submitter writes to
type SubmitterConfig struct {
	Backend   string
	RedisURL  string
	QueueName string
}

// NewSubmitter creates the producer side for cfg.Backend.
func NewSubmitter(cfg *SubmitterConfig) (Submitter, error) {
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	switch cfg.Backend {
	case BackendAsynq:
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		return &AsynqSubmitter{client: asynq.NewClient(opt), queueName: cfg.QueueName}, nil

	case BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		return NewRedisSubmitter(redis.NewClient(opts), cfg.QueueName), nil

	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// AsynqSubmitter enqueues ocr:extract tasks for a Consumer.
type AsynqSubmitter struct {
	client    *asynq.Client
	queueName string
}

func (s *AsynqSubmitter) Submit(ctx context.Context, job ExtractJob) error {
	task, err := NewExtractTask(job, s.queueName)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *AsynqSubmitter) Close() error {
	return s.client.Close()
}

// RedisSubmitter pushes jobs for a RedisConsumer. It owns client.
type RedisSubmitter struct {
	client    redis.UniversalClient
	queueName string
}

// NewRedisSubmitter creates a list-protocol producer on queueName
func NewRedisSubmitter(client redis.UniversalClient, queueName string) *RedisSubmitter {
	return &RedisSubmitter{client: client, queueName: queueName}
}

func (s *RedisSubmitter) Submit(ctx context.Context, job ExtractJob) error {
	return PushRedisJob(ctx, s.client, s.queueName, job)
}

func (s *RedisSubmitter) Close() error {
	return s.client.Close()
}
