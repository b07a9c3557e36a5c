/**
 * Direct Redis Queue Consumer for imagetext
 *
 * Plain Redis LIST intake for producers that do not speak asynq:
 * job ids are LPUSHed onto <queue>, job bodies live in the <queue>:data hash
 * until the job is picked up. A single worker goroutine pops and runs jobs,
 * and each body is deleted once read so no job data outlives its run.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imagetext/imagetext/internal/logging"
)

var errNoJobs = stderrors.New("no jobs available")

// RedisConsumer handles job consumption from a Redis list
type RedisConsumer struct {
	client redis.UniversalClient
	runner JobRunner
	config *RedisConsumerConfig
	log    *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	Client       redis.UniversalClient
	QueueName    string
	Runner       JobRunner
	PollInterval time.Duration // BRPOP block time, default 5s
	Logger       *logging.Logger
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("Client is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Runner == nil {
		return nil, fmt.Errorf("Runner is required")
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client: cfg.Client,
		runner: cfg.Runner,
		config: cfg,
		log:    logger,
		ctx:    consumerCtx,
		cancel: cancel,
	}, nil
}

// Start checks the connection and begins processing jobs from the queue
func (c *RedisConsumer) Start(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.log.Info("starting redis consumer", "queue", c.config.QueueName)

	c.wg.Add(1)
	go c.worker()
	return nil
}

// Stop waits for the job in flight, if any, and stops the consumer
func (c *RedisConsumer) Stop(ctx context.Context) error {
	c.log.Info("stopping redis consumer")
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("redis consumer did not stop: %w", ctx.Err())
	}
}

// PushRedisJob writes job for a RedisConsumer listening on queueName.
func PushRedisJob(ctx context.Context, client redis.UniversalClient, queueName string, job ExtractJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, dataKey(queueName), job.JobID, data)
		pipe.LPush(ctx, queueName, job.JobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push job %s: %w", job.JobID, err)
	}
	return nil
}

func dataKey(queueName string) string {
	return fmt.Sprintf("%s:data", queueName)
}

// worker processes jobs until the consumer is stopped
func (c *RedisConsumer) worker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if err := c.processNextJob(); err != nil {
			if stderrors.Is(err, errNoJobs) || c.ctx.Err() != nil {
				continue
			}
			c.log.Error("worker error", "error", err)
			select {
			case <-c.ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// processNextJob fetches and runs the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, c.config.PollInterval, c.config.QueueName).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}
	jobID := result[1]

	raw, err := c.client.HGet(c.ctx, dataKey(c.config.QueueName), jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", jobID, err)
	}
	if err := c.client.HDel(c.ctx, dataKey(c.config.QueueName), jobID).Err(); err != nil {
		c.log.Warn("failed to delete job data", "job", jobID, "error", err)
	}

	job, err := ParseExtractJob([]byte(raw))
	if err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}

	// Jobs run on a fresh context so Stop lets the job in flight settle.
	st, err := c.runner.Run(context.Background(), job)
	if err != nil {
		return err
	}

	c.log.Info("job finished", "job", job.JobID, "phase", st.Phase)
	return nil
}
