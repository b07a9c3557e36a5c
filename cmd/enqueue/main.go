package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/imagetext/imagetext/internal/config"
	"github.com/imagetext/imagetext/internal/queue"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	backend := flag.String("backend", cfg.QueueBackend, "queue backend: asynq or redis")
	queueName := flag.String("queue", cfg.QueueName, "queue name")
	redisURL := flag.String("redis", cfg.RedisURL, "Redis URL")
	timeout := flag.Duration("timeout", 10*time.Second, "enqueue timeout")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: enqueue [flags] <image path>...\n\npaths are resolved against MEDIA_ROOT by the worker\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	submitter, err := queue.NewSubmitter(&queue.SubmitterConfig{
		Backend:   *backend,
		RedisURL:  *redisURL,
		QueueName: *queueName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	failed := 0
	for _, path := range flag.Args() {
		job := queue.NewExtractJob(path)
		if err := submitter.Submit(ctx, job); err != nil {
			fmt.Fprintf(os.Stderr, "error: %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("%s\t%s\n", job.JobID, path)
	}

	if err := submitter.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
