package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/imagetext/imagetext/internal/acquire"
	"github.com/imagetext/imagetext/internal/logging"
	"github.com/imagetext/imagetext/internal/workflow"
)

// JobRunner runs one job to a settled workflow state.
type JobRunner interface {
	Run(ctx context.Context, job ExtractJob) (workflow.State, error)
}

// Runner feeds queued jobs through the single workflow controller. The job's
// image path answers the controller's picker request through a Handoff.
type Runner struct {
	controller *workflow.Controller
	handoff    *acquire.Handoff
	publisher  Publisher
	timeout    time.Duration
	log        *logging.Logger
}

// RunnerConfig holds runner dependencies
type RunnerConfig struct {
	Controller *workflow.Controller
	Handoff    *acquire.Handoff
	Publisher  Publisher // optional
	Timeout    time.Duration
	Logger     *logging.Logger
}

// NewRunner creates a job runner
func NewRunner(cfg *RunnerConfig) (*Runner, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("Controller is required")
	}
	if cfg.Handoff == nil {
		return nil, fmt.Errorf("Handoff is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		controller: cfg.Controller,
		handoff:    cfg.Handoff,
		publisher:  cfg.Publisher,
		timeout:    timeout,
		log:        logger,
	}, nil
}

// Run triggers one selection cycle for job, publishes the settled state and
// clears the controller for the next job.
func (r *Runner) Run(ctx context.Context, job ExtractJob) (workflow.State, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	answerCtx, stopAnswer := context.WithCancel(ctx)
	go r.handoff.Answer(answerCtx, job.ImagePath)

	st, err := r.controller.TriggerSelection(ctx)
	stopAnswer()
	if err != nil {
		return st, fmt.Errorf("job %s: %w", job.JobID, err)
	}

	r.log.Info("job settled", "job", job.JobID, "attempt", st.AttemptID, "phase", st.Phase)

	if r.publisher != nil {
		if perr := r.publisher.Publish(ctx, NewEvent(job.JobID, st)); perr != nil {
			r.log.Warn("failed to publish job event", "job", job.JobID, "error", perr)
		}
	}

	r.controller.Clear()
	return st, nil
}
