package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TaskTypeExtract is the asynq task type for one extraction job.
const TaskTypeExtract = "ocr:extract"

// ExtractJob names one image to run through the workflow.
type ExtractJob struct {
	JobID       string    `json:"jobId"`
	ImagePath   string    `json:"imagePath"` // absolute, or relative to the media root
	SubmittedAt time.Time `json:"submittedAt"`
}

// NewExtractJob creates a job with a fresh id.
func NewExtractJob(imagePath string) ExtractJob {
	return ExtractJob{
		JobID:       uuid.NewString(),
		ImagePath:   imagePath,
		SubmittedAt: time.Now().UTC(),
	}
}

// Validate checks required fields
func (j ExtractJob) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if strings.TrimSpace(j.ImagePath) == "" {
		return fmt.Errorf("imagePath is required")
	}
	return nil
}

// ParseExtractJob decodes and validates a job payload.
func ParseExtractJob(data []byte) (ExtractJob, error) {
	var job ExtractJob
	if err := json.Unmarshal(data, &job); err != nil {
		return ExtractJob{}, fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	if err := job.Validate(); err != nil {
		return ExtractJob{}, fmt.Errorf("invalid job: %w", err)
	}
	return job, nil
}

// NewExtractTask builds the asynq task for job. Jobs are attempted exactly once.
func NewExtractTask(job ExtractJob, queueName string) (*asynq.Task, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return asynq.NewTask(TaskTypeExtract, payload,
		asynq.TaskID(job.JobID),
		asynq.Queue(queueName),
		asynq.MaxRetry(0),
	), nil
}
