package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imagetext/imagetext/internal/errors"
	"github.com/imagetext/imagetext/internal/workflow"
)

// Event is published once per job when its workflow cycle settles.
// Events are fire-and-forget pub/sub messages; nothing is stored.
type Event struct {
	Event     string                 `json:"event"` // job:succeeded, job:failed, job:idle
	JobID     string                 `json:"jobId"`
	AttemptID string                 `json:"attemptId,omitempty"`
	Phase     workflow.Phase         `json:"phase"`
	ImageRef  string                 `json:"imageRef,omitempty"`
	Text      string                 `json:"text,omitempty"`
	Error     map[string]interface{} `json:"error,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// NewEvent describes a settled state for job.
func NewEvent(jobID string, st workflow.State) Event {
	ev := Event{
		Event:     fmt.Sprintf("job:%s", st.Phase),
		JobID:     jobID,
		AttemptID: st.AttemptID,
		Phase:     st.Phase,
		ImageRef:  st.ImageRef,
		Text:      st.ExtractedText,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	cause := st.Err
	if cause == nil {
		cause = st.Notice
	}
	if cause != nil {
		var xerr *errors.ExtractionError
		if stderrors.As(cause, &xerr) {
			ev.Error = xerr.ToMap()
		} else {
			ev.Error = map[string]interface{}{"message": cause.Error()}
		}
	}
	return ev
}

// Publisher delivers events to listeners.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisPublisher creates a publisher on channel
func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends ev as JSON
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", p.channel, err)
	}
	return nil
}
