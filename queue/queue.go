// Package queue moves production requests through Redis with asynq: the
// serve mode enqueues, worker processes dequeue, run the pipeline, and
// archive the result.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lordpython/aisoulstudio/production"
)

// TaskProduce is the task type a production request travels under.
const TaskProduce = "studio:produce"

// Queue names in priority order. Critical drains six tasks for every one
// low-priority task.
const (
	QueueCritical = "studio:critical"
	QueueDefault  = "studio:default"
	QueueLow      = "studio:low"
)

// ProduceTask is the payload of one queued production request. Attached
// audio never rides the queue; callers stash it in a session first and
// reference the session id.
type ProduceTask struct {
	TaskID     string    `json:"taskId"`
	SessionID  string    `json:"sessionId,omitempty"`
	Prompt     string    `json:"prompt"`
	Priority   string    `json:"priority,omitempty"`
	Supervised bool      `json:"supervised,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// QueueFor maps a request priority to its queue name.
func QueueFor(priority string) string {
	switch priority {
	case "critical", "high":
		return QueueCritical
	case "low":
		return QueueLow
	default:
		return QueueDefault
	}
}

// Producer enqueues production tasks.
type Producer struct {
	client *asynq.Client
}

// NewProducer connects an enqueuer to Redis.
func NewProducer(redisURL string) (*Producer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Producer{client: asynq.NewClient(opt)}, nil
}

// Enqueue submits a production task and returns its task id. Tasks are
// retried three times and kept for a day after completion for inspection.
func (p *Producer) Enqueue(ctx context.Context, task ProduceTask) (string, error) {
	if task.TaskID == "" {
		task.TaskID = production.NewProductionID()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}

	info, err := p.client.EnqueueContext(ctx,
		asynq.NewTask(TaskProduce, payload),
		asynq.TaskID(task.TaskID),
		asynq.Queue(QueueFor(task.Priority)),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue production: %w", err)
	}
	return info.ID, nil
}

// Close releases the Redis connection.
func (p *Producer) Close() error {
	return p.client.Close()
}

// QueueDepths reports pending+active counts per queue, for the worker
// stats command and the serve health endpoint.
func QueueDepths(redisURL string) (map[string]int, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	depths := make(map[string]int)
	for _, name := range []string{QueueCritical, QueueDefault, QueueLow} {
		info, err := inspector.GetQueueInfo(name)
		if err != nil {
			// A queue that has never seen a task does not exist yet.
			depths[name] = 0
			continue
		}
		depths[name] = info.Pending + info.Active + info.Scheduled + info.Retry
	}
	return depths, nil
}
