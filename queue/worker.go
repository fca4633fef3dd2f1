package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lordpython/aisoulstudio/recovery"
)

// Handler runs one dequeued production. The command layer wires it to the
// orchestrator or the supervisor plus the archive.
type Handler func(ctx context.Context, task ProduceTask) error

// WorkerConfig configures a queue worker.
type WorkerConfig struct {
	RedisURL    string
	Concurrency int
	Handler     Handler
	Logger      *slog.Logger
}

// Worker consumes production tasks from the priority queues.
type Worker struct {
	server  *asynq.Server
	handler Handler
	logger  *slog.Logger
}

// NewWorker builds a worker over the three priority queues with
// exponential retry backoff.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("worker requires a handler")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
			QueueLow:      1,
		},
		RetryDelayFunc: retryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("Task failed", "type", task.Type(), "error", err)
		}),
	})

	return &Worker{server: server, handler: cfg.Handler, logger: logger}, nil
}

// retryDelay backs off 1m, 2m, 4m between attempts.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return time.Duration(1<<uint(n)) * time.Minute
}

// Start blocks serving tasks until Stop.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProduce, w.handleProduce)

	w.logger.Info("Production worker starting")
	if err := w.server.Run(mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	return nil
}

// Stop drains in-flight tasks and shuts the worker down.
func (w *Worker) Stop() {
	w.logger.Info("Production worker shutting down")
	w.server.Shutdown()
}

// handleProduce decodes and runs one task. Failures that classification
// rules permanent are not requeued; transient ones ride asynq's retry.
func (w *Worker) handleProduce(ctx context.Context, task *asynq.Task) error {
	var job ProduceTask
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Processing production task",
		"task_id", job.TaskID,
		"session_id", job.SessionID,
		"supervised", job.Supervised)

	if err := w.handler(ctx, job); err != nil {
		if !recovery.Classify(err).Retryable() {
			return fmt.Errorf("production %s failed permanently: %v: %w", job.TaskID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("production %s failed: %w", job.TaskID, err)
	}

	w.logger.Info("Production task completed", "task_id", job.TaskID)
	return nil
}
