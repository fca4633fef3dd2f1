package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lordpython/aisoulstudio/agent"
	"github.com/lordpython/aisoulstudio/queue"
)

func newWorkerCommand() *cobra.Command {
	var (
		concurrency int
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a queue worker that processes productions",
		Long: `Worker consumes production tasks from the Redis queue and runs the
full pipeline for each. Transient failures are retried with backoff;
permanently failed tasks are dropped after logging.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Redis.URL == "" {
				return fmt.Errorf("worker needs Redis for the production queue: set redis.url or REDIS_URL")
			}
			printBanner(cmd.OutOrStdout())

			logger := slog.Default()
			app, err := NewApp(cmd.Context(), cfg, logger, AppOptions{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer app.Close()

			worker, err := queue.NewWorker(queue.WorkerConfig{
				RedisURL:    cfg.Redis.URL,
				Concurrency: concurrency,
				Handler:     produceHandler(app, logger),
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			go func() {
				<-cmd.Context().Done()
				logger.Info("Shutting down worker")
				worker.Stop()
			}()

			logger.Info("Worker ready", slog.Int("concurrency", concurrency))
			return worker.Start()
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Number of productions processed in parallel")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Replace media backends with in-memory providers")

	return cmd
}

// produceHandler runs one queued production. The task's supervised flag
// forces the staged supervisor; otherwise the configured mode applies.
func produceHandler(app *App, logger *slog.Logger) queue.Handler {
	return func(ctx context.Context, task queue.ProduceTask) error {
		logger.Info("Processing production task",
			slog.String("task_id", task.TaskID),
			slog.String("session_id", task.SessionID))

		opts := agent.RunOptions{
			Prompt:    task.Prompt,
			SessionID: task.SessionID,
		}

		var (
			result *ProductionResult
			err    error
		)
		if task.Supervised {
			result, err = app.RunProductionSupervised(ctx, opts)
		} else {
			result, err = app.RunProduction(ctx, opts)
		}
		if err != nil {
			return err
		}

		logger.Info("Production task finished",
			slog.String("task_id", task.TaskID),
			slog.String("session_id", result.SessionID),
			slog.String("status", result.Status))
		return nil
	}
}
