package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lordpython/aisoulstudio/agent"
	"github.com/lordpython/aisoulstudio/config"
	"github.com/lordpython/aisoulstudio/output"
	"github.com/lordpython/aisoulstudio/progress"
	"github.com/lordpython/aisoulstudio/queue"
	"github.com/lordpython/aisoulstudio/supervisor"
)

func newProduceCommand() *cobra.Command {
	var (
		sessionID   string
		audioPath   string
		outputPath  string
		supervised  bool
		musicAlways bool
		dryRun      bool
		enqueueRun  bool
		priority    string
	)

	cmd := &cobra.Command{
		Use:   "produce <prompt>",
		Short: "Run a video production from a text prompt",
		Long: `Produce runs the full pipeline for one prompt: plan scenes, narrate
them, generate visuals, mix audio, and export the video. Progress is
printed as the agent works.

With --queue the production is enqueued on Redis for a worker process
instead of running here.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return fmt.Errorf("prompt must not be empty")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if supervised {
				cfg.Orchestrator.Mode = config.ModeSupervised
			}
			if musicAlways {
				cfg.Orchestrator.Music = "always"
			}

			if enqueueRun {
				return enqueueProduction(cmd, cfg, prompt, sessionID, priority, supervised)
			}

			app, err := NewApp(cmd.Context(), cfg, slog.Default(), AppOptions{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			runOpts := agent.RunOptions{
				Prompt:    prompt,
				SessionID: sessionID,
				Progress:  consoleProgress(out),
			}
			if audioPath != "" {
				data, err := os.ReadFile(audioPath)
				if err != nil {
					return fmt.Errorf("read audio file: %w", err)
				}
				runOpts.AttachedAudio = data
				runOpts.AudioMimeType = audioMimeType(audioPath)
				runOpts.AudioFileName = filepath.Base(audioPath)
			}

			result, runErr := app.RunProduction(cmd.Context(), runOpts)
			if result == nil {
				return runErr
			}

			printResult(out, result)
			if err := writeExportedVideo(app, cfg, result.SessionID, outputPath, out); err != nil {
				return err
			}
			if err := writeProductionReport(app, cfg, result.SessionID, out); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to create or resume")
	cmd.Flags().StringVar(&audioPath, "audio", "", "Audio file to attach for transcription")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the exported video to this path")
	cmd.Flags().BoolVar(&supervised, "supervised", false, "Run the staged supervisor instead of the single agent loop")
	cmd.Flags().BoolVar(&musicAlways, "music", false, "Always include a music track")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Replace media backends with in-memory providers")
	cmd.Flags().BoolVar(&enqueueRun, "queue", false, "Enqueue on Redis for a worker instead of running locally")
	cmd.Flags().StringVar(&priority, "priority", "normal", "Queue priority (critical, high, normal, low)")

	return cmd
}

func enqueueProduction(cmd *cobra.Command, cfg *config.Config, prompt, sessionID, priority string, supervised bool) error {
	if cfg.Redis.URL == "" {
		return fmt.Errorf("queue mode needs Redis: set redis.url in the config or REDIS_URL")
	}

	producer, err := queue.NewProducer(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer producer.Close()

	taskID, err := producer.Enqueue(cmd.Context(), queue.ProduceTask{
		SessionID:  sessionID,
		Prompt:     prompt,
		Priority:   priority,
		Supervised: supervised,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Enqueued production task %s\n", taskID)
	return nil
}

// consoleProgress renders progress events as terminal lines.
func consoleProgress(out io.Writer) progress.Callback {
	return func(ev progress.Event) {
		switch ev.Type {
		case progress.EventStarting:
			fmt.Fprintf(out, "Starting production %s\n", ev.SessionID)
		case progress.EventIntentDetected:
			fmt.Fprintf(out, "Intent: %s\n", ev.Message)
		case progress.EventStage:
			fmt.Fprintf(out, "\n%s\n", ev.Message)
		case progress.EventToolCall:
			fmt.Fprintf(out, "  %s...\n", ev.Tool)
		case progress.EventToolResult:
			status := "✓"
			if !ev.Success {
				status = "✗"
			}
			if ev.Message != "" {
				fmt.Fprintf(out, "  %s %s: %s\n", status, ev.Tool, ev.Message)
			} else {
				fmt.Fprintf(out, "  %s %s\n", status, ev.Tool)
			}
		case progress.EventRetry:
			fmt.Fprintf(out, "  retrying %s (attempt %d, %dms)\n", ev.Tool, ev.Attempt, ev.DelayMs)
		case progress.EventFallback:
			fmt.Fprintf(out, "  fallback for %s: %s\n", ev.Tool, ev.FallbackAction)
		case progress.EventSceneProgress:
			fmt.Fprintf(out, "  scene %d/%d (%d%%)\n", ev.CurrentScene, ev.TotalScenes, ev.Percentage)
		case progress.EventWarning:
			fmt.Fprintf(out, "  WARNING: %s\n", ev.Message)
		case progress.EventLimitReached:
			fmt.Fprintf(out, "Iteration limit reached: %s\n", ev.Message)
		case progress.EventSummary:
			if s := ev.AssetSummary; s != nil {
				fmt.Fprintf(out, "Assets: %d scenes, %d narrations, %d visuals\n",
					s.SceneCount, s.NarrationCount, s.VisualCount)
			}
		case progress.EventError:
			fmt.Fprintf(out, "ERROR: %s\n", ev.Message)
		case progress.EventComplete:
			fmt.Fprintln(out, "Production complete")
		}
	}
}

func printResult(out io.Writer, result *ProductionResult) {
	fmt.Fprintf(out, "\nSession: %s\n", result.SessionID)
	fmt.Fprintf(out, "Status:  %s\n", result.Status)

	if len(result.Stages) > 0 {
		fmt.Fprintln(out, "Stages:")
		for _, stage := range result.Stages {
			status := "✗"
			switch stage.Status {
			case supervisor.StageComplete:
				status = "✓"
			case supervisor.StageSkipped:
				status = "-"
			}
			fmt.Fprintf(out, "  %s %s (%d iterations", status, stage.Name, stage.Iterations)
			if stage.Restarts > 0 {
				fmt.Fprintf(out, ", %d restarts", stage.Restarts)
			}
			fmt.Fprintln(out, ")")
		}
	}

	if result.Report != nil {
		fmt.Fprintln(out, result.Report.BuildSummary(""))
	}
	if result.FinalMessage != "" {
		fmt.Fprintln(out, result.FinalMessage)
	}
}

// writeExportedVideo saves the rendered video, defaulting to the configured
// output directory when --output is not given.
func writeExportedVideo(app *App, cfg *config.Config, sessionID, outputPath string, out io.Writer) error {
	state, err := app.Sessions.Get(sessionID)
	if err != nil || len(state.ExportedVideo) == 0 {
		return nil
	}

	dest := outputPath
	if dest == "" {
		format := "mp4"
		if state.ExportResult != nil && state.ExportResult.Format != "" {
			format = state.ExportResult.Format
		}
		dest = filepath.Join(cfg.Output.Dir, sessionID+"."+format)
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(dest, state.ExportedVideo, 0o644); err != nil {
		return fmt.Errorf("write exported video: %w", err)
	}

	fmt.Fprintf(out, "Exported video written to %s\n", dest)
	return nil
}

// writeProductionReport renders the session state as a markdown report
// next to the exported video.
func writeProductionReport(app *App, cfg *config.Config, sessionID string, out io.Writer) error {
	state, err := app.Sessions.Get(sessionID)
	if err != nil {
		return nil
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	dest := filepath.Join(cfg.Output.Dir, sessionID+".md")
	report := output.NewRenderer().Render(state)
	if err := os.WriteFile(dest, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write production report: %w", err)
	}

	fmt.Fprintf(out, "Production report written to %s\n", dest)
	return nil
}

func audioMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	}
	return "application/octet-stream"
}
