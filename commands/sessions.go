package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lordpython/aisoulstudio/agent"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/storage"
)

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect archived production sessions",
		Long: `Sessions reads the Postgres archive that produce, serve, and worker
write finished sessions to.`,
	}
	cmd.AddCommand(
		newSessionsListCommand(),
		newSessionsShowCommand(),
		newSessionsDeleteCommand(),
	)
	return cmd
}

// openArchive connects to the configured session archive.
func openArchive(cmd *cobra.Command) (*storage.Archive, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.URL == "" {
		return nil, fmt.Errorf("sessions needs the archive: set postgres.url in the config or DATABASE_URL")
	}
	archive, err := storage.NewArchive(cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("connect session archive: %w", err)
	}
	return archive, nil
}

func newSessionsListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			records, err := archive.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived sessions.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tSTATUS\tSCENES\tUPDATED\tTOPIC")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					r.SessionID, r.Status, r.SceneCount,
					r.UpdatedAt.Format(time.RFC3339), r.Topic)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")
	return cmd
}

func newSessionsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session's production state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			state, err := archive.Load(cmd.Context(), args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("session %s not found", args[0])
			}
			if err != nil {
				return err
			}

			printState(cmd.OutOrStdout(), state)
			return nil
		},
	}
}

func newSessionsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session from the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			if err := archive.Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("session %s not found", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
			return nil
		},
	}
}

func printState(out io.Writer, state *production.State) {
	fmt.Fprintf(out, "Session: %s\n", state.SessionID)
	if state.ContentPlan != nil {
		fmt.Fprintf(out, "Topic:   %s\n", state.ContentPlan.Topic)
	}

	s := agent.SummarizeAssets(state)
	fmt.Fprintf(out, "Assets:  %d scenes, %d narrations, %d visuals\n",
		s.SceneCount, s.NarrationCount, s.VisualCount)

	var extras []string
	if s.HasMusic {
		extras = append(extras, "music")
	}
	if s.HasMixedAudio {
		extras = append(extras, "mixed audio")
	}
	if s.HasSubtitles {
		extras = append(extras, "subtitles")
	}
	for _, extra := range extras {
		fmt.Fprintf(out, "         with %s\n", extra)
	}

	if state.ExportResult != nil {
		fmt.Fprintf(out, "Export:  %s %s %s (%.1fs, %.1f MB)\n",
			state.ExportResult.Format, state.ExportResult.AspectRatio,
			state.ExportResult.Quality, state.ExportResult.Duration,
			state.ExportResult.FileSizeMB)
	}

	status := "in progress"
	if state.IsComplete {
		status = "complete"
	}
	fmt.Fprintf(out, "Status:  %s\n", status)

	if len(state.Errors) > 0 {
		fmt.Fprintln(out, "Errors:")
		for _, e := range state.Errors {
			fmt.Fprintf(out, "  %s: %s\n", e.Tool, e.Message)
		}
	}
	fmt.Fprintf(out, "Updated: %s\n", state.UpdatedAt.Format(time.RFC3339))
}
