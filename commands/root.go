package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lordpython/aisoulstudio/config"
)

// NewRootCommand builds the studio CLI root with all subcommands attached.
func NewRootCommand(version string) *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "studio",
		Short: "AI video production studio",
		Long: `Studio turns a text request into a finished video: it plans scenes,
narrates them, generates visuals, mixes audio, and exports the result,
driving the whole pipeline through a tool-calling production agent.

Runs execute locally (produce), behind an HTTP API (serve), or from a
Redis-backed queue (worker).`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newProduceCommand(),
		newServeCommand(),
		newWorkerCommand(),
		newToolsCommand(),
		newSessionsCommand(),
		newConfigCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("studio version %s\n", version)
			},
		},
	)

	return cmd
}

// printBanner writes the startup banner for the long-running modes.
func printBanner(out io.Writer) {
	fmt.Fprintln(out, "╔══════════════════════════════════════╗")
	fmt.Fprintln(out, "║           AI Soul Studio             ║")
	fmt.Fprintln(out, "║     Video Production Pipeline        ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════╝")
}

// configureLogging installs the process-wide text logger on stderr.
func configureLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadConfig loads the effective configuration for a command run. An
// explicit --config file takes the highest file precedence; connection
// URLs from the environment still win.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	loader := config.NewLoader(slog.Default())
	cfg, err := loader.LoadWithFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
