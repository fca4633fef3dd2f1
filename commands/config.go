package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lordpython/aisoulstudio/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage studio configuration",
	}
	cmd.AddCommand(newConfigInitCommand(), newConfigShowCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(slog.Default())
			if err := loader.EnsureUserConfig(); err != nil {
				return fmt.Errorf("create user config: %w", err)
			}
			if home, err := os.UserHomeDir(); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "User config at %s\n",
					filepath.Join(home, config.UserConfigDir, config.UserConfigFile))
			}
			return nil
		},
	}
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Show prints the configuration after merging defaults, the user config,
the project config, an explicit --config file, and environment
overrides. API keys are redacted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(redactSecrets(cfg))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

// redactSecrets returns a copy of the config with API keys masked.
func redactSecrets(cfg *config.Config) *config.Config {
	masked := *cfg
	mask := func(e config.ServiceEndpoint) config.ServiceEndpoint {
		if e.APIKey != "" {
			e.APIKey = "[redacted]"
		}
		return e
	}
	masked.Assets.Images = mask(cfg.Assets.Images)
	masked.Assets.Video = mask(cfg.Assets.Video)
	masked.Assets.Speech = mask(cfg.Assets.Speech)
	masked.Assets.Music = mask(cfg.Assets.Music)
	masked.Assets.Mixer = mask(cfg.Assets.Mixer)
	masked.Assets.Exporter = mask(cfg.Assets.Exporter)
	masked.Assets.Transcriber = mask(cfg.Assets.Transcriber)
	masked.Assets.Bucket = mask(cfg.Assets.Bucket)
	if masked.Assets.YouTubeAPIKey != "" {
		masked.Assets.YouTubeAPIKey = "[redacted]"
	}
	return &masked
}
