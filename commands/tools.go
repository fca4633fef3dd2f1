package commands

import (
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lordpython/aisoulstudio/assets"
	"github.com/lordpython/aisoulstudio/assets/assetstest"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
	"github.com/lordpython/aisoulstudio/tools/content"
	"github.com/lordpython/aisoulstudio/tools/enhance"
	"github.com/lordpython/aisoulstudio/tools/exporter"
	"github.com/lordpython/aisoulstudio/tools/importer"
	"github.com/lordpython/aisoulstudio/tools/media"
	"github.com/lordpython/aisoulstudio/tools/utility"
)

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the production tool catalog",
		Long: `Tools prints every tool the production agent can call, grouped by
pipeline stage, with the ordering constraints between them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := catalogRegistry()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			groups := []tools.Group{
				tools.GroupImport,
				tools.GroupContent,
				tools.GroupMedia,
				tools.GroupEnhancement,
				tools.GroupExport,
				tools.GroupUtility,
			}
			for _, group := range groups {
				regs := reg.ByGroup(group)
				if len(regs) == 0 {
					continue
				}
				fmt.Fprintf(w, "%s\n", group)
				for _, r := range regs {
					desc := r.Definition.Description
					if len(r.Dependencies) > 0 {
						desc = fmt.Sprintf("%s (requires %s)", desc, strings.Join(r.Dependencies, ", "))
					}
					fmt.Fprintf(w, "  %s\t%s\n", r.Definition.Name, desc)
				}
				fmt.Fprintln(w)
			}
			return w.Flush()
		},
	}
}

// catalogRegistry builds a registry over in-memory providers. The backends
// are never invoked; only the tool definitions are read.
func catalogRegistry() (*tools.Registry, error) {
	sessions := session.NewStore()
	logger := slog.Default()
	img := &assetstest.FakeImageProvider{}
	uploader := assets.NewCloudUploader(&assetstest.FakeBucket{}, logger)
	articles := assets.NewArticleImporter(assets.WithArticleLogger(logger))

	reg := tools.NewRegistry()
	executors := []tools.Executor{
		importer.NewExecutor(sessions, nil, articles, &assetstest.FakeTranscriber{}),
		content.NewExecutor(sessions, &assetstest.FakePlanner{}, &assetstest.FakeScreenwriter{}, &assetstest.FakeSynthesizer{}),
		media.NewExecutor(sessions, img, &assetstest.FakeVideoGenerator{}, assets.NewCatalogSfxLibrary(), &assetstest.FakeMusicGenerator{}),
		enhance.NewExecutor(sessions, img, img, &assetstest.FakeMixer{}),
		exporter.NewExecutor(sessions, &assetstest.FakeExporter{}, uploader),
		utility.NewExecutor(sessions),
	}
	for _, exec := range executors {
		if err := reg.RegisterExecutor(exec); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
