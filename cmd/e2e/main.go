// Package main provides the pipeline smoke-test runner.
//
// Scenarios run in process against deterministic in-memory providers and
// a scripted chat client, so no external services are required. They
// exercise the same wiring the studio binary uses: the tool registry,
// the recovery harness, and both run modes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		outputJSON    bool
		globalTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "e2e [scenario]",
		Short: "Run studio pipeline smoke tests",
		Long: `Run end-to-end smoke tests for the production pipeline.

Available scenarios:
  pipeline    - Full eight-step production through the tool-calling agent
  supervised  - Staged supervisor run with per-stage tool surfaces
  retry       - Transient visual failures retried to a clean pass
  fallback    - Permanent visual failure degraded to placeholder slates
  all         - Run all scenarios (default)

Scenarios run in process against deterministic providers; no services
are required.

Examples:
  e2e                # Run all scenarios
  e2e supervised     # Run one scenario
  e2e --json         # Output results as JSON
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioName := "all"
			if len(args) > 0 {
				scenarioName = args[0]
			}
			return run(scenarioName, outputJSON, globalTimeout)
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
	cmd.Flags().DurationVar(&globalTimeout, "global-timeout", 2*time.Minute, "Global timeout for all scenarios")

	cmd.AddCommand(listCmd())

	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available scenarios:")
			fmt.Println()
			for _, sc := range allScenarios() {
				fmt.Printf("  %-11s %s\n", sc.name, sc.description)
			}
			fmt.Println()
			fmt.Println("Use 'e2e all' to run all scenarios.")
		},
	}
}

func run(scenarioName string, outputJSON bool, globalTimeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), globalTimeout)
	defer cancel()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scenarioList := allScenarios()
	scenarioMap := make(map[string]scenario)
	for _, sc := range scenarioList {
		scenarioMap[sc.name] = sc
	}

	var toRun []scenario
	if scenarioName == "all" {
		toRun = scenarioList
	} else {
		sc, ok := scenarioMap[scenarioName]
		if !ok {
			return fmt.Errorf("unknown scenario: %s", scenarioName)
		}
		toRun = []scenario{sc}
	}

	results := make([]*result, 0, len(toRun))
	allPassed := true

	for _, sc := range toRun {
		if ctx.Err() != nil {
			if !outputJSON {
				fmt.Println("\nTest run interrupted!")
			}
			break
		}

		r := runScenario(ctx, sc, outputJSON)
		results = append(results, r)
		if !r.Success {
			allPassed = false
		}
	}

	if outputJSON {
		outputJSONResults(results)
	} else {
		outputTextSummary(results)
	}

	if !allPassed {
		return fmt.Errorf("some scenarios failed")
	}
	return nil
}

func runScenario(ctx context.Context, sc scenario, quietMode bool) *result {
	if !quietMode {
		fmt.Printf("\n═══════════════════════════════════════════════════════════════\n")
		fmt.Printf("Running: %s\n", sc.name)
		fmt.Printf("Description: %s\n", sc.description)
		fmt.Printf("═══════════════════════════════════════════════════════════════\n\n")
		fmt.Print("Execute... ")
	}

	r := sc.run(ctx)

	if !quietMode {
		if r.Success {
			fmt.Println("PASSED")
		} else {
			fmt.Printf("FAILED: %s\n", r.Error)
		}

		if len(r.Checks) > 0 {
			fmt.Println("\nChecks:")
			for _, c := range r.Checks {
				status := "✓"
				if !c.Success {
					status = "✗"
				}
				fmt.Printf("  %s %s\n", status, c.Name)
				if c.Error != "" {
					fmt.Printf("      Error: %s\n", c.Error)
				}
			}
		}
	}

	return r
}

func outputJSONResults(results []*result) {
	output := struct {
		Timestamp time.Time `json:"timestamp"`
		Results   []*result `json:"results"`
		Summary   struct {
			Total  int `json:"total"`
			Passed int `json:"passed"`
			Failed int `json:"failed"`
		} `json:"summary"`
	}{
		Timestamp: time.Now(),
		Results:   results,
	}

	output.Summary.Total = len(results)
	for _, r := range results {
		if r.Success {
			output.Summary.Passed++
		} else {
			output.Summary.Failed++
		}
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling results: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func outputTextSummary(results []*result) {
	fmt.Println("\n═══════════════════════════════════════════════════════════════")
	fmt.Println("                          SUMMARY")
	fmt.Println("═══════════════════════════════════════════════════════════════")

	passed := 0
	failed := 0
	for _, r := range results {
		status := "✓ PASSED"
		if !r.Success {
			status = "✗ FAILED"
			failed++
		} else {
			passed++
		}
		fmt.Printf("  %s  %s (%dms)\n", status, r.ScenarioName, r.DurationMs)
		if !r.Success && r.Error != "" {
			errMsg := r.Error
			if len(errMsg) > 80 {
				errMsg = errMsg[:77] + "..."
			}
			fmt.Printf("           %s\n", errMsg)
		}
	}

	fmt.Println(strings.Repeat("─", 65))
	fmt.Printf("  Total: %d | Passed: %d | Failed: %d\n", len(results), passed, failed)
}
