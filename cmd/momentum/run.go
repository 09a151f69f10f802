package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"actcollective.org/momentum/internal/pipeline"
	"actcollective.org/momentum/internal/source"
)

var (
	runSprintLabel string
	runWindowDays  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a metrics run and publish a snapshot",
	Long: `Fetches work-item events from the configured tracker, computes flow
metrics over the trailing window, and publishes a snapshot keyed by
(sprint, date). An empty --sprint covers all open work.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := setup()
		if err != nil {
			return err
		}

		if !cfg.GitLab.Enabled() {
			return fmt.Errorf("GITLAB_PROJECT_ID not configured")
		}

		src, err := source.NewGitLabSource(cfg.GitLab.BaseURL, cfg.GitLab.Token, cfg.GitLab.ProjectID, slog.Default())
		if err != nil {
			return fmt.Errorf("creating gitlab source: %w", err)
		}

		snapshots, closeStore, err := openSnapshotStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening snapshot store: %w", err)
		}
		defer closeStore()

		runner := pipeline.NewRunner(src, snapshots, cfg.Thresholds, slog.Default())

		summary, err := runner.Run(ctx, pipeline.Params{
			SprintLabel: runSprintLabel,
			WindowDays:  runWindowDays,
		})
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		sprint := summary.SprintLabel
		if sprint == "" {
			sprint = "(all open work)"
		}
		fmt.Printf("run %d complete for %s\n", summary.RunID, sprint)
		fmt.Printf("  events processed:  %d\n", summary.EventCount)
		fmt.Printf("  malformed skipped: %d\n", summary.MalformedSkipped)
		fmt.Printf("  alerts raised:     %d\n", summary.AlertCount)
		fmt.Printf("  insights:          %d\n", summary.InsightCount)
		fmt.Printf("  duration:          %s\n", summary.Duration)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runSprintLabel, "sprint", "", "Sprint label to scope the run (empty = all open work)")
	runCmd.Flags().IntVar(&runWindowDays, "window-days", 14, "Trailing window length in days")
	rootCmd.AddCommand(runCmd)
}
