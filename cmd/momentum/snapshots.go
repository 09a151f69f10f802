package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	snapshotsSprintLabel string
	snapshotsLimit       int32
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List published snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := setup()
		if err != nil {
			return err
		}

		store, closeStore, err := openSnapshotStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening snapshot store: %w", err)
		}
		defer closeStore()

		snapshots, err := store.List(ctx, snapshotsSprintLabel, snapshotsLimit)
		if err != nil {
			return fmt.Errorf("listing snapshots: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snapshots)
		}

		if len(snapshots) == 0 {
			fmt.Println("no snapshots found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tSPRINT\tCYCLE(h)\tLEAD(h)\tTHROUGHPUT/wk\tWIP\tFLOW EFF\tALERTS")
		for _, s := range snapshots {
			sprint := s.SprintLabel
			if sprint == "" {
				sprint = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%d\t%s\t%d\n",
				s.AsOfDate.Format("2006-01-02"),
				sprint,
				formatHours(s.CycleTimeHours),
				formatHours(s.LeadTimeHours),
				s.ThroughputPerWeek,
				s.WIPCount,
				formatPct(s.FlowEfficiencyPct),
				len(s.Alerts))
		}
		return w.Flush()
	},
}

func formatHours(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func formatPct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *v)
}

func init() {
	snapshotsCmd.Flags().StringVar(&snapshotsSprintLabel, "sprint", "", "Sprint label to filter by (empty = all open work series)")
	snapshotsCmd.Flags().Int32Var(&snapshotsLimit, "limit", 30, "Maximum number of snapshots to list")
	rootCmd.AddCommand(snapshotsCmd)
}
