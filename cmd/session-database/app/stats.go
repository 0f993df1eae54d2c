package app

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-class record statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := connectStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			stats := lifecycle.NewStatsAggregator(st)
			sched := lifecycle.NewExpiryScheduler(st)

			table := tablewriter.NewWriter(os.Stdout)
			table.Options(
				tablewriter.WithHeader([]string{
					"Class", "Created", "Active", "Expired", "Revoked", "Queue", "Cleanup Runs", "Last Cleanup",
				}),
				tablewriter.WithRendition(
					tw.Rendition{
						Borders: tw.Border{
							Left:   tw.State(1),
							Top:    tw.State(1),
							Right:  tw.State(1),
							Bottom: tw.State(1),
						},
					},
				),
				tablewriter.WithAlignment(tw.MakeAlign(8, tw.AlignLeft)),
			)

			for _, class := range lifecycle.Classes {
				snapshot, err := stats.Snapshot(cmd.Context(), class)
				if err != nil {
					return fmt.Errorf("failed to read statistics for %s: %w", class, err)
				}
				depth, err := sched.Count(cmd.Context(), class)
				if err != nil {
					return fmt.Errorf("failed to read queue depth for %s: %w", class, err)
				}

				lastCleanup := "never"
				if !snapshot.LastCleanup.IsZero() {
					lastCleanup = snapshot.LastCleanup.UTC().Format("2006-01-02 15:04:05")
				}
				if err := table.Append([]string{
					class.String(),
					strconv.FormatInt(snapshot.TotalCreated, 10),
					strconv.FormatInt(snapshot.Active, 10),
					strconv.FormatInt(snapshot.Expired, 10),
					strconv.FormatInt(snapshot.Revoked, 10),
					strconv.FormatInt(depth, 10),
					strconv.FormatInt(snapshot.CleanupRuns, 10),
					lastCleanup,
				}); err != nil {
					return fmt.Errorf("failed to append row: %w", err)
				}
			}

			if err := table.Render(); err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}
			return nil
		},
	}
}
