package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle"
)

func newReconcileCmd() *cobra.Command {
	var (
		className string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-schedule records missing from the expiry queue",
		Long: `Scan record keys and re-schedule any TTL-bound record that has no expiry
queue entry, the leftover of a crash between the record write and the
schedule write. Undecodable records found along the way are removed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			classes := lifecycle.Classes
			if className != "" {
				class, err := lifecycle.ParseClass(className)
				if err != nil {
					return err
				}
				classes = []lifecycle.Class{class}
			}

			st, err := connectStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			cleaner := lifecycle.NewCleaner(st, lifecycle.DefaultConfig())
			total := 0
			for _, class := range classes {
				n, err := cleaner.Reconcile(cmd.Context(), class, limit)
				if err != nil {
					return fmt.Errorf("reconcile %s: %w", class, err)
				}
				if n > 0 {
					cmd.Printf("%s: re-scheduled %d record(s)\n", class, n)
				}
				total += n
			}
			cmd.Printf("re-scheduled %d record(s) total\n", total)
			return nil
		},
	}

	cmd.Flags().StringVar(&className, "class", "", "Limit the scan to one record class")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after re-scheduling this many records per class (0 = no limit)")

	return cmd
}
