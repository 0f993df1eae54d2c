package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check store connectivity and expiry queue depth",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := connectStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			start := time.Now()
			if err := st.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("store ping failed: %w", err)
			}
			cmd.Printf("store: ok (%s)\n", time.Since(start).Round(time.Millisecond))

			sched := lifecycle.NewExpiryScheduler(st)
			for _, class := range lifecycle.Classes {
				depth, err := sched.Count(cmd.Context(), class)
				if err != nil {
					return fmt.Errorf("failed to read queue depth for %s: %w", class, err)
				}
				cmd.Printf("%s queue: %d\n", class, depth)
			}
			return nil
		},
	}
}
