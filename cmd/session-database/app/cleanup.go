package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle"
)

func newCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run a single cleanup pass",
		Long: `Run one bounded cleanup pass across all record classes and print the
per-class result as JSON. Intended for cron-style scheduling; a pass that is
cut short or re-run is harmless because every step is idempotent.`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindCommandFlags(cmd, "batch-size", "max-execution-time")
		},
		RunE: runCleanup,
	}

	cmd.Flags().Int("batch-size", 0, "Per-class batch size override (0 uses per-class defaults)")
	cmd.Flags().Duration("max-execution-time", lifecycle.DefaultMaxExecutionTime, "Abort the pass after this long")

	return cmd
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := lifecycleConfig()
	if err != nil {
		return err
	}

	st, err := connectStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.MaxExecutionTime)
	defer cancel()

	result := lifecycle.NewCleaner(st, cfg).Run(ctx, lifecycle.CleanupOptions{
		BatchSize: viper.GetInt("batch-size"),
	})

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(out))

	if failed := result.Failed(); len(failed) > 0 {
		return fmt.Errorf("cleanup failed for classes: %v", failed)
	}
	return nil
}
