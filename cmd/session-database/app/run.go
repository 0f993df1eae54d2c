package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle"
	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle/store"
	"github.com/Recipe-Web-App/session-database-sub000/pkg/logger"
	"github.com/Recipe-Web-App/session-database-sub000/pkg/telemetry"
)

const httpShutdownTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cleanup daemon",
		Long: `Run the lifecycle cleanup daemon: an immediate cleanup pass followed by
one pass per interval, with Prometheus metrics and a health endpoint.`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindCommandFlags(cmd,
				"cleanup-interval", "max-execution-time", "batch-size", "metrics-address")
		},
		RunE: runDaemon,
	}

	cmd.Flags().Duration("cleanup-interval", lifecycle.DefaultCleanupInterval, "Time between cleanup passes")
	cmd.Flags().Duration("max-execution-time", lifecycle.DefaultMaxExecutionTime, "Per-pass time limit")
	cmd.Flags().Int("batch-size", 0, "Per-class batch size override (0 uses per-class defaults)")
	cmd.Flags().String("metrics-address", ":9090", "Address serving /metrics and /healthz")

	return cmd
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := lifecycleConfig()
	if err != nil {
		return err
	}

	st, err := connectStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	cleaner := lifecycle.NewCleaner(st, cfg)
	metrics := telemetry.NewMetrics()

	srv := startMetricsServer(st, metrics, viper.GetString("metrics-address"))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Metrics server shutdown: %v", err)
		}
	}()

	interval := cfg.CleanupInterval
	logger.Infow("cleanup daemon started", "interval", interval)

	// First pass immediately, then one per tick.
	runPass(ctx, st, cleaner, metrics, cfg)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup daemon stopping")
			return nil
		case <-ticker.C:
			runPass(ctx, st, cleaner, metrics, cfg)
		}
	}
}

// runPass executes one bounded cleanup pass and refreshes the gauges.
func runPass(ctx context.Context, st store.KeyStore, cleaner *lifecycle.Cleaner, metrics *telemetry.Metrics, cfg *lifecycle.Config) {
	passCtx, cancel := context.WithTimeout(ctx, cfg.MaxExecutionTime)
	defer cancel()

	result := cleaner.Run(passCtx, lifecycle.CleanupOptions{
		BatchSize: viper.GetInt("batch-size"),
	})
	metrics.ObserveCleanup(result)
	if failed := result.Failed(); len(failed) > 0 {
		logger.Warnw("cleanup pass had failing classes", "classes", failed)
	}

	stats := lifecycle.NewStatsAggregator(st)
	sched := lifecycle.NewExpiryScheduler(st)
	for _, class := range lifecycle.Classes {
		if snapshot, err := stats.Snapshot(passCtx, class); err == nil {
			metrics.SetActive(class, snapshot.Active)
		}
		if depth, err := sched.Count(passCtx, class); err == nil {
			metrics.SetQueueDepth(class, depth)
		}
	}
}

// startMetricsServer serves /metrics and /healthz in the background.
func startMetricsServer(st store.KeyStore, metrics *telemetry.Metrics, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server error: %v", err)
		}
	}()
	return srv
}
