// Package app provides the entry point for the session-database
// command-line application.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle"
	"github.com/Recipe-Web-App/session-database-sub000/pkg/lifecycle/store"
	"github.com/Recipe-Web-App/session-database-sub000/pkg/logger"
)

const connectMaxTries = 10

var rootCmd = &cobra.Command{
	Use:               "session-database",
	DisableAutoGenTag: true,
	Short:             "Session and token lifecycle manager backed by Redis",
	Long: `session-database manages the lifecycle of sessions, tokens and cache
entries stored in Redis: creation with TTLs, per-owner indexes, a scheduled
expiry queue, and a cleanup engine that reaps expired records in bounded
batches.

It can run as a long-lived daemon (run), as a one-shot cron job (cleanup,
reconcile), or as an inspection tool (stats, health).`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the session-database CLI.
func NewRootCmd() *cobra.Command {
	pf := rootCmd.PersistentFlags()
	pf.Bool("debug", false, "Enable debug mode")
	pf.String("redis-address", "localhost:6379", "Redis address (host:port)")
	pf.Int("redis-db", 0, "Redis database number")
	pf.String("redis-username", "", "Redis ACL username")
	pf.String("key-prefix", "", "Prefix applied to every key")
	pf.String("sentinel-master", "", "Sentinel master name (enables Sentinel mode)")
	pf.StringSlice("sentinel-address", nil, "Sentinel address, repeatable")

	for _, name := range []string{
		"debug", "redis-address", "redis-db", "redis-username",
		"key-prefix", "sentinel-master", "sentinel-address",
	} {
		if err := viper.BindPFlag(name, pf.Lookup(name)); err != nil {
			logger.Errorf("Error binding %s flag: %v", name, err)
		}
	}

	// Secrets come from the environment only: SESSIONDB_REDIS_PASSWORD.
	viper.SetEnvPrefix("SESSIONDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newHealthCmd())

	rootCmd.SilenceUsage = true

	return rootCmd
}

// bindCommandFlags points viper keys at the invoked command's own flag set.
// run and cleanup declare some of the same keys (batch-size,
// max-execution-time); binding at execution time instead of construction
// time keeps the invoked command's flags authoritative.
func bindCommandFlags(cmd *cobra.Command, names ...string) error {
	for _, name := range names {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind %s flag: %w", name, err)
		}
	}
	return nil
}

// storeConfig assembles the Redis configuration from bound flags and env.
func storeConfig() store.RedisConfig {
	cfg := store.RedisConfig{
		Addr:      viper.GetString("redis-address"),
		DB:        viper.GetInt("redis-db"),
		KeyPrefix: viper.GetString("key-prefix"),
	}
	if master := viper.GetString("sentinel-master"); master != "" {
		cfg.Addr = ""
		cfg.Sentinel = &store.SentinelConfig{
			MasterName:    master,
			SentinelAddrs: viper.GetStringSlice("sentinel-address"),
		}
	}
	if user := viper.GetString("redis-username"); user != "" {
		cfg.ACLUser = &store.ACLUserConfig{
			Username: user,
			Password: viper.GetString("redis-password"),
		}
	}
	return cfg
}

// connectStore dials Redis with exponential backoff. Startup ordering in
// container environments means Redis may not be reachable on the first try.
func connectStore(ctx context.Context) (*store.RedisStore, error) {
	cfg := storeConfig()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxInterval = 15 * time.Second

	return backoff.Retry(ctx,
		func() (*store.RedisStore, error) {
			return store.NewRedisStore(ctx, cfg)
		},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(connectMaxTries),
		backoff.WithNotify(func(err error, duration time.Duration) {
			logger.Warnw("store connection failed, retrying",
				"error", err, "retry_in", duration)
		}),
	)
}

// lifecycleConfig builds the lifecycle configuration from bound flags.
func lifecycleConfig() (*lifecycle.Config, error) {
	cfg := lifecycle.DefaultConfig()
	if interval := viper.GetDuration("cleanup-interval"); interval > 0 {
		cfg.CleanupInterval = interval
	}
	if maxExec := viper.GetDuration("max-execution-time"); maxExec > 0 {
		cfg.MaxExecutionTime = maxExec
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
