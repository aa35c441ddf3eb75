package main

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/marquee/tierlist/internal/simulation"
	"github.com/marquee/tierlist/pkg/logger"
)

// Default configuration constants.
const (
	defaultUsers        = 8
	defaultItems        = 200
	defaultTimeout      = 10 * time.Second
	defaultIdleTimeout  = 10 * time.Second
	defaultRunTimeout   = 10 * time.Minute
	defaultBreakerTrips = 5
	defaultBreakerPause = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &simulation.Config{}
	var (
		logFile    string
		runTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive the tier-list service with synthetic users",
		Long: `simulate inserts synthetic movies with hidden scores through the HTTP
API, answering every comparison truthfully, then checks that each tier's
stored order matches the hidden order.

Examples:
  simulate                                   # 8 users x 200 movies
  simulate --users 32 --items 500 --workers 16
  simulate --rps 200 --url http://localhost:8080`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := simulation.SetupLogging(logFile); err != nil {
				return err
			}
			if cfg.Verbose {
				_ = logger.SetLevelString("debug")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()

			if _, err := simulation.Run(ctx, cfg); err != nil {
				logger.Get().Error(ctx, "simulation failed", logger.Error(err))
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.IntVar(&cfg.Users, "users", defaultUsers, "Number of simulated users")
	f.IntVar(&cfg.ItemsPerUser, "items", defaultItems, "Movies inserted per user")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "Users simulated concurrently")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.IdleTimeout, "idle", defaultIdleTimeout, "Wait for the reclassify queue to drain")
	f.StringVar(&cfg.OutputFile, "output", "", "Write generated movies as JSON")
	f.Float64Var(&cfg.RPS, "rps", 0, "Request rate cap (0 = unlimited)")
	f.IntVar(&cfg.Burst, "burst", 1, "Requests allowed above --rps in a burst")
	f.Uint32Var(&cfg.BreakerTrips, "breaker-trips", defaultBreakerTrips, "Consecutive failures that stop the run (0 = never)")
	f.DurationVar(&cfg.BreakerPause, "breaker-pause", defaultBreakerPause, "How long the breaker stays open")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Log every insertion")
	f.StringVar(&logFile, "log", "", "Log file (default: simulate_TIMESTAMP.log)")
	f.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "Limit for the whole run")

	return cmd
}
