package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cachewarden/cachewarden/internal/config"
	"github.com/cachewarden/cachewarden/internal/reclaim"
	"github.com/cachewarden/cachewarden/internal/sampler"
)

var cleanTarget string

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Run one cleanup cycle and exit",
	Long: `Clean samples the tracked metric once and reclaims down to the stop
threshold, regardless of whether the start threshold was crossed. Use
--target to reclaim a fixed amount instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Close()

		ctx := context.Background()
		smp := sampler.Select(cfg.Monitor.Sampler, cfg.Monitor.TempDirs)
		executor := reclaim.NewExecutor(
			reclaim.BuildStrategies(cfg, smp.Name(), logger),
			cfg.Reclaim.Timeout, logger)

		var target uint64
		if cleanTarget != "" {
			target, err = config.ParseSize(cleanTarget)
			if err != nil {
				return fmt.Errorf("invalid --target: %w", err)
			}
		} else {
			s, err := smp.Sample(ctx)
			if err != nil {
				return fmt.Errorf("cannot read metric: %w", err)
			}
			_, stop := cfg.Thresholds()
			if s.Used <= stop {
				fmt.Printf("Nothing to do: %s used, stop threshold %s\n",
					config.FormatSize(s.Used), config.FormatSize(stop))
				return nil
			}
			target = s.Used - stop
		}

		outcome, err := executor.Reclaim(ctx, target)
		if err != nil {
			return err
		}

		fmt.Printf("Reclaimed %s of %s via %s in %s\n",
			config.FormatSize(outcome.Reclaimed),
			config.FormatSize(outcome.AttemptedTarget),
			outcome.Strategy, outcome.Duration.Round(time.Millisecond))
		if outcome.Degraded {
			fmt.Println("Note: the attempt was degraded (insufficient privilege or timeout)")
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().StringVar(&cleanTarget, "target", "", "reclaim a fixed amount (e.g. 512MB) instead of down to the stop threshold")
	rootCmd.AddCommand(cleanCmd)
}
