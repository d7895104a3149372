package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cachewarden/cachewarden/internal/daemon"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor daemon",
	Long: `Run starts the control loop: sample the tracked metric about once a
second, reclaim down to the stop threshold whenever the start threshold
is crossed, and expose status and metrics over HTTP.

Send SIGUSR1 to force a cleanup cycle; SIGINT or SIGTERM stops the
daemon cleanly. Threshold edits in the config file apply live.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Close()

		d, err := daemon.New(cfg, path, logger)
		if err != nil {
			return err
		}
		return d.Run(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
