package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cachewarden/cachewarden/internal/config"
	"github.com/cachewarden/cachewarden/pkg/logging"
)

var (
	version = "dev"

	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "cachewarden",
	Short: "Hysteresis-based cache monitor and cleaner",
	Long: `cachewarden watches a noisy cache metric and reclaims space when it
crosses a configurable threshold, with hysteresis and a cooldown so the
cleaner never thrashes on a metric hovering near the line.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (DEBUG, INFO, WARN, ERROR)")
}

// loadConfig reads the config file, applies env and flag overrides and
// validates the result.
func loadConfig() (*config.Configuration, string, error) {
	path := cfgPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		// Load fell back to defaults; surface the problem but keep going.
		fmt.Printf("Warning: %v\n", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, "", err
	}
	if logLevel != "" {
		cfg.Global.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg *config.Configuration) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Global.LogLevel)
	if err != nil {
		return nil, err
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.File = cfg.Global.LogFile
	return logging.New(logCfg)
}
