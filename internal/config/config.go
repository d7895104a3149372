package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Monitor MonitorConfig `yaml:"monitor"`
	Reclaim ReclaimConfig `yaml:"reclaim"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel   string `yaml:"log_level"`
	LogFile    string `yaml:"log_file"`
	HealthPort int    `yaml:"health_port"`
}

// MonitorConfig represents the monitored metric and trigger settings
type MonitorConfig struct {
	// Sampler selects the tracked metric: "tempdir", "pagecache" or "auto"
	Sampler        string        `yaml:"sampler"`
	SampleInterval time.Duration `yaml:"sample_interval"`

	// StartThreshold and StopThreshold are byte sizes ("2GB", "512MB").
	// The guard keeps StartThreshold strictly above StopThreshold.
	StartThreshold   string   `yaml:"start_threshold"`
	StopThreshold    string   `yaml:"stop_threshold"`
	AutoCleanEnabled bool     `yaml:"auto_clean_enabled"`
	TempDirs         []string `yaml:"temp_dirs"`
}

// ReclaimConfig represents cleanup executor settings
type ReclaimConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	ProtectPatterns []string      `yaml:"protect_patterns"`
	DropCaches      bool          `yaml:"drop_caches"`
}

// MetricsConfig represents Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// ThresholdStep is the fixed distance the guard keeps between the start
// and stop thresholds when an edit would make them collide.
const ThresholdStep uint64 = 64 * 1024 * 1024 // 64 MiB

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:   "INFO",
			LogFile:    "",
			HealthPort: 8081,
		},
		Monitor: MonitorConfig{
			Sampler:          "auto",
			SampleInterval:   time.Second,
			StartThreshold:   "2GB",
			StopThreshold:    "1GB",
			AutoCleanEnabled: true,
			TempDirs:         nil, // sampler falls back to os.TempDir()
		},
		Reclaim: ReclaimConfig{
			Timeout:         30 * time.Second,
			ProtectPatterns: nil,
			DropCaches:      true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// DefaultPath returns the per-user configuration file location
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "cachewarden", "config.yaml")
}

// Load reads configuration from a YAML file. A missing or unparseable
// file yields the default configuration, never an error: startup must
// not be blocked by a corrupt config.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return NewDefault(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyFallbacks()
	cfg.Normalize()
	return cfg, nil
}

// applyFallbacks replaces zero values left by a partial document
func (c *Configuration) applyFallbacks() {
	def := NewDefault()
	if c.Monitor.Sampler == "" {
		c.Monitor.Sampler = def.Monitor.Sampler
	}
	if c.Monitor.SampleInterval <= 0 {
		c.Monitor.SampleInterval = def.Monitor.SampleInterval
	}
	if c.Monitor.StartThreshold == "" {
		c.Monitor.StartThreshold = def.Monitor.StartThreshold
	}
	if c.Monitor.StopThreshold == "" {
		c.Monitor.StopThreshold = def.Monitor.StopThreshold
	}
	if c.Reclaim.Timeout <= 0 {
		c.Reclaim.Timeout = def.Reclaim.Timeout
	}
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = def.Global.LogLevel
	}
	if c.Global.HealthPort == 0 {
		c.Global.HealthPort = def.Global.HealthPort
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = def.Metrics.Port
	}
}

// LoadFromEnv applies CACHEWARDEN_* environment variable overrides
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("CACHEWARDEN_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("CACHEWARDEN_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("CACHEWARDEN_HEALTH_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.HealthPort = port
		}
	}
	if val := os.Getenv("CACHEWARDEN_SAMPLER"); val != "" {
		c.Monitor.Sampler = val
	}
	if val := os.Getenv("CACHEWARDEN_SAMPLE_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Monitor.SampleInterval = duration
		}
	}
	if val := os.Getenv("CACHEWARDEN_START_THRESHOLD"); val != "" {
		c.Monitor.StartThreshold = val
	}
	if val := os.Getenv("CACHEWARDEN_STOP_THRESHOLD"); val != "" {
		c.Monitor.StopThreshold = val
	}
	if val := os.Getenv("CACHEWARDEN_AUTO_CLEAN"); val != "" {
		c.Monitor.AutoCleanEnabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("CACHEWARDEN_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("CACHEWARDEN_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Metrics.Port = port
		}
	}

	c.Normalize()
	return nil
}

// SaveToFile saves the configuration to a YAML file. The guard runs
// before marshaling so the persisted copy always satisfies the
// threshold ordering invariant.
func (c *Configuration) SaveToFile(filename string) error {
	c.Normalize()

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	start, err := ParseSize(c.Monitor.StartThreshold)
	if err != nil {
		return fmt.Errorf("invalid start_threshold: %w", err)
	}
	stop, err := ParseSize(c.Monitor.StopThreshold)
	if err != nil {
		return fmt.Errorf("invalid stop_threshold: %w", err)
	}
	if start <= stop {
		return fmt.Errorf("start_threshold (%s) must be greater than stop_threshold (%s)",
			c.Monitor.StartThreshold, c.Monitor.StopThreshold)
	}

	if c.Monitor.SampleInterval <= 0 {
		return fmt.Errorf("sample_interval must be greater than 0")
	}

	switch c.Monitor.Sampler {
	case "auto", "tempdir", "pagecache":
	default:
		return fmt.Errorf("invalid sampler: %s (must be one of: auto, tempdir, pagecache)", c.Monitor.Sampler)
	}

	if c.Reclaim.Timeout <= 0 {
		return fmt.Errorf("reclaim timeout must be greater than 0")
	}

	if c.Metrics.Enabled && c.Metrics.Port == c.Global.HealthPort {
		return fmt.Errorf("metrics port and health_port cannot be the same")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.EqualFold(c.Global.LogLevel, level) {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// Thresholds returns the parsed start/stop thresholds in bytes. Values
// that fail to parse fall back to the defaults.
func (c *Configuration) Thresholds() (start, stop uint64) {
	def := NewDefault()
	start, err := ParseSize(c.Monitor.StartThreshold)
	if err != nil {
		start, _ = ParseSize(def.Monitor.StartThreshold)
	}
	stop, err = ParseSize(c.Monitor.StopThreshold)
	if err != nil {
		stop, _ = ParseSize(def.Monitor.StopThreshold)
	}
	return start, stop
}
