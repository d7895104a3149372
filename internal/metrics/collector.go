// Package metrics exposes the controller's behavior over Prometheus.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cachewarden/cachewarden/internal/reclaim"
	"github.com/cachewarden/cachewarden/internal/sampler"
	"github.com/cachewarden/cachewarden/pkg/logging"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// DefaultConfig returns the standard metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      8080,
		Path:      "/metrics",
		Namespace: "cachewarden",
	}
}

// Collector implements the controller Observer and serves the
// Prometheus endpoint. A disabled collector is a cheap no-op, so
// callers never need to branch on configuration.
type Collector struct {
	config   *Config
	registry *prometheus.Registry
	logger   *logging.Logger

	metricBytes    prometheus.Gauge
	capacityBytes  prometheus.Gauge
	startThreshold prometheus.Gauge
	stopThreshold  prometheus.Gauge
	cleaning       prometheus.Gauge

	cyclesTotal     *prometheus.CounterVec
	reclaimedBytes  prometheus.Counter
	sampleErrors    prometheus.Counter
	reclaimDuration prometheus.Histogram

	server *http.Server
}

// NewCollector creates a metrics collector
func NewCollector(config *Config, logger *logging.Logger) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}

	c := &Collector{
		config: config,
		logger: logger.WithComponent("metrics"),
	}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

func (c *Collector) initMetrics() {
	ns := c.config.Namespace
	if ns == "" {
		ns = "cachewarden"
	}

	c.metricBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "metric_bytes",
		Help:      "Current value of the tracked metric in bytes",
	})
	c.capacityBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "capacity_bytes",
		Help:      "Upper bound of the tracked metric in bytes",
	})
	c.startThreshold = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "start_threshold_bytes",
		Help:      "Threshold at which cleanup begins",
	})
	c.stopThreshold = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "stop_threshold_bytes",
		Help:      "Level cleanup drives the metric down to",
	})
	c.cleaning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "cleaning",
		Help:      "1 while a cleanup cycle is in flight",
	})
	c.cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "cycles_total",
		Help:      "Completed cleanup cycles",
	}, []string{"trigger", "status"})
	c.reclaimedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "reclaimed_bytes_total",
		Help:      "Total bytes reclaimed across all cycles",
	})
	c.sampleErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "sample_errors_total",
		Help:      "Metric readings that failed",
	})
	c.reclaimDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "reclaim_duration_seconds",
		Help:      "Wall time of reclaim attempts",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
}

func (c *Collector) registerMetrics() error {
	collectors := []prometheus.Collector{
		c.metricBytes, c.capacityBytes, c.startThreshold, c.stopThreshold,
		c.cleaning, c.cyclesTotal, c.reclaimedBytes, c.sampleErrors,
		c.reclaimDuration,
	}
	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Start serves the metrics endpoint in the background.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	path := c.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("Metrics server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop shuts the metrics server down.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the scrape handler, for embedding in another mux.
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetThresholds publishes the active thresholds.
func (c *Collector) SetThresholds(start, stop uint64) {
	if !c.config.Enabled {
		return
	}
	c.startThreshold.Set(float64(start))
	c.stopThreshold.Set(float64(stop))
}

// SetCleaning publishes whether a cycle is in flight.
func (c *Collector) SetCleaning(cleaning bool) {
	if !c.config.Enabled {
		return
	}
	if cleaning {
		c.cleaning.Set(1)
	} else {
		c.cleaning.Set(0)
	}
}

// ObserveSample records a successful metric reading.
func (c *Collector) ObserveSample(s sampler.Sample) {
	if !c.config.Enabled {
		return
	}
	c.metricBytes.Set(float64(s.Used))
	c.capacityBytes.Set(float64(s.Capacity))
}

// ObserveSampleError counts a failed metric reading.
func (c *Collector) ObserveSampleError() {
	if !c.config.Enabled {
		return
	}
	c.sampleErrors.Inc()
}

// ObserveCycle records a completed cleanup cycle.
func (c *Collector) ObserveCycle(trigger string, outcome reclaim.Outcome) {
	if !c.config.Enabled {
		return
	}

	status := "success"
	if outcome.Degraded {
		status = "degraded"
	}
	c.cyclesTotal.With(prometheus.Labels{
		"trigger": trigger,
		"status":  status,
	}).Inc()
	c.reclaimedBytes.Add(float64(outcome.Reclaimed))
	c.reclaimDuration.Observe(outcome.Duration.Seconds())
}
