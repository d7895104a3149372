// Package daemon wires configuration, sampler, executor, controller
// and the HTTP surfaces into the long-running cachewarden process.
package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cachewarden/cachewarden/internal/config"
	"github.com/cachewarden/cachewarden/internal/controller"
	"github.com/cachewarden/cachewarden/internal/health"
	"github.com/cachewarden/cachewarden/internal/metrics"
	"github.com/cachewarden/cachewarden/internal/reclaim"
	"github.com/cachewarden/cachewarden/internal/sampler"
	"github.com/cachewarden/cachewarden/pkg/logging"
	"github.com/cachewarden/cachewarden/pkg/status"
)

// Daemon is the assembled cachewarden process.
type Daemon struct {
	cfg      *config.Configuration
	cfgPath  string
	logger   *logging.Logger
	ctrl     *controller.Controller
	recorder *status.Recorder
	metrics  *metrics.Collector
	health   *health.Server
	watcher  *config.Watcher
	interval time.Duration
}

// New builds a daemon from the loaded configuration. cfgPath may be
// empty, which disables live reloads.
func New(cfg *config.Configuration, cfgPath string, logger *logging.Logger) (*Daemon, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	log := logger.WithComponent("daemon")

	smp := sampler.Select(cfg.Monitor.Sampler, cfg.Monitor.TempDirs)
	strategies := reclaim.BuildStrategies(cfg, smp.Name(), logger)
	executor := reclaim.NewExecutor(strategies, cfg.Reclaim.Timeout, logger)

	recorder := status.NewRecorder(0)
	sink := status.MultiSink{status.NewLogSink(logger), recorder}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Port:      cfg.Metrics.Port,
		Path:      "/metrics",
		Namespace: "cachewarden",
	}, logger)
	if err != nil {
		return nil, err
	}

	start, stop := cfg.Thresholds()
	ctrl := controller.New(smp, executor, sink, logger, start, stop,
		controller.WithObserver(collector))
	ctrl.SetEnabled(cfg.Monitor.AutoCleanEnabled)
	collector.SetThresholds(start, stop)

	log.Info("Daemon assembled", map[string]interface{}{
		"sampler":    smp.Name(),
		"strategies": executor.Strategies(),
		"start":      start,
		"stop":       stop,
		"auto_clean": cfg.Monitor.AutoCleanEnabled,
	})

	return &Daemon{
		cfg:      cfg,
		cfgPath:  cfgPath,
		logger:   log,
		ctrl:     ctrl,
		recorder: recorder,
		metrics:  collector,
		health:   health.NewServer(ctrl, recorder, logger),
		interval: cfg.Monitor.SampleInterval,
	}, nil
}

// Controller exposes the controller, mainly for the status CLI when it
// runs in-process.
func (d *Daemon) Controller() *controller.Controller { return d.ctrl }

// Run drives the control loop until the context is canceled or a
// termination signal arrives. SIGUSR1 forces an immediate cleanup
// cycle.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.metrics.Start(ctx); err != nil {
		return err
	}
	if err := d.health.Start(d.cfg.Global.HealthPort); err != nil {
		return err
	}

	if d.cfgPath != "" {
		watcher, err := config.NewWatcher(d.cfgPath, d.logger, d.applyConfig)
		if err != nil {
			d.logger.Warn("Config watching unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		} else if err := watcher.Start(); err != nil {
			d.logger.Warn("Config watching failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			d.watcher = watcher
		}
	}

	sigTerm := make(chan os.Signal, 1)
	signal.Notify(sigTerm, syscall.SIGINT, syscall.SIGTERM)
	sigTrigger := make(chan os.Signal, 1)
	signal.Notify(sigTrigger, syscall.SIGUSR1)
	defer signal.Stop(sigTerm)
	defer signal.Stop(sigTrigger)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("Control loop running", map[string]interface{}{
		"interval": d.interval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			return d.shutdown()
		case sig := <-sigTerm:
			d.logger.Info("Shutting down on signal", map[string]interface{}{
				"signal": sig.String(),
			})
			return d.shutdown()
		case <-sigTrigger:
			d.logger.Info("Manual cleanup requested via SIGUSR1")
			d.ctrl.TriggerNow(ctx)
			d.metrics.SetCleaning(d.ctrl.Cleaning())
		case <-ticker.C:
			d.ctrl.Tick(ctx)
			d.metrics.SetCleaning(d.ctrl.Cleaning())
		}
	}
}

// applyConfig lands a reloaded configuration on the running daemon.
// Only live-tunable settings move: thresholds, auto-clean and the
// enable flag. Sampler or port changes need a restart.
func (d *Daemon) applyConfig(cfg *config.Configuration) {
	if err := cfg.Validate(); err != nil {
		d.logger.Warn("Ignoring invalid config reload", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	start, stop := cfg.Thresholds()
	d.ctrl.SetThresholds(start, stop)
	d.ctrl.SetEnabled(cfg.Monitor.AutoCleanEnabled)
	d.metrics.SetThresholds(start, stop)
	d.cfg = cfg

	d.logger.Info("Configuration reloaded", map[string]interface{}{
		"start":      start,
		"stop":       stop,
		"auto_clean": cfg.Monitor.AutoCleanEnabled,
	})
}

func (d *Daemon) shutdown() error {
	if d.watcher != nil {
		d.watcher.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.health.Stop(ctx); err != nil {
		d.logger.Warn("Health server shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := d.metrics.Stop(ctx); err != nil {
		d.logger.Warn("Metrics server shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	d.logger.Info("Daemon stopped")
	return nil
}
