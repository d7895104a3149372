// Package controller implements the hysteresis control loop that
// decides when to reclaim the tracked resource.
//
// The loop is tick-driven: the daemon calls Tick about once a second,
// and every tick samples the metric, applies the dual-threshold
// hysteresis rule with a cooldown, and either stays idle or launches a
// bounded reclaim attempt. Reclaim runs on its own goroutine so a slow
// cleanup can never stall sampling; the Cleaning phase covers the
// whole in-flight period.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cachewarden/cachewarden/internal/reclaim"
	"github.com/cachewarden/cachewarden/internal/sampler"
	"github.com/cachewarden/cachewarden/pkg/logging"
	"github.com/cachewarden/cachewarden/pkg/status"
)

// Phase is the controller's position in the hysteresis cycle.
type Phase int

const (
	// PhaseIdle means no cleanup is running or pending.
	PhaseIdle Phase = iota

	// PhaseCleaning means a reclaim attempt is in flight.
	PhaseCleaning
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCleaning:
		return "cleaning"
	default:
		return "unknown"
	}
}

// DefaultCooldown is the minimum spacing between cleanup cycles.
const DefaultCooldown = 30 * time.Second

// Executor performs one bounded reclaim attempt.
type Executor interface {
	Reclaim(ctx context.Context, target uint64) (reclaim.Outcome, error)
}

// Observer receives controller lifecycle events, e.g. for metrics.
// All methods are called from the control loop and must not block.
type Observer interface {
	ObserveSample(s sampler.Sample)
	ObserveSampleError()
	ObserveCycle(trigger string, outcome reclaim.Outcome)
}

// Snapshot is a point-in-time view of the controller state.
type Snapshot struct {
	Phase          string           `json:"phase"`
	Enabled        bool             `json:"enabled"`
	Metric         uint64           `json:"metric"`
	Capacity       uint64           `json:"capacity"`
	StartThreshold uint64           `json:"start_threshold"`
	StopThreshold  uint64           `json:"stop_threshold"`
	LastAction     time.Time        `json:"last_action,omitempty"`
	LastOutcome    *reclaim.Outcome `json:"last_outcome,omitempty"`
	SampleErrors   uint64           `json:"sample_errors"`
}

type cycleResult struct {
	trigger string
	target  uint64
	outcome reclaim.Outcome
	err     error
}

// Controller drives the sample/decide/reclaim cycle. All state lives
// behind its own mutex; there are no package-level globals.
type Controller struct {
	mu sync.Mutex

	sampler  sampler.Sampler
	executor Executor
	sink     status.Sink
	observer Observer
	logger   *logging.Logger

	nowFn    func() time.Time
	cooldown time.Duration

	enabled        bool
	startThreshold uint64
	stopThreshold  uint64

	phase        Phase
	lastSample   sampler.Sample
	haveSample   bool
	lastAction   time.Time
	lastOutcome  *reclaim.Outcome
	sampleErrors uint64

	results   chan cycleResult
	cycleDone chan struct{}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithCooldown overrides the 30-second cycle spacing.
func WithCooldown(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.cooldown = d
		}
	}
}

// WithClock injects a time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.nowFn = now
		}
	}
}

// WithObserver attaches a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// New creates a controller. start must exceed stop; callers get that
// guarantee from the configuration guard.
func New(s sampler.Sampler, e Executor, sink status.Sink, logger *logging.Logger, start, stop uint64, opts ...Option) *Controller {
	if sink == nil {
		sink = status.SinkFunc(func(string, bool) {})
	}
	if logger == nil {
		logger = logging.Discard()
	}

	c := &Controller{
		sampler:        s,
		executor:       e,
		sink:           sink,
		logger:         logger.WithComponent("controller"),
		nowFn:          time.Now,
		cooldown:       DefaultCooldown,
		enabled:        true,
		startThreshold: start,
		stopThreshold:  stop,
		phase:          PhaseIdle,
		results:        make(chan cycleResult, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetEnabled turns automatic cleanup on or off. Manual triggers keep
// working either way.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// SetThresholds replaces both thresholds atomically, e.g. after a
// config reload. Values arrive pre-validated by the config guard.
func (c *Controller) SetThresholds(start, stop uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startThreshold = start
	c.stopThreshold = stop
}

// Snapshot returns the current state for status and health output.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Phase:          c.phase.String(),
		Enabled:        c.enabled,
		Metric:         c.lastSample.Used,
		Capacity:       c.lastSample.Capacity,
		StartThreshold: c.startThreshold,
		StopThreshold:  c.stopThreshold,
		LastAction:     c.lastAction,
		SampleErrors:   c.sampleErrors,
	}
	if c.lastOutcome != nil {
		o := *c.lastOutcome
		snap.LastOutcome = &o
	}
	return snap
}

// Tick runs one control-loop iteration. It is total: sampler and
// executor failures degrade the tick, they never propagate out of it.
// The passed context must outlive any reclaim cycle the tick starts,
// so callers hand in their run context, not a per-tick one.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseCleaning {
		select {
		case res := <-c.results:
			c.finishCycle(res)
		default:
			// Still in flight; sampling waits for the cycle to land.
			return
		}
	}

	s, err := c.sampler.Sample(ctx)
	if err != nil {
		// Metric unchanged; never a trigger, never a crash.
		c.sampleErrors++
		if c.observer != nil {
			c.observer.ObserveSampleError()
		}
		c.logger.Warn("Sample failed, treating metric as unchanged", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	c.lastSample = s
	c.haveSample = true
	if c.observer != nil {
		c.observer.ObserveSample(s)
	}

	if !c.enabled {
		return
	}
	if s.Used < c.startThreshold {
		return
	}
	if !c.lastAction.IsZero() && c.nowFn().Sub(c.lastAction) < c.cooldown {
		return
	}

	c.startCycle(ctx, "threshold", s.Used-c.stopThreshold)
}

// TriggerNow forces a cleanup cycle, bypassing thresholds and
// cooldown. It is a no-op while a cycle is already in flight. The
// returned bool says whether a cycle started.
func (c *Controller) TriggerNow(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseCleaning {
		return false
	}

	s, err := c.sampler.Sample(ctx)
	if err != nil {
		if !c.haveSample {
			c.logger.Warn("Manual trigger has no metric reading to work from")
			return false
		}
		s = c.lastSample
	} else {
		c.lastSample = s
		c.haveSample = true
	}

	var target uint64
	if s.Used > c.stopThreshold {
		target = s.Used - c.stopThreshold
	}
	if target == 0 {
		c.sink.Report("Nothing to reclaim, metric already below stop threshold", false)
		return false
	}

	c.startCycle(ctx, "manual", target)
	return true
}

// startCycle launches the reclaim goroutine. Caller holds the mutex.
func (c *Controller) startCycle(ctx context.Context, trigger string, target uint64) {
	c.phase = PhaseCleaning
	done := make(chan struct{})
	c.cycleDone = done

	c.logger.Info("Starting cleanup cycle", map[string]interface{}{
		"trigger": trigger,
		"target":  target,
		"metric":  c.lastSample.Used,
	})
	c.sink.Report(fmt.Sprintf("Cleaning: reclaiming %d bytes", target), true)

	go func() {
		defer close(done)
		outcome, err := c.executor.Reclaim(ctx, target)
		// Buffered; at most one cycle is ever in flight.
		c.results <- cycleResult{trigger: trigger, target: target, outcome: outcome, err: err}
	}()
}

// finishCycle lands a completed reclaim attempt. Caller holds the
// mutex. Failures count as completed cycles: the cooldown applies so a
// broken executor cannot be hammered every second.
func (c *Controller) finishCycle(res cycleResult) {
	outcome := res.outcome
	if res.err != nil {
		outcome.AttemptedTarget = res.target
		outcome.Reclaimed = 0
		outcome.Degraded = true
		c.logger.Error("Cleanup cycle failed", map[string]interface{}{
			"trigger": res.trigger,
			"error":   res.err.Error(),
		})
	}

	c.phase = PhaseIdle
	c.lastAction = c.nowFn()
	c.lastOutcome = &outcome

	if c.observer != nil {
		c.observer.ObserveCycle(res.trigger, outcome)
	}

	msg := fmt.Sprintf("Reclaimed %d of %d bytes", outcome.Reclaimed, outcome.AttemptedTarget)
	if outcome.Degraded {
		msg += " (degraded)"
	}
	c.sink.Report(msg, false)
}

// Cleaning reports whether a cycle is in flight.
func (c *Controller) Cleaning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhaseCleaning
}

// waitCycle blocks until the in-flight reclaim goroutine has posted
// its result. Test helper; the daemon never needs it.
func (c *Controller) waitCycle() {
	c.mu.Lock()
	done := c.cycleDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}
