package controller

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/cachewarden/cachewarden/internal/reclaim"
	"github.com/cachewarden/cachewarden/internal/sampler"
	"github.com/cachewarden/cachewarden/pkg/status"
)

const (
	mib        = uint64(1024 * 1024)
	startAt    = 2048 * mib
	stopAt     = 1024 * mib
	testWindow = 30 * time.Second
)

// seqSampler replays a fixed series of readings, holding the last one.
type seqSampler struct {
	mu      sync.Mutex
	used    []uint64
	errs    []error
	idx     int
	samples int
}

func (s *seqSampler) Name() string { return "fake" }

func (s *seqSampler) Sample(ctx context.Context) (sampler.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples++

	i := s.idx
	if i >= len(s.used) {
		i = len(s.used) - 1
	} else {
		s.idx++
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return sampler.Sample{}, s.errs[i]
	}
	return sampler.Sample{Used: s.used[i], Capacity: 8192 * mib}, nil
}

func (s *seqSampler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// fakeExecutor reclaims exactly what it is asked for, unless told to
// fail or to block.
type fakeExecutor struct {
	mu      sync.Mutex
	targets []uint64
	err     error
	block   chan struct{}
}

func (e *fakeExecutor) Reclaim(ctx context.Context, target uint64) (reclaim.Outcome, error) {
	e.mu.Lock()
	e.targets = append(e.targets, target)
	block := e.block
	err := e.err
	e.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return reclaim.Outcome{AttemptedTarget: target, Degraded: true}, err
	}
	return reclaim.Outcome{AttemptedTarget: target, Reclaimed: target}, nil
}

func (e *fakeExecutor) calls() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]uint64, len(e.targets))
	copy(out, e.targets)
	return out
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestController(s *seqSampler, e *fakeExecutor, clock *fakeClock, sink status.Sink) *Controller {
	return New(s, e, sink, nil, startAt, stopAt,
		WithCooldown(testWindow), WithClock(clock.Now))
}

// tickCycle runs one tick and, if it started a cycle, waits for the
// reclaim goroutine to post its result.
func tickCycle(c *Controller, ctx context.Context) {
	c.Tick(ctx)
	c.waitCycle()
}

func TestThresholdTriggersOneCycle(t *testing.T) {
	s := &seqSampler{used: []uint64{2100 * mib, 2100 * mib, 500 * mib}}
	e := &fakeExecutor{}
	clock := newFakeClock()
	rec := status.NewRecorder(0)
	c := newTestController(s, e, clock, rec)
	ctx := context.Background()

	tickCycle(c, ctx)
	clock.Advance(time.Second)
	tickCycle(c, ctx)
	clock.Advance(time.Second)
	tickCycle(c, ctx)

	calls := e.calls()
	if len(calls) != 1 {
		t.Fatalf("Expected exactly one cleanup cycle, got %d", len(calls))
	}
	if want := 2100*mib - stopAt; calls[0] != want {
		t.Errorf("Expected target %d, got %d", want, calls[0])
	}

	var completed int
	for _, u := range rec.History() {
		if !u.InProgress {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("Expected one completed-cycle report, got %d", completed)
	}
}

func TestMetricAtThresholdTriggers(t *testing.T) {
	s := &seqSampler{used: []uint64{startAt}}
	e := &fakeExecutor{}
	c := newTestController(s, e, newFakeClock(), nil)

	tickCycle(c, context.Background())
	if len(e.calls()) != 1 {
		t.Error("Metric exactly at the start threshold must trigger")
	}
}

func TestCooldownExpiryAllowsNextCycle(t *testing.T) {
	s := &seqSampler{used: []uint64{2100 * mib}}
	e := &fakeExecutor{}
	clock := newFakeClock()
	c := newTestController(s, e, clock, nil)
	ctx := context.Background()

	tickCycle(c, ctx)

	// Inside the window nothing fires, however high the metric stays.
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		tickCycle(c, ctx)
	}
	if len(e.calls()) != 1 {
		t.Fatalf("Cooldown should block re-triggering, got %d cycles", len(e.calls()))
	}

	clock.Advance(testWindow)
	tickCycle(c, ctx)
	if len(e.calls()) != 2 {
		t.Errorf("Expected a second cycle after the cooldown, got %d", len(e.calls()))
	}
}

func TestExecutorFailureStillStartsCooldown(t *testing.T) {
	s := &seqSampler{used: []uint64{2100 * mib}}
	e := &fakeExecutor{err: stderrors.New("no privilege")}
	clock := newFakeClock()
	c := newTestController(s, e, clock, nil)
	ctx := context.Background()

	tickCycle(c, ctx)
	clock.Advance(time.Second)
	tickCycle(c, ctx)

	if len(e.calls()) != 1 {
		t.Fatalf("A failed cycle must still consume the cooldown, got %d cycles", len(e.calls()))
	}

	snap := c.Snapshot()
	if snap.LastOutcome == nil {
		t.Fatal("Expected an outcome recorded for the failed cycle")
	}
	if !snap.LastOutcome.Degraded || snap.LastOutcome.Reclaimed != 0 {
		t.Errorf("Failed cycle should land as degraded zero-reclaim, got %+v", snap.LastOutcome)
	}
}

func TestSamplerErrorNeverTriggersOrPanics(t *testing.T) {
	s := &seqSampler{
		used: []uint64{0, 2100 * mib},
		errs: []error{stderrors.New("proc unreadable"), nil},
	}
	e := &fakeExecutor{}
	c := newTestController(s, e, newFakeClock(), nil)
	ctx := context.Background()

	c.Tick(ctx)
	if len(e.calls()) != 0 {
		t.Error("A failed sample must not trigger a cycle")
	}
	if c.Snapshot().SampleErrors != 1 {
		t.Error("Expected the sample error to be counted")
	}

	// The next good reading proceeds normally.
	tickCycle(c, ctx)
	if len(e.calls()) != 1 {
		t.Error("Recovery after a sample error should trigger as usual")
	}
}

func TestDisabledNeverTriggers(t *testing.T) {
	s := &seqSampler{used: []uint64{4000 * mib}}
	e := &fakeExecutor{}
	c := newTestController(s, e, newFakeClock(), nil)
	c.SetEnabled(false)

	for i := 0; i < 3; i++ {
		tickCycle(c, context.Background())
	}
	if len(e.calls()) != 0 {
		t.Error("Disabled controller must never start a cycle")
	}

	snap := c.Snapshot()
	if snap.Metric != 4000*mib {
		t.Error("Disabled controller should still sample")
	}
}

func TestTriggerNowBypassesThresholdAndCooldown(t *testing.T) {
	s := &seqSampler{used: []uint64{1500 * mib}}
	e := &fakeExecutor{}
	c := newTestController(s, e, newFakeClock(), nil)
	ctx := context.Background()

	// 1500 MiB is below the start threshold but above stop.
	if !c.TriggerNow(ctx) {
		t.Fatal("Manual trigger should start a cycle below the start threshold")
	}
	c.waitCycle()
	c.Tick(ctx)

	// Cooldown has not elapsed; manual still goes through.
	if !c.TriggerNow(ctx) {
		t.Fatal("Manual trigger should ignore the cooldown")
	}
	c.waitCycle()

	calls := e.calls()
	if len(calls) != 2 {
		t.Fatalf("Expected two manual cycles, got %d", len(calls))
	}
	if want := 1500*mib - stopAt; calls[0] != want {
		t.Errorf("Expected target %d, got %d", want, calls[0])
	}
}

func TestTriggerNowBelowStopIsNoop(t *testing.T) {
	s := &seqSampler{used: []uint64{100 * mib}}
	e := &fakeExecutor{}
	rec := status.NewRecorder(0)
	c := newTestController(s, e, newFakeClock(), rec)

	if c.TriggerNow(context.Background()) {
		t.Error("Nothing above the stop threshold, no cycle expected")
	}
	if len(e.calls()) != 0 {
		t.Error("Executor must not run")
	}
	if _, ok := rec.Last(); !ok {
		t.Error("The no-op should still be reported")
	}
}

func TestTriggerNowWhileCleaningIsNoop(t *testing.T) {
	block := make(chan struct{})
	s := &seqSampler{used: []uint64{2100 * mib}}
	e := &fakeExecutor{block: block}
	c := newTestController(s, e, newFakeClock(), nil)
	ctx := context.Background()

	c.Tick(ctx)
	if !c.Cleaning() {
		t.Fatal("Expected an in-flight cycle")
	}
	if c.TriggerNow(ctx) {
		t.Error("Manual trigger must be a no-op while cleaning")
	}

	close(block)
	c.waitCycle()
	c.Tick(ctx)
	if c.Cleaning() {
		t.Error("Cycle should have landed")
	}
}

func TestTickWhileCleaningSkipsSampling(t *testing.T) {
	block := make(chan struct{})
	s := &seqSampler{used: []uint64{2100 * mib}}
	e := &fakeExecutor{block: block}
	c := newTestController(s, e, newFakeClock(), nil)
	ctx := context.Background()

	c.Tick(ctx)
	before := s.count()
	c.Tick(ctx)
	c.Tick(ctx)
	if s.count() != before {
		t.Error("Ticks during an in-flight cycle must not sample")
	}

	close(block)
	c.waitCycle()
}

func TestSetThresholdsAppliesNextTick(t *testing.T) {
	s := &seqSampler{used: []uint64{1500 * mib}}
	e := &fakeExecutor{}
	c := newTestController(s, e, newFakeClock(), nil)
	ctx := context.Background()

	tickCycle(c, ctx)
	if len(e.calls()) != 0 {
		t.Fatal("1500 MiB is below the default start threshold")
	}

	c.SetThresholds(1024*mib, 512*mib)
	tickCycle(c, ctx)

	calls := e.calls()
	if len(calls) != 1 {
		t.Fatal("Lowered threshold should trigger on the next tick")
	}
	if want := 1500*mib - 512*mib; calls[0] != want {
		t.Errorf("Target should use the new stop threshold, got %d want %d", calls[0], want)
	}
}

type countingObserver struct {
	mu           sync.Mutex
	samples      int
	sampleErrors int
	cycles       []string
}

func (o *countingObserver) ObserveSample(sampler.Sample) {
	o.mu.Lock()
	o.samples++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveSampleError() {
	o.mu.Lock()
	o.sampleErrors++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveCycle(trigger string, _ reclaim.Outcome) {
	o.mu.Lock()
	o.cycles = append(o.cycles, trigger)
	o.mu.Unlock()
}

func TestObserverSeesLifecycle(t *testing.T) {
	s := &seqSampler{used: []uint64{2100 * mib}}
	e := &fakeExecutor{}
	clock := newFakeClock()
	obs := &countingObserver{}
	c := New(s, e, nil, nil, startAt, stopAt,
		WithCooldown(testWindow), WithClock(clock.Now), WithObserver(obs))
	ctx := context.Background()

	tickCycle(c, ctx)
	clock.Advance(time.Second)
	tickCycle(c, ctx)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.samples != 2 {
		t.Errorf("Expected 2 observed samples, got %d", obs.samples)
	}
	if len(obs.cycles) != 1 || obs.cycles[0] != "threshold" {
		t.Errorf("Expected one threshold cycle, got %v", obs.cycles)
	}
}
