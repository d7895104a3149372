package config

import "testing"

const mb = 1024 * 1024

func thresholds(t *testing.T, cfg *Configuration) (uint64, uint64) {
	t.Helper()
	start, err := ParseSize(cfg.Monitor.StartThreshold)
	if err != nil {
		t.Fatalf("start threshold unparseable: %v", err)
	}
	stop, err := ParseSize(cfg.Monitor.StopThreshold)
	if err != nil {
		t.Fatalf("stop threshold unparseable: %v", err)
	}
	return start, stop
}

func TestSetStartThresholdPullsStopDown(t *testing.T) {
	cfg := NewDefault()
	cfg.SetStopThreshold(1024 * mb)
	cfg.SetStartThreshold(512 * mb)

	start, stop := thresholds(t, cfg)
	if start != 512*mb {
		t.Errorf("Expected start to take the edited value, got %d", start)
	}
	if stop != 512*mb-ThresholdStep {
		t.Errorf("Expected stop pulled one step below start, got %d", stop)
	}
}

func TestSetStartThresholdNearZero(t *testing.T) {
	cfg := NewDefault()
	cfg.SetStartThreshold(0)

	start, stop := thresholds(t, cfg)
	if stop != 0 {
		t.Errorf("Expected stop clamped to zero, got %d", stop)
	}
	if start <= stop {
		t.Errorf("Invariant broken at the zero edge: start=%d stop=%d", start, stop)
	}
}

func TestSetStopThresholdPushesStartUp(t *testing.T) {
	cfg := NewDefault()
	cfg.SetStartThreshold(2048 * mb)
	cfg.SetStopThreshold(4096 * mb)

	start, stop := thresholds(t, cfg)
	if stop != 4096*mb {
		t.Errorf("Expected stop to take the edited value, got %d", stop)
	}
	if start != 4096*mb+ThresholdStep {
		t.Errorf("Expected start pushed one step above stop, got %d", start)
	}
}

func TestGuardNoOpOnValidEdits(t *testing.T) {
	cfg := NewDefault()
	cfg.SetStartThreshold(2048 * mb)
	cfg.SetStopThreshold(1024 * mb)

	start, stop := thresholds(t, cfg)
	if start != 2048*mb || stop != 1024*mb {
		t.Errorf("Valid edits must pass through untouched, got start=%d stop=%d", start, stop)
	}
}

func TestGuardIdempotent(t *testing.T) {
	cfg := NewDefault()
	cfg.SetStartThreshold(512 * mb)
	cfg.SetStopThreshold(1024 * mb) // forces start up

	start1, stop1 := thresholds(t, cfg)

	// Re-applying every guard operation with the current values must
	// change nothing.
	cfg.SetStartThreshold(start1)
	cfg.SetStopThreshold(stop1)
	cfg.Normalize()

	start2, stop2 := thresholds(t, cfg)
	if start1 != start2 || stop1 != stop2 {
		t.Errorf("Guard not idempotent: (%d,%d) became (%d,%d)", start1, stop1, start2, stop2)
	}
}

func TestNormalizeRaisesStart(t *testing.T) {
	// Scenario: document edited so start (500MB) lands below the
	// existing stop floor (1GB). Normalization keeps the floor and
	// raises start one step above it.
	cfg := NewDefault()
	cfg.Monitor.StartThreshold = "500MB"
	cfg.Monitor.StopThreshold = "1GB"
	cfg.Normalize()

	start, stop := thresholds(t, cfg)
	if stop != 1024*mb {
		t.Errorf("Normalize must not move the stop floor, got %d", stop)
	}
	if start != 1024*mb+ThresholdStep {
		t.Errorf("Expected start = stop + step, got %d", start)
	}
}

func TestOrderingInvariantUnderEditSequences(t *testing.T) {
	// Arbitrary interleavings of edits must never leave start <= stop.
	edits := []struct {
		setStart bool
		value    uint64
	}{
		{true, 2048 * mb},
		{false, 4096 * mb},
		{true, 100 * mb},
		{false, 100 * mb},
		{true, 0},
		{false, 0},
		{true, 8192 * mb},
		{false, 8191 * mb},
	}

	cfg := NewDefault()
	for i, e := range edits {
		if e.setStart {
			cfg.SetStartThreshold(e.value)
		} else {
			cfg.SetStopThreshold(e.value)
		}
		start, stop := thresholds(t, cfg)
		if start <= stop {
			t.Fatalf("After edit %d: start=%d stop=%d violates ordering", i, start, stop)
		}
	}
}
