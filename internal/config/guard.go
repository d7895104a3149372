package config

// The threshold guard keeps start_threshold strictly above
// stop_threshold under live edits. Both values are independently
// editable (config file, env, CLI) in arbitrary order, so every
// mutation path funnels through one of the operations below. All three
// are idempotent: re-applying to an already valid pair is a no-op.

// SetStartThreshold sets the start threshold in bytes. If the new value
// would not clear the stop threshold, the stop threshold is pulled down
// one step below it (clamped at zero).
func (c *Configuration) SetStartThreshold(start uint64) {
	stop := c.stopBytes()
	if start <= stop {
		if start >= ThresholdStep {
			stop = start - ThresholdStep
		} else {
			stop = 0
			if start == 0 {
				start = ThresholdStep
			}
		}
		c.Monitor.StopThreshold = FormatSize(stop)
	}
	c.Monitor.StartThreshold = FormatSize(start)
}

// SetStopThreshold sets the stop threshold in bytes. If the new value
// would reach the start threshold, the start threshold is pushed up one
// step above it.
func (c *Configuration) SetStopThreshold(stop uint64) {
	start := c.startBytes()
	if stop >= start {
		c.Monitor.StartThreshold = FormatSize(stop + ThresholdStep)
	}
	c.Monitor.StopThreshold = FormatSize(stop)
}

// Normalize repairs the threshold pair after a whole-document change
// (file load, env overrides), where there is no "last edited" side. It
// never lowers the stop floor the user asked for: an under-floor start
// is raised one step above the stop threshold instead.
func (c *Configuration) Normalize() {
	start := c.startBytes()
	stop := c.stopBytes()
	if start <= stop {
		c.Monitor.StartThreshold = FormatSize(stop + ThresholdStep)
		c.Monitor.StopThreshold = FormatSize(stop)
	}
}

func (c *Configuration) startBytes() uint64 {
	v, err := ParseSize(c.Monitor.StartThreshold)
	if err != nil {
		v, _ = ParseSize(NewDefault().Monitor.StartThreshold)
	}
	return v
}

func (c *Configuration) stopBytes() uint64 {
	v, err := ParseSize(c.Monitor.StopThreshold)
	if err != nil {
		v, _ = ParseSize(NewDefault().Monitor.StopThreshold)
	}
	return v
}
