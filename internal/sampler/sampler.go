// Package sampler provides readings of the tracked OS resource metric.
//
// A Sampler is a capability object: the controller consumes whatever
// concrete implementation the daemon selected at startup and never
// branches on the platform itself. All samplers report in bytes, the
// same unit the configured thresholds use.
package sampler

import (
	"context"
	"runtime"
)

// Sample is one reading of the tracked metric.
type Sample struct {
	// Used is the current value of the metric (bytes cached / in use).
	Used uint64
	// Capacity is the metric's upper bound (total bytes available).
	Capacity uint64
}

// Sampler produces readings of the tracked metric. Implementations are
// stateless and safe for concurrent use.
type Sampler interface {
	// Sample returns the current reading. Callers treat an error as
	// "metric unchanged": a failed read must never crash the control
	// loop.
	Sample(ctx context.Context) (Sample, error)

	// Name identifies the sampler for logs and status output.
	Name() string
}

// Select returns the sampler for the configured kind. "auto" prefers
// the page-cache sampler where the platform exposes one and falls back
// to temp-directory accounting everywhere else.
func Select(kind string, tempDirs []string) Sampler {
	switch kind {
	case "tempdir":
		return NewTempDirSampler(tempDirs)
	case "pagecache":
		return NewPageCacheSampler()
	default:
		if runtime.GOOS == "linux" {
			return NewPageCacheSampler()
		}
		return NewTempDirSampler(tempDirs)
	}
}
