// Package status carries user-facing progress out of the control loop.
//
// The controller reports through a Sink exactly once per completed
// cleanup cycle plus transient "cleaning" updates; consumers decide
// whether that becomes a log line, a metrics sample, or both.
package status

import (
	"sync"
	"time"

	"github.com/cachewarden/cachewarden/pkg/logging"
)

// Sink receives status updates from the controller. Implementations
// must be fast and non-blocking; the control loop calls them inline.
type Sink interface {
	Report(message string, inProgress bool)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(message string, inProgress bool)

// Report calls f
func (f SinkFunc) Report(message string, inProgress bool) { f(message, inProgress) }

// LogSink writes status updates to the structured logger.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a sink over the given logger
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogSink{logger: logger.WithComponent("status")}
}

// Report logs the update
func (s *LogSink) Report(message string, inProgress bool) {
	s.logger.Info(message, map[string]interface{}{
		"in_progress": inProgress,
	})
}

// Update is one recorded status report.
type Update struct {
	Message    string    `json:"message"`
	InProgress bool      `json:"in_progress"`
	Timestamp  time.Time `json:"timestamp"`
}

// Recorder keeps the latest update and a bounded history, for the
// status endpoint and the CLI.
type Recorder struct {
	mu      sync.RWMutex
	last    Update
	history []Update
	limit   int
}

// NewRecorder creates a recorder keeping up to limit historical
// updates. A non-positive limit defaults to 32.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 32
	}
	return &Recorder{limit: limit}
}

// Report records the update
func (r *Recorder) Report(message string, inProgress bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := Update{Message: message, InProgress: inProgress, Timestamp: time.Now()}
	r.last = u
	r.history = append(r.history, u)
	if len(r.history) > r.limit {
		r.history = r.history[len(r.history)-r.limit:]
	}
}

// Last returns the most recent update and whether one exists.
func (r *Recorder) Last() (Update, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, !r.last.Timestamp.IsZero()
}

// History returns a copy of the recorded updates, oldest first.
func (r *Recorder) History() []Update {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Update, len(r.history))
	copy(out, r.history)
	return out
}

// MultiSink fans one report out to several sinks in order.
type MultiSink []Sink

// Report forwards to every sink
func (m MultiSink) Report(message string, inProgress bool) {
	for _, s := range m {
		s.Report(message, inProgress)
	}
}
