// Package reclaim implements best-effort reclamation of the tracked
// resource. An Executor tries a fixed priority order of strategies and
// stops at the first one that makes progress; every attempt is bounded
// by a timeout so a stuck strategy can never wedge the control loop.
package reclaim

import (
	"context"
	"fmt"
	"time"

	"github.com/cachewarden/cachewarden/pkg/errors"
	"github.com/cachewarden/cachewarden/pkg/logging"
)

// Outcome describes the result of one reclaim attempt.
type Outcome struct {
	// AttemptedTarget is the amount the controller asked to reclaim.
	AttemptedTarget uint64 `json:"attempted_target"`

	// Reclaimed is the amount actually freed, often less than asked.
	Reclaimed uint64 `json:"reclaimed"`

	// Degraded is set when a strategy believes it lacked the privilege
	// (or the time) to complete fully.
	Degraded bool `json:"degraded"`

	// Strategy names the strategy that made progress, if any.
	Strategy string `json:"strategy,omitempty"`

	// Duration is the wall time the attempt took.
	Duration time.Duration `json:"duration"`
}

// Strategy is a single reclamation technique. Implementations report
// how much they freed and whether they were privilege-limited; they
// must respect context cancellation.
type Strategy interface {
	Name() string
	Reclaim(ctx context.Context, target uint64) (reclaimed uint64, degraded bool, err error)
}

// Executor drives strategies in priority order.
type Executor struct {
	strategies []Strategy
	timeout    time.Duration
	logger     *logging.Logger
}

// NewExecutor creates an executor over the given strategies. A zero
// timeout defaults to 30 seconds.
func NewExecutor(strategies []Strategy, timeout time.Duration, logger *logging.Logger) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		strategies: strategies,
		timeout:    timeout,
		logger:     logger.WithComponent("reclaim"),
	}
}

// Reclaim attempts to free target bytes. It never panics and never
// blocks past the configured timeout: on deadline it returns whatever
// partial progress was made with Degraded set. An error is returned
// only when no strategy could run at all.
func (e *Executor) Reclaim(ctx context.Context, target uint64) (outcome Outcome, err error) {
	start := time.Now()
	outcome.AttemptedTarget = target

	defer func() {
		outcome.Duration = time.Since(start)
		if r := recover(); r != nil {
			outcome.Degraded = true
			err = errors.NewError(errors.ErrCodeReclaimFailed, fmt.Sprintf("strategy panicked: %v", r)).
				WithComponent("reclaim").WithOperation("reclaim")
		}
	}()

	if len(e.strategies) == 0 {
		return outcome, errors.NewError(errors.ErrCodeUnsupportedPlatform, "no reclaim strategy available").
			WithComponent("reclaim").WithOperation("reclaim")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var lastErr error
	failed := 0

	for _, strategy := range e.strategies {
		if ctx.Err() != nil {
			outcome.Degraded = true
			break
		}

		reclaimed, degraded, serr := strategy.Reclaim(ctx, target)
		outcome.Reclaimed += reclaimed
		if degraded {
			outcome.Degraded = true
		}

		if serr != nil {
			failed++
			lastErr = serr
			e.logger.Warn("Reclaim strategy failed", map[string]interface{}{
				"strategy": strategy.Name(),
				"error":    serr.Error(),
			})
			continue
		}

		if reclaimed > 0 {
			outcome.Strategy = strategy.Name()
			break
		}
	}

	if ctx.Err() != nil {
		outcome.Degraded = true
	}

	if outcome.Reclaimed == 0 && failed == len(e.strategies) {
		return outcome, errors.NewError(errors.ErrCodeReclaimFailed, "all reclaim strategies failed").
			WithComponent("reclaim").WithOperation("reclaim").WithCause(lastErr)
	}

	return outcome, nil
}

// Strategies returns the configured strategy names in priority order.
func (e *Executor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}
