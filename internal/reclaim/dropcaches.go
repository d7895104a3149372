package reclaim

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cachewarden/cachewarden/pkg/errors"
	"github.com/cachewarden/cachewarden/pkg/logging"
)

const dropCachesPath = "/proc/sys/vm/drop_caches"

// DropCachesStrategy asks the Linux kernel to drop its clean page
// cache. It needs root; without it the strategy reports a degraded,
// zero-progress outcome instead of failing the cycle.
type DropCachesStrategy struct {
	logger *logging.Logger
}

// NewDropCachesStrategy creates the strategy
func NewDropCachesStrategy(logger *logging.Logger) *DropCachesStrategy {
	if logger == nil {
		logger = logging.Discard()
	}
	return &DropCachesStrategy{logger: logger.WithComponent("reclaim")}
}

// Name identifies the strategy
func (d *DropCachesStrategy) Name() string { return "dropcaches" }

// Supported reports whether the platform exposes drop_caches at all.
func (d *DropCachesStrategy) Supported() bool {
	return runtime.GOOS == "linux"
}

// Reclaim writes to /proc/sys/vm/drop_caches and measures the cache
// delta. Reclaimed may exceed or undershoot the target; the kernel
// drops everything clean, not a precise amount.
func (d *DropCachesStrategy) Reclaim(ctx context.Context, target uint64) (uint64, bool, error) {
	if !d.Supported() {
		return 0, false, errors.NewError(errors.ErrCodeUnsupportedPlatform, "drop_caches requires linux").
			WithComponent("reclaim").WithOperation("dropcaches")
	}

	before, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, false, errors.NewError(errors.ErrCodeReclaimFailed, "cache reading before drop failed").
			WithComponent("reclaim").WithOperation("dropcaches").WithCause(err)
	}

	// "1" frees page cache only; dentries and inodes stay warm.
	if err := os.WriteFile(dropCachesPath, []byte("1\n"), 0200); err != nil {
		if os.IsPermission(err) {
			d.logger.Warn("Insufficient privilege to drop caches, continuing degraded")
			return 0, true, nil
		}
		return 0, false, errors.NewError(errors.ErrCodeReclaimFailed, "drop_caches write failed").
			WithComponent("reclaim").WithOperation("dropcaches").WithCause(err)
	}

	after, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		// The drop happened; we just cannot measure it.
		return 0, true, nil
	}

	var reclaimed uint64
	if before.Cached > after.Cached {
		reclaimed = before.Cached - after.Cached
	}
	return reclaimed, false, nil
}
