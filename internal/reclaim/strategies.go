package reclaim

import (
	"github.com/cachewarden/cachewarden/internal/config"
	"github.com/cachewarden/cachewarden/pkg/logging"
)

// BuildStrategies assembles the strategy chain for the current
// configuration and platform. samplerName is the resolved sampler (not
// the configured "auto"): when the tracked metric is the page cache,
// dropping kernel caches is the primary lever and temp-file deletion
// the fallback; for temp-dir tracking the order flips.
func BuildStrategies(cfg *config.Configuration, samplerName string, logger *logging.Logger) []Strategy {
	tempfiles := NewTempFileStrategy(cfg.Monitor.TempDirs, cfg.Reclaim.ProtectPatterns, logger)

	var dropcaches *DropCachesStrategy
	if cfg.Reclaim.DropCaches {
		if d := NewDropCachesStrategy(logger); d.Supported() {
			dropcaches = d
		}
	}

	if dropcaches == nil {
		return []Strategy{tempfiles}
	}
	if samplerName == "pagecache" {
		return []Strategy{dropcaches, tempfiles}
	}
	return []Strategy{tempfiles, dropcaches}
}
