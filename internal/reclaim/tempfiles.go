package reclaim

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/IGLOU-EU/go-wildcard"

	"github.com/cachewarden/cachewarden/pkg/logging"
)

// TempFileStrategy frees space by deleting files under the configured
// temp directories, oldest first, until the target is met. Paths
// matching a protect pattern are never touched.
type TempFileStrategy struct {
	dirs    []string
	protect []string
	logger  *logging.Logger
}

// NewTempFileStrategy creates the strategy. An empty dir list falls
// back to the OS temp directory.
func NewTempFileStrategy(dirs, protect []string, logger *logging.Logger) *TempFileStrategy {
	if len(dirs) == 0 {
		dirs = []string{os.TempDir()}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &TempFileStrategy{
		dirs:    dirs,
		protect: protect,
		logger:  logger.WithComponent("reclaim"),
	}
}

// Name identifies the strategy
func (t *TempFileStrategy) Name() string { return "tempfiles" }

type candidate struct {
	path    string
	size    uint64
	modTime time.Time
}

// Reclaim deletes unprotected files oldest-first until target bytes are
// freed or the candidates run out. Files it cannot delete are skipped;
// permission failures mark the attempt degraded but never abort it.
func (t *TempFileStrategy) Reclaim(ctx context.Context, target uint64) (uint64, bool, error) {
	if ctx.Err() != nil {
		return 0, true, nil
	}

	candidates := t.collect(ctx)

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	var reclaimed uint64
	degraded := false

	for _, c := range candidates {
		if reclaimed >= target {
			break
		}
		if ctx.Err() != nil {
			return reclaimed, true, nil
		}

		if err := os.Remove(c.path); err != nil {
			if os.IsPermission(err) {
				degraded = true
			}
			t.logger.Debug("Skipping undeletable file", map[string]interface{}{
				"path":  c.path,
				"error": err.Error(),
			})
			continue
		}
		reclaimed += c.size
	}

	t.removeEmptyDirs(ctx)

	return reclaimed, degraded, nil
}

// collect gathers deletable regular files across all dirs. Unreadable
// entries are skipped silently; an empty result just means there is
// nothing to reclaim here.
func (t *TempFileStrategy) collect(ctx context.Context) []candidate {
	var candidates []candidate

	for _, dir := range t.dirs {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() && path != dir {
					return fs.SkipDir
				}
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if path == dir || !d.Type().IsRegular() {
				return nil
			}
			if t.isProtected(path) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			candidates = append(candidates, candidate{
				path:    path,
				size:    uint64(info.Size()),
				modTime: info.ModTime(),
			})
			return nil
		})
	}

	return candidates
}

func (t *TempFileStrategy) isProtected(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range t.protect {
		if wildcard.Match(pattern, base) || wildcard.Match(pattern, path) {
			return true
		}
	}
	return false
}

// removeEmptyDirs prunes directories left empty by deletion, deepest
// first. The roots themselves are kept.
func (t *TempFileStrategy) removeEmptyDirs(ctx context.Context) {
	for _, dir := range t.dirs {
		var subdirs []string
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || ctx.Err() != nil {
				return nil
			}
			if d.IsDir() && path != dir {
				subdirs = append(subdirs, path)
			}
			return nil
		})

		// Deepest paths sort last; remove in reverse.
		sort.Strings(subdirs)
		for i := len(subdirs) - 1; i >= 0; i-- {
			// Remove fails on non-empty dirs, which is exactly what we want.
			_ = os.Remove(subdirs[i])
		}
	}
}
