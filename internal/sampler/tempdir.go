package sampler

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/cachewarden/cachewarden/pkg/errors"
)

// TempDirSampler reports the total size of files under one or more
// temp-cache directories. Capacity is the size of the volume holding
// the first directory.
type TempDirSampler struct {
	dirs []string
}

// NewTempDirSampler creates a sampler over the given directories. An
// empty list falls back to the OS temp directory.
func NewTempDirSampler(dirs []string) *TempDirSampler {
	if len(dirs) == 0 {
		dirs = []string{os.TempDir()}
	}
	return &TempDirSampler{dirs: dirs}
}

// Name identifies the sampler
func (s *TempDirSampler) Name() string { return "tempdir" }

// Dirs returns the directories being tracked
func (s *TempDirSampler) Dirs() []string { return s.dirs }

// Sample walks the temp directories and sums regular file sizes.
// Individual unreadable entries are skipped; the sample fails only
// when no directory could be read at all.
func (s *TempDirSampler) Sample(ctx context.Context) (Sample, error) {
	var used uint64
	readable := 0

	for _, dir := range s.dirs {
		if err := ctx.Err(); err != nil {
			return Sample{}, errors.NewError(errors.ErrCodeSampleUnavailable, "sample canceled").
				WithComponent("sampler").WithOperation("sample").WithCause(err)
		}

		size, err := dirSize(ctx, dir)
		if err != nil {
			continue
		}
		readable++
		used += size
	}

	if readable == 0 {
		return Sample{}, errors.NewError(errors.ErrCodeSampleUnavailable, "no temp directory readable").
			WithComponent("sampler").WithOperation("sample").
			WithContext("dirs", filepath.Join(s.dirs...))
	}

	capacity := uint64(0)
	if usage, err := disk.UsageWithContext(ctx, s.dirs[0]); err == nil {
		capacity = usage.Total
	}

	return Sample{Used: used, Capacity: capacity}, nil
}

func dirSize(ctx context.Context, dir string) (uint64, error) {
	var total uint64

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			// Entry disappeared or is unreadable; temp dirs churn.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += uint64(info.Size())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
