package sampler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	stderrors "errors"

	"github.com/cachewarden/cachewarden/pkg/errors"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTempDirSamplerCountsFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.tmp", 1000)
	writeFile(t, dir, "b.tmp", 500)

	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, sub, "c.tmp", 250)

	s := NewTempDirSampler([]string{dir})
	sample, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	if sample.Used != 1750 {
		t.Errorf("Expected 1750 bytes used, got %d", sample.Used)
	}
	if sample.Capacity == 0 {
		t.Error("Expected non-zero capacity for a real volume")
	}
	if sample.Used > sample.Capacity {
		t.Errorf("Used (%d) exceeds capacity (%d)", sample.Used, sample.Capacity)
	}
}

func TestTempDirSamplerMultipleDirs(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	writeFile(t, dir1, "a.tmp", 100)
	writeFile(t, dir2, "b.tmp", 200)

	s := NewTempDirSampler([]string{dir1, dir2})
	sample, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if sample.Used != 300 {
		t.Errorf("Expected 300 bytes used, got %d", sample.Used)
	}
}

func TestTempDirSamplerSkipsUnreadableDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.tmp", 64)

	s := NewTempDirSampler([]string{filepath.Join(dir, "missing"), dir})
	sample, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("One readable dir should be enough: %v", err)
	}
	if sample.Used != 64 {
		t.Errorf("Expected 64 bytes used, got %d", sample.Used)
	}
}

func TestTempDirSamplerAllUnreadable(t *testing.T) {
	s := NewTempDirSampler([]string{filepath.Join(t.TempDir(), "gone")})
	_, err := s.Sample(context.Background())
	if err == nil {
		t.Fatal("Expected an error when nothing is readable")
	}

	target := errors.NewError(errors.ErrCodeSampleUnavailable, "")
	if !stderrors.Is(err, target) {
		t.Errorf("Expected SAMPLE_UNAVAILABLE, got %v", err)
	}
}

func TestTempDirSamplerDefaultsToOSTempDir(t *testing.T) {
	s := NewTempDirSampler(nil)
	if len(s.Dirs()) != 1 || s.Dirs()[0] != os.TempDir() {
		t.Errorf("Expected fallback to os.TempDir(), got %v", s.Dirs())
	}
}

func TestTempDirSamplerCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewTempDirSampler([]string{t.TempDir()})
	if _, err := s.Sample(ctx); err == nil {
		t.Error("Expected error for canceled context")
	}
}

func TestSelect(t *testing.T) {
	if got := Select("tempdir", nil).Name(); got != "tempdir" {
		t.Errorf("Select(tempdir) = %s", got)
	}
	if got := Select("pagecache", nil).Name(); got != "pagecache" {
		t.Errorf("Select(pagecache) = %s", got)
	}
	// "auto" must pick something usable on every platform.
	if Select("auto", nil) == nil {
		t.Error("Select(auto) returned nil")
	}
}
