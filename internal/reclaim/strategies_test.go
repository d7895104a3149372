package reclaim

import (
	"runtime"
	"testing"

	"github.com/cachewarden/cachewarden/internal/config"
)

func TestBuildStrategiesOrdering(t *testing.T) {
	cfg := config.NewDefault()

	got := BuildStrategies(cfg, "pagecache", nil)
	if len(got) == 0 {
		t.Fatal("Expected at least one strategy")
	}

	if runtime.GOOS == "linux" {
		if got[0].Name() != "dropcaches" {
			t.Errorf("Page-cache tracking should try dropcaches first, got %s", got[0].Name())
		}

		got = BuildStrategies(cfg, "tempdir", nil)
		if got[0].Name() != "tempfiles" {
			t.Errorf("Temp-dir tracking should try tempfiles first, got %s", got[0].Name())
		}
	} else {
		// Off Linux there is no cache-drop lever at all.
		if len(got) != 1 || got[0].Name() != "tempfiles" {
			t.Errorf("Expected tempfiles only, got %d strategies", len(got))
		}
	}
}

func TestBuildStrategiesDropCachesDisabled(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Reclaim.DropCaches = false

	got := BuildStrategies(cfg, "pagecache", nil)
	for _, s := range got {
		if s.Name() == "dropcaches" {
			t.Error("dropcaches must stay out when disabled")
		}
	}
}
