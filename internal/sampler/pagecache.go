package sampler

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cachewarden/cachewarden/pkg/errors"
)

// PageCacheSampler reports the OS page-cache (standby memory) usage.
// On Linux this is the "Cached" figure from /proc/meminfo; gopsutil
// maps the closest equivalent elsewhere.
type PageCacheSampler struct{}

// NewPageCacheSampler creates a page-cache sampler
func NewPageCacheSampler() *PageCacheSampler {
	return &PageCacheSampler{}
}

// Name identifies the sampler
func (s *PageCacheSampler) Name() string { return "pagecache" }

// Sample reads virtual memory statistics
func (s *PageCacheSampler) Sample(ctx context.Context) (Sample, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, errors.NewError(errors.ErrCodeSampleUnavailable, "virtual memory read failed").
			WithComponent("sampler").WithOperation("sample").WithCause(err)
	}

	return Sample{Used: vm.Cached, Capacity: vm.Total}, nil
}
