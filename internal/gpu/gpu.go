// Package gpu reports GPU memory pressure and thermal state on Apple
// Silicon Macs.
//
// Benchmark numbers collected while the machine is thermally throttled are
// not comparable to cold-start numbers, so the frontend surfaces this next
// to run results. Values come from Metal and IOKit, polled periodically and
// cached.
package gpu

import (
	"context"
	"sync"
	"time"
)

// Info holds a snapshot of GPU state.
type Info struct {
	Name             string    `json:"name"`
	AllocatedBytes   uint64    `json:"allocated_bytes"`
	RecommendedMax   uint64    `json:"recommended_max_bytes"`
	UsagePercent     float64   `json:"usage_percent"`
	ThermalState     string    `json:"thermal_state"` // "nominal", "fair", "serious", "critical"
	HasUnifiedMemory bool      `json:"has_unified_memory"`
	Timestamp        time.Time `json:"timestamp"`
}

// AllocatedGB returns allocated memory in gigabytes.
func (i Info) AllocatedGB() float64 {
	return float64(i.AllocatedBytes) / (1024 * 1024 * 1024)
}

// RecommendedMaxGB returns the recommended max working set in gigabytes.
func (i Info) RecommendedMaxGB() float64 {
	return float64(i.RecommendedMax) / (1024 * 1024 * 1024)
}

// Throttled reports whether the thermal state is bad enough to skew
// benchmark results.
func (i Info) Throttled() bool {
	return i.ThermalState == "serious" || i.ThermalState == "critical"
}

// Observer polls GPU state in the background and caches the latest sample.
// Loading a large model can allocate tens of gigabytes in one step, so
// callers read the cache rather than trigger a Metal query per request.
type Observer struct {
	mu       sync.RWMutex
	info     Info
	interval time.Duration
	cancel   context.CancelFunc
}

// NewObserver creates an observer that polls at the given interval.
func NewObserver(interval time.Duration) *Observer {
	return &Observer{interval: interval}
}

// Start begins polling. The first sample is taken synchronously so Info is
// populated when Start returns.
func (o *Observer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	o.poll()

	go func() {
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				o.poll()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the observer.
func (o *Observer) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Info returns the latest cached sample.
func (o *Observer) Info() Info {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.info
}

// QueryNow returns a one-shot snapshot, bypassing the cache.
func QueryNow() Info {
	info := queryGPU()
	info.Timestamp = time.Now()
	return info
}

func (o *Observer) poll() {
	info := QueryNow()

	o.mu.Lock()
	o.info = info
	o.mu.Unlock()
}
