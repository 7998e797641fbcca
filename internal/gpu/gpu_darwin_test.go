//go:build darwin && !nogpu

package gpu

import "testing"

func TestQueryGPU(t *testing.T) {
	info := queryGPU()

	if info.Name == "" {
		t.Error("expected GPU name")
	}
	if info.RecommendedMax == 0 {
		t.Error("expected non-zero recommended max")
	}
	if info.ThermalState == "" {
		t.Error("expected thermal state")
	}

	t.Logf("GPU: %s", info.Name)
	t.Logf("Allocated: %.1f GB (%.1f%% of %.1f GB)", info.AllocatedGB(), info.UsagePercent, info.RecommendedMaxGB())
	t.Logf("Thermal: %s (throttled=%v)", info.ThermalState, info.Throttled())
}
