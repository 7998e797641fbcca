package gpu

import (
	"context"
	"testing"
	"time"
)

func TestInfoHelpers(t *testing.T) {
	info := Info{
		AllocatedBytes: 48 * 1024 * 1024 * 1024, // 48 GB
		RecommendedMax: 64 * 1024 * 1024 * 1024, // 64 GB
	}

	if info.AllocatedGB() != 48.0 {
		t.Errorf("expected 48.0 GB, got %.1f", info.AllocatedGB())
	}
	if info.RecommendedMaxGB() != 64.0 {
		t.Errorf("expected 64.0 GB, got %.1f", info.RecommendedMaxGB())
	}
}

func TestThrottled(t *testing.T) {
	cases := map[string]bool{
		"nominal":  false,
		"fair":     false,
		"serious":  true,
		"critical": true,
		"":         false,
	}
	for state, want := range cases {
		if got := (Info{ThermalState: state}).Throttled(); got != want {
			t.Errorf("Throttled(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestObserver(t *testing.T) {
	o := NewObserver(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o.Start(ctx)
	defer o.Stop()

	// First sample is synchronous.
	info := o.Info()
	if info.Timestamp.IsZero() {
		t.Error("expected timestamp after Start")
	}

	// Wait for a poll cycle.
	time.Sleep(150 * time.Millisecond)

	info2 := o.Info()
	if info2.Timestamp.Before(info.Timestamp) {
		t.Error("expected timestamp to advance")
	}
}
