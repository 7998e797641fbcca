package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProbe answers false for the first `failures` checks, then true.
type fakeProbe struct {
	mu       sync.Mutex
	failures int
	checks   int
}

func (p *fakeProbe) Check(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks++
	return p.checks > p.failures
}

func (p *fakeProbe) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checks
}

// neverProbe always reports unreachable.
type neverProbe struct{}

func (neverProbe) Check(ctx context.Context) bool { return false }

func testConfig(probe Prober) Config {
	return Config{
		Launch:        LaunchSpec{Command: "sleep", Args: []string{"30"}},
		Probe:         probe,
		ProbeAttempts: 5,
		ProbeInterval: 10 * time.Millisecond,
		StopGrace:     200 * time.Millisecond,
	}
}

func TestStartAdoptsReachableWorkerWithoutSpawn(t *testing.T) {
	// Probe succeeds immediately; the launch command would fail loudly if run.
	probe := &fakeProbe{failures: 0}
	cfg := testConfig(probe)
	cfg.Launch.Command = "/nonexistent/worker-binary"
	s := New(cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := s.Info()
	if snap.State != StateReady {
		t.Errorf("state = %s", snap.State)
	}
	if !snap.External {
		t.Error("adopted worker should be marked external")
	}
	if snap.PID != 0 {
		t.Errorf("no process should be spawned, pid = %d", snap.PID)
	}
}

func TestStartBecomesReadyAfterProbeRetries(t *testing.T) {
	// First pre-spawn check plus 3 in-loop failures, ready on loop attempt 4.
	probe := &fakeProbe{failures: 4}
	s := New(testConfig(probe))
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := s.Info()
	if snap.State != StateReady {
		t.Errorf("state = %s", snap.State)
	}
	if snap.External {
		t.Error("spawned worker must not be marked external")
	}
	if snap.PID == 0 {
		t.Error("expected a spawned pid")
	}
	if got := probe.count(); got != 5 {
		t.Errorf("probe checks = %d, want 5", got)
	}
}

func TestStartExhaustsProbesAndFails(t *testing.T) {
	s := New(testConfig(neverProbe{}))

	err := s.Start(context.Background())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if st := s.State(); st != StateFailed {
		t.Errorf("state = %s", st)
	}
	// The half-started process must be gone.
	if pid := s.Info().PID; pid != 0 {
		t.Errorf("process not cleaned up, pid = %d", pid)
	}
}

func TestStartSpawnFailure(t *testing.T) {
	cfg := testConfig(neverProbe{})
	cfg.Launch.Command = "/nonexistent/worker-binary"
	s := New(cfg)

	err := s.Start(context.Background())
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("err = %v", err)
	}
	if st := s.State(); st != StateFailed {
		t.Errorf("state = %s", st)
	}
}

func TestStopTransitionsToStopped(t *testing.T) {
	probe := &fakeProbe{failures: 1}
	s := New(testConfig(probe))

	var stopped atomic.Int32
	s.OnStateChange(func(st State) {
		if st == StateStopped {
			stopped.Add(1)
		}
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()

	deadline := time.Now().Add(time.Second)
	for s.State() != StateStopped && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	snap := s.Info()
	if snap.State != StateStopped {
		t.Fatalf("state = %s", snap.State)
	}
	if snap.PID != 0 {
		t.Error("process reference should be cleared")
	}
	if snap.LastError != "" {
		t.Errorf("requested stop must not record an error, got %q", snap.LastError)
	}
	// Subscribers must see the stopped transition, not just a terminal poll.
	if n := stopped.Load(); n != 1 {
		t.Errorf("stopped transitions = %d, want 1", n)
	}
}

func TestUnexpectedExitRecordsCodeNoRestart(t *testing.T) {
	probe := &fakeProbe{failures: 1}
	cfg := testConfig(probe)
	// Worker dies on its own shortly after becoming ready.
	cfg.Launch.Command = "sh"
	cfg.Launch.Args = []string{"-c", "sleep 0.05; exit 3"}
	s := New(cfg)

	var transitions atomic.Int32
	s.OnStateChange(func(st State) {
		if st == StateFailed {
			transitions.Add(1)
		}
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateFailed && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	snap := s.Info()
	if snap.State != StateFailed {
		t.Fatalf("state = %s", snap.State)
	}
	if snap.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", snap.ExitCode)
	}
	if snap.LastError == "" {
		t.Error("unexpected exit should record an error")
	}

	// No auto-restart: the state stays Failed.
	time.Sleep(100 * time.Millisecond)
	if st := s.State(); st != StateFailed {
		t.Errorf("state after wait = %s, want failed", st)
	}
	if n := transitions.Load(); n != 1 {
		t.Errorf("failed transitions = %d, want 1", n)
	}
}

func TestRestartStopsThenStarts(t *testing.T) {
	probe := &fakeProbe{failures: 1}
	s := New(testConfig(probe))
	defer s.Stop()

	var mu sync.Mutex
	var seen []State
	s.OnStateChange(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	firstPID := s.Info().PID

	if err := s.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	snap := s.Info()
	if snap.State != StateReady {
		t.Errorf("state = %s", snap.State)
	}
	if snap.Restarts != 1 {
		t.Errorf("restarts = %d", snap.Restarts)
	}
	if snap.PID == firstPID {
		t.Error("expected a fresh process after restart")
	}

	mu.Lock()
	defer mu.Unlock()
	stopIdx, startIdx := -1, -1
	for i, st := range seen {
		if st == StateStopping && stopIdx == -1 {
			stopIdx = i
		}
		if st == StateRestarting {
			startIdx = i
		}
	}
	if stopIdx == -1 || startIdx == -1 || stopIdx > startIdx {
		t.Errorf("restart ordering wrong: %v", seen)
	}
}

func TestStartWhileRunningReturnsError(t *testing.T) {
	probe := &fakeProbe{failures: 0}
	s := New(testConfig(probe))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second start err = %v", err)
	}
}

func TestStopWithoutProcess(t *testing.T) {
	s := New(testConfig(neverProbe{}))
	s.Stop()
	if st := s.State(); st != StateStopped {
		t.Errorf("state = %s", st)
	}
}
