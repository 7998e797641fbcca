// Package supervisor owns the lifecycle of the benchmarking worker process:
// spawn, readiness probing, termination, restart, and exit observation.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrBackendUnavailable means every readiness probe failed; the worker
	// never started serving.
	ErrBackendUnavailable = errors.New("worker did not become reachable")

	// ErrSpawn means the launch command could not be started at all.
	ErrSpawn = errors.New("worker spawn failed")

	// ErrAlreadyRunning is returned by Start when a worker is already owned.
	ErrAlreadyRunning = errors.New("worker already running")
)

// Prober is the liveness check used during startup. Implemented by
// workerapi.Probe; faked in tests.
type Prober interface {
	Check(ctx context.Context) bool
}

// LaunchSpec describes how to start the worker process. Which command this
// is (development interpreter vs. packaged executable) is the caller's
// decision; the supervisor is packaging-agnostic.
type LaunchSpec struct {
	Command string
	Args    []string
	Dir     string
	// Env entries are appended over the inherited environment. Credentials
	// resolved from settings and the keychain arrive here.
	Env []string
}

// Config configures a Supervisor.
type Config struct {
	Launch        LaunchSpec
	Probe         Prober
	ProbeAttempts int           // default 15
	ProbeInterval time.Duration // delay between attempts, default 2s
	StopGrace     time.Duration // SIGTERM grace before SIGKILL, default 2s
	Output        io.Writer     // worker stdout+stderr sink, default discard
}

// Supervisor manages exactly one worker process at a time.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	done      chan struct{} // closed when the current process exits
	stopping  bool          // a Stop was requested for the current process
	startedAt time.Time
	exitCode  int
	lastErr   string
	restarts  int
	external  bool

	onState func(State)
}

// New creates a Supervisor. It does not touch the process table until Start.
func New(cfg Config) *Supervisor {
	if cfg.ProbeAttempts <= 0 {
		cfg.ProbeAttempts = 15
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 2 * time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2 * time.Second
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	return &Supervisor{
		cfg:    cfg,
		logger: slog.With("component", "supervisor"),
		state:  StateNotStarted,
	}
}

// OnStateChange registers a callback invoked after every state transition.
// The callback runs outside the supervisor lock and must not block for long.
func (s *Supervisor) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// Info returns a snapshot of the supervisor's current state.
func (s *Supervisor) Info() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:     s.state,
		StartedAt: s.startedAt,
		ExitCode:  s.exitCode,
		LastError: s.lastErr,
		Restarts:  s.restarts,
		External:  s.external,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		snap.PID = s.cmd.Process.Pid
	}
	return snap
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// Start brings the worker to Ready. If a worker is already answering the
// probe (e.g. started by hand during development), it is adopted as-is and
// no process is spawned. Otherwise the launch command is started and probed
// up to ProbeAttempts times with ProbeInterval between attempts. Start
// returns ErrBackendUnavailable once attempts are exhausted, and a wrapped
// ErrSpawn immediately if the command cannot start.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStarting, StateHealthChecking, StateReady:
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.stopping = false
	s.lastErr = ""
	s.mu.Unlock()

	if s.cfg.Probe.Check(ctx) {
		s.logger.Info("worker already reachable, adopting without spawn")
		s.mu.Lock()
		s.external = true
		s.startedAt = time.Now()
		s.mu.Unlock()
		s.setState(StateReady)
		return nil
	}

	s.setState(StateStarting)

	cmd := exec.Command(s.cfg.Launch.Command, s.cfg.Launch.Args...)
	cmd.Dir = s.cfg.Launch.Dir
	cmd.Env = append(os.Environ(), s.cfg.Launch.Env...)
	cmd.Stdout = s.cfg.Output
	cmd.Stderr = s.cfg.Output
	// Own process group so Stop can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.setState(StateFailed)
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.done = done
	s.external = false
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("worker spawned", "pid", cmd.Process.Pid, "command", s.cfg.Launch.Command)

	go s.observeExit(cmd, done)

	s.setState(StateHealthChecking)

	for attempt := 1; attempt <= s.cfg.ProbeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.cfg.Probe.Check(ctx) {
			s.logger.Info("worker ready", "attempt", attempt)
			s.setState(StateReady)
			return nil
		}
		s.logger.Debug("worker not ready yet", "attempt", attempt, "max", s.cfg.ProbeAttempts)
		if attempt < s.cfg.ProbeAttempts {
			select {
			case <-time.After(s.cfg.ProbeInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	s.logger.Error("worker never became reachable", "attempts", s.cfg.ProbeAttempts)
	s.mu.Lock()
	s.lastErr = fmt.Sprintf("no successful probe in %d attempts", s.cfg.ProbeAttempts)
	s.mu.Unlock()
	s.setState(StateFailed)
	// The half-started process is not left behind.
	s.terminateOwned()
	return ErrBackendUnavailable
}

// observeExit waits for the process and classifies the exit. The decision
// "was this stop requested" is taken under the same lock Stop uses to set
// the flag, so it is never made against a stale state.
func (s *Supervisor) observeExit(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	s.mu.Lock()
	if s.cmd != cmd {
		// This process was disowned (replaced, or torn down after a failed
		// startup); its exit carries no state transition.
		s.mu.Unlock()
		close(done)
		return
	}
	s.exitCode = code
	s.cmd = nil
	s.done = nil
	expected := s.stopping
	if !expected {
		s.lastErr = fmt.Sprintf("worker exited unexpectedly (code %d)", code)
	}
	s.mu.Unlock()

	// Transition before releasing waiters: a Stop (or Restart) blocked on
	// done must observe Stopped the moment it resumes, never later where it
	// could clobber a fresh worker's state.
	if expected {
		s.logger.Info("worker stopped", "exit_code", code)
		s.setState(StateStopped)
	} else {
		// No auto-restart here: crash loops would mask the root cause. The
		// state change is surfaced and recovery is the caller's decision.
		s.logger.Error("worker exited unexpectedly", "exit_code", code)
		s.setState(StateFailed)
	}
	close(done)
}

// Stop requests graceful termination of an owned worker process. An adopted
// external worker is not ours to kill; Stop only marks it stopped. Stop waits
// at most the grace window for the process to go away. The owned reference
// stays in place until observeExit sees the exit and performs the Stopped
// transition.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cmd := s.cmd
	done := s.done
	s.stopping = true
	if cmd == nil || cmd.Process == nil {
		s.cmd = nil
		s.done = nil
		s.mu.Unlock()
		s.setState(StateStopped)
		return
	}
	// Enter Stopping under the same lock hold that sets the flag, so a
	// concurrent exit cannot publish Stopped first and be overwritten.
	s.state = StateStopping
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(StateStopping)
	}

	s.logger.Info("stopping worker", "pid", cmd.Process.Pid)

	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)

	select {
	case <-done:
	case <-time.After(s.cfg.StopGrace):
		s.logger.Warn("worker did not exit in grace window, killing", "pid", cmd.Process.Pid)
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		select {
		case <-done:
		case <-time.After(s.cfg.StopGrace):
			// The process refuses to die. Disown it so a future exit does
			// not rewrite the state, and report stopped anyway.
			s.mu.Lock()
			if s.cmd == cmd {
				s.cmd = nil
				s.done = nil
			}
			s.mu.Unlock()
			s.setState(StateStopped)
		}
	}
}

// terminateOwned kills the owned process without state transitions. Used to
// clean up a spawn that never became ready.
func (s *Supervisor) terminateOwned() {
	s.mu.Lock()
	cmd := s.cmd
	done := s.done
	s.stopping = true
	s.cmd = nil
	s.done = nil
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(s.cfg.StopGrace):
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// Restart stops the worker, waits the grace window, and starts it again.
// Used when credentials or configuration change. Commands issued between
// Stop and the new Ready race with the restart; callers must await Restart.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.logger.Info("restarting worker")
	s.Stop()
	s.setState(StateRestarting)

	select {
	case <-time.After(s.cfg.StopGrace):
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.restarts++
	// A previously adopted worker that we just declined to kill may still
	// answer the probe, in which case Start re-adopts it.
	s.state = StateNotStarted
	s.mu.Unlock()

	return s.Start(ctx)
}

// SetLaunchEnv replaces the environment overlay used for the next spawn.
// It does not affect a process that is already running; call Restart.
func (s *Supervisor) SetLaunchEnv(env []string) {
	s.mu.Lock()
	s.cfg.Launch.Env = env
	s.mu.Unlock()
}
