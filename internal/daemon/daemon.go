// Package daemon wires the pieces of the benchdeck backend together: it
// supervises the worker process, relays its push events, exposes the
// command bridge, and restarts the worker when settings change.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"syscall"
	"time"

	"benchdeck/internal/bridge"
	"benchdeck/internal/config"
	"benchdeck/internal/logbuf"
	"benchdeck/internal/relay"
	"benchdeck/internal/settings"
	"benchdeck/internal/supervisor"
	"benchdeck/internal/workerapi"
)

// relayDialTimeout bounds how long a Ready transition waits for the event
// channel to come up.
const relayDialTimeout = 5 * time.Second

// CredentialSource resolves keychain keys for worker spawns. Satisfied by
// *keychain.AuditedStore.
type CredentialSource interface {
	GetForWorker(keys []string) (map[string]string, error)
}

// Daemon is the top-level coordinator for the worker lifecycle.
type Daemon struct {
	cfg      *config.Config
	settings *settings.Store
	creds    CredentialSource
	sup      *supervisor.Supervisor
	bridge   *bridge.Bridge
	logs     *logbuf.Ring
	state    *stateFile
	logger   *slog.Logger

	mu        sync.Mutex
	relay     *relay.Relay
	subs      []relay.Subscriber
	stateSubs []func(supervisor.State)
}

// Option configures the daemon.
type Option func(*Daemon)

// WithCredentials sets the credential source used to build the worker's
// environment. If unset, the worker only gets the static env from config.
func WithCredentials(c CredentialSource) Option {
	return func(d *Daemon) { d.creds = c }
}

// WithStateDir overrides where the daemon state file lives.
func WithStateDir(dir string) Option {
	return func(d *Daemon) { d.state = newStateFile(dir) }
}

// New creates a daemon from configuration. Nothing is spawned until Start.
func New(cfg *config.Config, store *settings.Store, opts ...Option) *Daemon {
	logs := logbuf.New(cfg.LogLines)
	client := workerapi.New(cfg.BaseURL(), 30*time.Second)
	probe := workerapi.NewProbe(cfg.BaseURL(), cfg.Worker.ProbePath, cfg.Worker.ProbeTimeout.Duration)

	command, args := cfg.Worker.Command()

	d := &Daemon{
		cfg:      cfg,
		settings: store,
		bridge:   bridge.New(client),
		logs:     logs,
		state:    newStateFile(config.DefaultDir()),
		logger:   slog.With("component", "daemon"),
	}

	d.sup = supervisor.New(supervisor.Config{
		Launch: supervisor.LaunchSpec{
			Command: command,
			Args:    args,
			Dir:     cfg.Worker.WorkingDir,
		},
		Probe:         probe,
		ProbeAttempts: cfg.Worker.ProbeAttempts,
		ProbeInterval: cfg.Worker.ProbeInterval.Duration,
		StopGrace:     cfg.Worker.StopGrace.Duration,
		Output:        logs,
	})
	d.sup.OnStateChange(d.handleWorkerState)

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Bridge returns the command bridge for worker operations.
func (d *Daemon) Bridge() *bridge.Bridge { return d.bridge }

// Worker returns the current worker snapshot.
func (d *Daemon) Worker() supervisor.Snapshot { return d.sup.Info() }

// WorkerLogs returns the last n lines of captured worker output.
func (d *Daemon) WorkerLogs(n int) []string { return d.logs.Last(n) }

// SubscribeEvents registers fn for all worker push events, across worker
// restarts.
func (d *Daemon) SubscribeEvents(fn relay.Subscriber) {
	d.mu.Lock()
	d.subs = append(d.subs, fn)
	d.mu.Unlock()
}

// SubscribeWorkerState registers fn for worker lifecycle transitions.
func (d *Daemon) SubscribeWorkerState(fn func(supervisor.State)) {
	d.mu.Lock()
	d.stateSubs = append(d.stateSubs, fn)
	d.mu.Unlock()
}

// Start reaps any orphaned worker from a previous daemon crash, then brings
// the worker up.
func (d *Daemon) Start(ctx context.Context) error {
	d.reapOrphan()
	d.logs.Clear()

	if err := d.applyCredentials(); err != nil {
		return err
	}
	if err := d.sup.Start(ctx); err != nil {
		return err
	}
	d.saveState()
	return nil
}

// Stop shuts the worker down and clears persisted state.
func (d *Daemon) Stop() {
	d.closeRelay()
	d.sup.Stop()
	if err := d.state.clear(); err != nil {
		d.logger.Warn("failed to clear state file", "error", err)
	}
}

// RestartWorker re-resolves credentials and restarts the worker process.
func (d *Daemon) RestartWorker(ctx context.Context) error {
	d.closeRelay()
	d.logs.Clear()
	if err := d.applyCredentials(); err != nil {
		return err
	}
	if err := d.sup.Restart(ctx); err != nil {
		return err
	}
	d.saveState()
	return nil
}

// WatchSettings blocks watching the settings file; edits restart the worker
// so credential changes take effect. Runs until ctx is cancelled.
func (d *Daemon) WatchSettings(ctx context.Context) error {
	return d.settings.Watch(ctx, func() {
		d.logger.Info("settings changed, restarting worker")
		restartCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := d.RestartWorker(restartCtx); err != nil {
			d.logger.Error("restart after settings change failed", "error", err)
		}
	})
}

// applyCredentials builds the worker env overlay from the static config env
// plus credentials named in settings, resolved from the keychain.
func (d *Daemon) applyCredentials() error {
	env := make(map[string]string, len(d.cfg.Worker.Env))
	for k, v := range d.cfg.Worker.Env {
		env[k] = v
	}

	set, err := d.settings.Load()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	// Config-declared secrets plus user-added credential mappings; the
	// settings file wins on conflict.
	mappings := make(map[string]string, len(d.cfg.Worker.Secrets)+len(set.Credentials))
	for envVar, key := range d.cfg.Worker.Secrets {
		mappings[envVar] = key
	}
	for envVar, key := range set.Credentials {
		mappings[envVar] = key
	}

	if d.creds != nil && len(mappings) > 0 {
		keys := make([]string, 0, len(mappings))
		for _, key := range mappings {
			keys = append(keys, key)
		}
		values, err := d.creds.GetForWorker(keys)
		if err != nil {
			return fmt.Errorf("resolving credentials: %w", err)
		}
		for envVar, key := range mappings {
			if val, ok := values[key]; ok {
				env[envVar] = val
			} else {
				d.logger.Warn("credential missing from keychain", "env", envVar, "key", key)
			}
		}
	}

	overlay := make([]string, 0, len(env))
	for k, v := range env {
		overlay = append(overlay, k+"="+v)
	}
	sort.Strings(overlay)
	d.sup.SetLaunchEnv(overlay)
	return nil
}

// handleWorkerState reacts to supervisor transitions: the event relay
// follows the worker up and down, and state changes are forwarded to
// subscribers (the UI shows them as a status badge).
func (d *Daemon) handleWorkerState(st supervisor.State) {
	d.logger.Info("worker state", "state", st)

	d.mu.Lock()
	stateSubs := make([]func(supervisor.State), len(d.stateSubs))
	copy(stateSubs, d.stateSubs)
	d.mu.Unlock()
	for _, fn := range stateSubs {
		fn(st)
	}

	switch st {
	case supervisor.StateReady:
		go d.connectRelay()
	case supervisor.StateFailed, supervisor.StateStopped:
		d.closeRelay()
	}
}

// connectRelay establishes a fresh event channel. A relay is single-use, so
// each Ready transition gets a new one.
func (d *Daemon) connectRelay() {
	r := relay.New(d.cfg.EventURL())
	r.Subscribe(d.fanout)

	ctx, cancel := context.WithTimeout(context.Background(), relayDialTimeout)
	defer cancel()
	if err := r.Connect(ctx); err != nil {
		d.logger.Error("event channel connect failed", "error", err)
		return
	}

	d.mu.Lock()
	old := d.relay
	d.relay = r
	d.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (d *Daemon) closeRelay() {
	d.mu.Lock()
	r := d.relay
	d.relay = nil
	d.mu.Unlock()
	if r != nil {
		r.Close()
	}
}

func (d *Daemon) fanout(ev relay.Event) {
	d.mu.Lock()
	subs := make([]relay.Subscriber, len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (d *Daemon) saveState() {
	snap := d.sup.Info()
	command, _ := d.cfg.Worker.Command()
	rec := WorkerRecord{
		PID:       snap.PID,
		Command:   command,
		StartedAt: snap.StartedAt.Unix(),
		External:  snap.External,
	}
	if err := d.state.save(rec); err != nil {
		d.logger.Warn("failed to save state file", "error", err)
	}
}

// reapOrphan kills a worker left behind by a crashed daemon. Only processes
// we spawned are touched; an adopted external worker is left alone so the
// new daemon can re-adopt it.
func (d *Daemon) reapOrphan() {
	rec, err := d.state.load()
	if err != nil {
		d.logger.Warn("failed to load previous state", "error", err)
		return
	}
	if rec.PID <= 0 || rec.External {
		return
	}
	// Signal 0 checks existence without touching the process.
	if err := syscall.Kill(rec.PID, 0); err != nil {
		return
	}
	d.logger.Warn("reaping orphaned worker from previous run", "pid", rec.PID)
	_ = syscall.Kill(-rec.PID, syscall.SIGTERM)
	time.Sleep(d.cfg.Worker.StopGrace.Duration)
	_ = syscall.Kill(-rec.PID, syscall.SIGKILL)
}
