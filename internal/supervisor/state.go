package supervisor

import "time"

// State is the lifecycle state of the supervised worker process.
type State string

const (
	StateNotStarted     State = "not_started"
	StateStarting       State = "starting"
	StateHealthChecking State = "health_checking"
	StateReady          State = "ready"
	StateRestarting     State = "restarting"
	StateStopping       State = "stopping"
	StateStopped        State = "stopped"
	StateFailed         State = "failed"
)

// Usable reports whether commands and the event relay may be used.
// Only Ready counts; everything else means the worker is absent,
// not yet serving, or on its way down.
func (s State) Usable() bool {
	return s == StateReady
}

// Snapshot is the externally-visible view of the supervisor.
type Snapshot struct {
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	ExitCode  int       `json:"exit_code,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Restarts  int       `json:"restarts"`
	External  bool      `json:"external"` // worker was already running, not spawned by us
}
