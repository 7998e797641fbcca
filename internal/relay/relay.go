// Package relay maintains the persistent push connection to the worker and
// fans incoming events out to in-process subscribers.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"nhooyr.io/websocket"
)

// State is the relay connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

// Event is a named push event from the worker. Payload is the frame's data
// field when present, otherwise the whole decoded frame.
type Event struct {
	Name    string
	Payload any
}

// Subscriber receives events. Subscribers are invoked synchronously, in
// arrival order, on the relay's read goroutine.
type Subscriber func(Event)

// Relay is a websocket client for the worker's event channel. It does not
// reconnect on its own; the supervisor re-establishes it when the worker
// comes back up.
type Relay struct {
	url    string
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc
	subs   []Subscriber
}

// New creates a relay for the worker's event URL (e.g.
// "ws://127.0.0.1:8700/ws"). No connection is made until Connect.
func New(url string) *Relay {
	return &Relay{
		url:    url,
		logger: slog.With("component", "relay"),
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe registers fn for all future events. There is no unsubscribe;
// subscribers live as long as the process.
func (r *Relay) Subscribe(fn Subscriber) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

// Connect dials the worker's event channel and starts the read loop. It
// returns once the connection is established; decoding and dispatch happen
// on a background goroutine until the connection drops or Close is called.
func (r *Relay) Connect(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateConnected || r.state == StateConnecting {
		r.mu.Unlock()
		return fmt.Errorf("relay already connected")
	}
	if r.state == StateClosed {
		r.mu.Unlock()
		return fmt.Errorf("relay closed")
	}
	r.state = StateConnecting
	r.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, r.url, nil)
	if err != nil {
		r.mu.Lock()
		r.state = StateDisconnected
		r.mu.Unlock()
		return fmt.Errorf("event channel dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	readCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.conn = conn
	r.cancel = cancel
	r.state = StateConnected
	r.mu.Unlock()

	r.logger.Info("event channel connected", "url", r.url)
	go r.readLoop(readCtx, conn)
	return nil
}

func (r *Relay) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			r.mu.Lock()
			closed := r.state == StateClosed
			if !closed {
				r.state = StateDisconnected
				r.conn = nil
			}
			r.mu.Unlock()
			if !closed {
				r.logger.Warn("event channel dropped", "error", err)
			}
			return
		}
		r.dispatchFrame(data)
	}
}

// dispatchFrame decodes one frame and fans it out. A frame that is not a
// JSON object, or that carries no event name, is dropped with a log line;
// the connection stays up either way.
func (r *Relay) dispatchFrame(data []byte) {
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		r.logger.Warn("dropping malformed event frame", "error", err, "size", len(data))
		return
	}

	name, _ := frame["event"].(string)
	if name == "" {
		// Older workers used "type" for the event name.
		name, _ = frame["type"].(string)
	}
	if name == "" {
		r.logger.Warn("dropping unnamed event frame", "keys", frameKeys(frame))
		return
	}

	payload, ok := frame["data"]
	if !ok {
		payload = frame
	}

	if name == "job-progress" {
		payload = normalizeJobProgress(payload)
	}

	ev := Event{Name: name, Payload: payload}

	r.mu.Lock()
	subs := make([]Subscriber, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, fn := range subs {
		r.deliver(fn, ev)
	}
}

// deliver invokes one subscriber, containing any panic so the remaining
// subscribers still see the event.
func (r *Relay) deliver(fn Subscriber, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("subscriber panicked", "event", ev.Name, "panic", p)
		}
	}()
	fn(ev)
}

// normalizeJobProgress rewrites the transient "starting" status the worker
// emits while a job warms up to plain "running", so consumers see a single
// in-flight status. Some worker builds only signal the warm-up in the
// human-readable message, so that is checked too.
func normalizeJobProgress(payload any) any {
	obj, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	status, _ := obj["status"].(string)
	message, _ := obj["message"].(string)
	if status == "starting" || strings.Contains(message, "Starting") {
		out := make(map[string]any, len(obj))
		for k, v := range obj {
			out[k] = v
		}
		out["status"] = "running"
		return out
	}
	return payload
}

func frameKeys(frame map[string]any) []string {
	keys := make([]string, 0, len(frame))
	for k := range frame {
		keys = append(keys, k)
	}
	return keys
}

// Close tears the connection down permanently. A closed relay cannot be
// reconnected; make a new one.
func (r *Relay) Close() {
	r.mu.Lock()
	conn := r.conn
	cancel := r.cancel
	r.conn = nil
	r.cancel = nil
	r.state = StateClosed
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}
