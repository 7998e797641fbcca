// Package logbuf captures the tail of the worker's combined output. The
// worker can log heavily while loading models, so only the most recent
// lines are kept for the frontend log view.
package logbuf

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// Ring stores the last N complete output lines. It implements io.Writer so
// it can be handed to the spawned process as stdout/stderr directly.
type Ring struct {
	mu    sync.Mutex
	lines []string
	next  int // index of the next slot to overwrite
	count int // lines stored, capped at len(lines)
	carry bytes.Buffer
}

// New creates a ring holding up to n lines.
func New(n int) *Ring {
	return &Ring{lines: make([]string, n)}
}

// Write splits input on newlines and records each complete line. A chunk
// without a trailing newline is carried until the rest of the line arrives.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.carry.Write(p)
	for {
		buf := r.carry.Bytes()
		nl := bytes.IndexByte(buf, '\n')
		if nl < 0 {
			break
		}
		line := string(buf[:nl])
		r.carry.Next(nl + 1)
		r.push(line)
	}
	return len(p), nil
}

func (r *Ring) push(line string) {
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// Lines returns the stored lines, oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.lines)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}

// Last returns the newest n lines, or everything if fewer exist.
func (r *Ring) Last(n int) []string {
	all := r.Lines()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Reader returns an io.Reader over the current contents.
func (r *Ring) Reader() io.Reader {
	return strings.NewReader(strings.Join(r.Lines(), "\n"))
}

// Clear drops all stored lines and any carried partial line. Called when a
// fresh worker process is spawned so its log view starts empty.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.lines {
		r.lines[i] = ""
	}
	r.next = 0
	r.count = 0
	r.carry.Reset()
}
