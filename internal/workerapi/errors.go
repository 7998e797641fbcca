// Package workerapi is the HTTP client for the benchmarking worker's local
// API. It normalizes transport, status, and parse failures into distinct
// error types so callers can tell a dead worker from a confused one.
package workerapi

import (
	"fmt"
	"strings"
)

// bodyExcerptLimit caps how much of a response body is carried inside an
// error, so a misbehaving endpoint cannot flood logs.
const bodyExcerptLimit = 100

// TransportError is a network-level failure: connection refused, timeout,
// DNS. The worker was never reached.
type TransportError struct {
	Op   string // "GET" or "POST"
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("worker %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response. Body holds a truncated excerpt of the
// response body.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("worker returned status %d", e.Code)
	}
	return fmt.Sprintf("worker returned status %d: %s", e.Code, e.Body)
}

// MalformedResponseError is a 2xx response whose body is not valid JSON.
// Distinct from StatusError: the worker answered, but unintelligibly.
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("worker returned unparsable body %q: %v", e.Body, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// excerpt returns the first bodyExcerptLimit characters of b, trimmed.
func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > bodyExcerptLimit {
		return s[:bodyExcerptLimit]
	}
	return s
}
