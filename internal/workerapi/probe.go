package workerapi

import (
	"context"
	"net/http"
	"time"
)

// Probe performs liveness checks against the worker's health endpoint.
// The boolean is the entire contract: any transport failure, timeout, or
// non-2xx status reads as "not reachable".
type Probe struct {
	url  string
	http *http.Client
}

// NewProbe creates a probe for baseURL+path with a per-check timeout.
func NewProbe(baseURL, path string, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Probe{
		url:  baseURL + path,
		http: &http.Client{Timeout: timeout},
	}
}

// Check returns true only if the health endpoint answers with a 2xx status.
func (p *Probe) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
