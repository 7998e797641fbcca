package workerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxBodySize bounds how much of a worker response is read into memory.
const maxBodySize = 1 << 20

// Client issues JSON requests to the worker's local HTTP API.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// New creates a client for the worker API at baseURL (e.g.
// "http://127.0.0.1:8700"). timeout bounds each individual request.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:   baseURL,
		http:   &http.Client{Timeout: timeout},
		logger: slog.With("component", "workerapi"),
	}
}

// GetJSON performs a GET and decodes the response body as JSON.
// Non-2xx yields a *StatusError carrying a truncated body excerpt; a 2xx
// body that fails to parse yields a *MalformedResponseError.
func (c *Client) GetJSON(ctx context.Context, path string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, &TransportError{Op: "GET", Path: path, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "GET", Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Op: "GET", Path: path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: excerpt(body)}
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &MalformedResponseError{Body: excerpt(body), Err: err}
	}
	return v, nil
}

// PostJSON serializes payload, POSTs it, and decodes the response as a JSON
// object. Two response anomalies are downgraded to soft failures rather than
// errors, because callers treat them as ordinary command outcomes:
//
//   - an empty body (some worker endpoints legitimately return nothing when
//     a job finishes mid-request) yields {success:false, error:"empty response"}
//   - an unparsable body yields {success:false, error:...} with a truncated
//     excerpt of the offending body
//
// Transport and non-2xx failures are still reported as errors.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &TransportError{Op: "POST", Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return nil, &TransportError{Op: "POST", Path: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = int64(len(data))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "POST", Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Op: "POST", Path: path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: excerpt(body)}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		c.logger.Warn("empty response body", "path", path)
		return map[string]any{"success": false, "error": "empty response"}, nil
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Warn("unparsable response body", "path", path, "body", excerpt(body))
		return map[string]any{
			"success": false,
			"error":   "unparsable response: " + excerpt(body),
		}, nil
	}
	return result, nil
}
