package workerapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetJSONDecodesBody(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		w.Write([]byte(`{"runs":[{"id":"r1"}]}`))
	})

	c := New(srv.URL, time.Second)
	v, err := c.GetJSON(context.Background(), "/api/runs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", v)
	}
	if _, ok := obj["runs"]; !ok {
		t.Errorf("missing runs key: %v", obj)
	}
}

func TestGetJSONStatusErrorCarriesBody(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		w.Write([]byte("internal error"))
	})

	c := New(srv.URL, time.Second)
	_, err := c.GetJSON(context.Background(), "/api/runs")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != 500 {
		t.Errorf("code = %d", se.Code)
	}
	// Under the excerpt cap, the body is carried verbatim.
	if se.Body != "internal error" {
		t.Errorf("body = %q", se.Body)
	}
}

func TestGetJSONTruncatesLongErrorBody(t *testing.T) {
	long := strings.Repeat("x", 500)
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(502)
		w.Write([]byte(long))
	})

	c := New(srv.URL, time.Second)
	_, err := c.GetJSON(context.Background(), "/api/runs")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if len(se.Body) != bodyExcerptLimit {
		t.Errorf("body length = %d, want %d", len(se.Body), bodyExcerptLimit)
	}
}

func TestGetJSONMalformedResponseDistinctFromStatus(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	})

	c := New(srv.URL, time.Second)
	_, err := c.GetJSON(context.Background(), "/api/runs")
	var me *MalformedResponseError
	if !errors.As(err, &me) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
	var se *StatusError
	if errors.As(err, &se) {
		t.Error("malformed response must not read as a status error")
	}
}

func TestGetJSONTransportError(t *testing.T) {
	// Nothing listens here.
	c := New("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.GetJSON(context.Background(), "/api/runs")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestPostJSONEmptyBodyIsSoftFailure(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})

	c := New(srv.URL, time.Second)
	result, err := c.PostJSON(context.Background(), "/api/runs/launch", map[string]any{"suite": "mmlu"})
	if err != nil {
		t.Fatalf("empty body must not error: %v", err)
	}
	if success, _ := result["success"].(bool); success {
		t.Error("expected success=false")
	}
	if result["error"] != "empty response" {
		t.Errorf("error = %v", result["error"])
	}
}

func TestPostJSONUnparsableBodyIsSoftFailure(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway woes</html>"))
	})

	c := New(srv.URL, time.Second)
	result, err := c.PostJSON(context.Background(), "/api/jobs/reset-stuck", nil)
	if err != nil {
		t.Fatalf("unparsable body must not error: %v", err)
	}
	if success, _ := result["success"].(bool); success {
		t.Error("expected success=false")
	}
	errStr, _ := result["error"].(string)
	if !strings.Contains(errStr, "gateway woes") {
		t.Errorf("error should carry a body excerpt, got %q", errStr)
	}
}

func TestPostJSONSendsContentLength(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength <= 0 {
			t.Errorf("content length = %d", r.ContentLength)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		w.Write([]byte(`{"success":true}`))
	})

	c := New(srv.URL, time.Second)
	result, err := c.PostJSON(context.Background(), "/api/runs/launch", map[string]any{"suite": "gsm8k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if success, _ := result["success"].(bool); !success {
		t.Errorf("result = %v", result)
	}
}

func TestProbeCheck(t *testing.T) {
	healthy := false
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if healthy {
			w.WriteHeader(200)
		} else {
			w.WriteHeader(503)
		}
	})

	p := NewProbe(srv.URL, "/api/health", time.Second)
	if p.Check(context.Background()) {
		t.Error("expected unreachable while unhealthy")
	}
	healthy = true
	if !p.Check(context.Background()) {
		t.Error("expected reachable once healthy")
	}
}

func TestProbeCheckConnectionRefused(t *testing.T) {
	p := NewProbe("http://127.0.0.1:1", "/api/health", 200*time.Millisecond)
	if p.Check(context.Background()) {
		t.Error("expected false on connection refused")
	}
}
