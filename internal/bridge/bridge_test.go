package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"benchdeck/internal/workerapi"
)

func testBridge(t *testing.T, handler http.Handler) *Bridge {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(workerapi.New(srv.URL, time.Second))
}

func TestListRunsWrapsArrayResponse(t *testing.T) {
	b := testBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/runs" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{"id":"r1"},{"id":"r2"}]`))
	}))

	res := b.ListRuns(context.Background())
	if success, _ := res["success"].(bool); !success {
		t.Fatalf("result = %v", res)
	}
	runs, ok := res["runs"].([]any)
	if !ok || len(runs) != 2 {
		t.Errorf("runs = %v", res["runs"])
	}
}

func TestListRunsFoldsErrorIntoResult(t *testing.T) {
	b := testBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		w.Write([]byte("database locked"))
	}))

	res := b.ListRuns(context.Background())
	if success, _ := res["success"].(bool); success {
		t.Fatal("expected success=false")
	}
	errStr, _ := res["error"].(string)
	if errStr == "" {
		t.Error("expected an error string")
	}
}

func TestWorkerDownFoldsTransportError(t *testing.T) {
	b := New(workerapi.New("http://127.0.0.1:1", 200*time.Millisecond))

	res := b.ListModels(context.Background())
	if success, _ := res["success"].(bool); success {
		t.Fatal("expected success=false")
	}
	if res["error"] == "" {
		t.Error("expected an error string")
	}
}

func TestLaunchRunPassesParamsThrough(t *testing.T) {
	var got map[string]any
	b := testBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/runs/launch" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true,"run_id":"r9"}`))
	}))

	res := b.LaunchRun(context.Background(), map[string]any{
		"suite": "mmlu",
		"model": "llama-70b",
		"limit": 100,
	})
	if success, _ := res["success"].(bool); !success {
		t.Fatalf("result = %v", res)
	}
	if res["run_id"] != "r9" {
		t.Errorf("run_id = %v", res["run_id"])
	}
	if got["suite"] != "mmlu" || got["model"] != "llama-70b" {
		t.Errorf("forwarded params = %v", got)
	}
}

func TestWorkerFailureResponsePassedThrough(t *testing.T) {
	b := testBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"model not found"}`))
	}))

	res := b.LaunchRun(context.Background(), map[string]any{"model": "nope"})
	if success, _ := res["success"].(bool); success {
		t.Fatal("expected success=false")
	}
	if res["error"] != "model not found" {
		t.Errorf("error = %v", res["error"])
	}
}

func TestRunDetailsPath(t *testing.T) {
	b := testBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/runs/r1/details" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id":"r1","items":[{"item":"i1","score":0.9}]}`))
	}))

	res := b.RunDetails(context.Background(), "r1")
	if success, _ := res["success"].(bool); !success {
		t.Fatalf("result = %v", res)
	}
	run, ok := res["run"].(map[string]any)
	if !ok || run["id"] != "r1" {
		t.Errorf("run = %v", res["run"])
	}
}

func TestUpdateRunPath(t *testing.T) {
	var got map[string]any
	b := testBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/runs/r1" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true}`))
	}))

	res := b.UpdateRun(context.Background(), "r1", map[string]any{"label": "baseline"})
	if success, _ := res["success"].(bool); !success {
		t.Fatalf("result = %v", res)
	}
	if got["label"] != "baseline" {
		t.Errorf("forwarded fields = %v", got)
	}
}

func TestRerunItemPath(t *testing.T) {
	b := testBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/runs/r1/items/item-42/rerun" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"success":true}`))
	}))

	res := b.RerunItem(context.Background(), "r1", "item-42")
	if success, _ := res["success"].(bool); !success {
		t.Errorf("result = %v", res)
	}
}

func TestDeleteRunEmptyBodySoftFailure(t *testing.T) {
	b := testBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))

	res := b.DeleteRun(context.Background(), "r1")
	if success, _ := res["success"].(bool); success {
		t.Fatal("expected success=false for empty body")
	}
	if res["error"] != "empty response" {
		t.Errorf("error = %v", res["error"])
	}
}
