// Package bridge exposes the worker's benchmark operations as commands with
// a uniform result shape. Every operation returns a JSON-style object with a
// success flag; failures of any kind are folded into {success:false, error}
// rather than surfaced as Go errors, so callers render one shape.
package bridge

import (
	"context"
	"log/slog"

	"benchdeck/internal/workerapi"
)

// Result is the uniform command outcome. Successful operations carry the
// worker's response object as-is (it includes its own success flag); failed
// ones carry success=false plus an error string.
type Result map[string]any

// Bridge translates commands into worker API calls.
type Bridge struct {
	client *workerapi.Client
	logger *slog.Logger
}

// New creates a bridge over the given worker client.
func New(client *workerapi.Client) *Bridge {
	return &Bridge{
		client: client,
		logger: slog.With("component", "bridge"),
	}
}

// failure folds an operation error into the uniform result shape.
func (b *Bridge) failure(op string, err error) Result {
	b.logger.Warn("command failed", "op", op, "error", err)
	return Result{"success": false, "error": err.Error()}
}

// wrap lifts a bare worker response (which may be an array or a non-object)
// into the uniform shape.
func wrap(key string, v any) Result {
	if obj, ok := v.(map[string]any); ok {
		if _, has := obj["success"]; has {
			return Result(obj)
		}
	}
	return Result{"success": true, key: v}
}

// ListRuns returns all benchmark runs known to the worker.
func (b *Bridge) ListRuns(ctx context.Context) Result {
	v, err := b.client.GetJSON(ctx, "/api/runs")
	if err != nil {
		return b.failure("list-runs", err)
	}
	return wrap("runs", v)
}

// RunDetails returns the full record for one run, including per-item results.
func (b *Bridge) RunDetails(ctx context.Context, runID string) Result {
	v, err := b.client.GetJSON(ctx, "/api/runs/"+runID+"/details")
	if err != nil {
		return b.failure("run-details", err)
	}
	return wrap("run", v)
}

// LaunchRun asks the worker to start a new benchmark run. params is passed
// through verbatim (suite, model, limits, sampling settings).
func (b *Bridge) LaunchRun(ctx context.Context, params map[string]any) Result {
	res, err := b.client.PostJSON(ctx, "/api/runs/launch", params)
	if err != nil {
		return b.failure("launch-run", err)
	}
	return Result(res)
}

// DeleteRun removes a run and its stored results.
func (b *Bridge) DeleteRun(ctx context.Context, runID string) Result {
	res, err := b.client.PostJSON(ctx, "/api/runs/"+runID+"/delete", nil)
	if err != nil {
		return b.failure("delete-run", err)
	}
	return Result(res)
}

// UpdateRun patches mutable fields of a run (label, notes, pinned flag).
func (b *Bridge) UpdateRun(ctx context.Context, runID string, fields map[string]any) Result {
	res, err := b.client.PostJSON(ctx, "/api/runs/"+runID, fields)
	if err != nil {
		return b.failure("update-run", err)
	}
	return Result(res)
}

// ValidateLimits asks the worker to check launch parameters without starting
// anything.
func (b *Bridge) ValidateLimits(ctx context.Context, params map[string]any) Result {
	res, err := b.client.PostJSON(ctx, "/api/runs/validate", params)
	if err != nil {
		return b.failure("validate-limits", err)
	}
	return Result(res)
}

// ListModels returns the models the worker can currently serve.
func (b *Bridge) ListModels(ctx context.Context) Result {
	v, err := b.client.GetJSON(ctx, "/api/models")
	if err != nil {
		return b.failure("list-models", err)
	}
	return wrap("models", v)
}

// ResetStuckJobs clears jobs the worker believes are wedged mid-run.
func (b *Bridge) ResetStuckJobs(ctx context.Context) Result {
	res, err := b.client.PostJSON(ctx, "/api/jobs/reset-stuck", nil)
	if err != nil {
		return b.failure("reset-stuck", err)
	}
	return Result(res)
}

// RerunItem re-executes a single item of an existing run.
func (b *Bridge) RerunItem(ctx context.Context, runID, itemID string) Result {
	res, err := b.client.PostJSON(ctx, "/api/runs/"+runID+"/items/"+itemID+"/rerun", nil)
	if err != nil {
		return b.failure("rerun-item", err)
	}
	return Result(res)
}
