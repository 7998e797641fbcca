// Package ui serves the desktop frontend: a REST surface over a Unix socket
// plus a websocket that streams worker events and lifecycle changes.
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"benchdeck/internal/daemon"
	"benchdeck/internal/gpu"
	"benchdeck/internal/relay"
	"benchdeck/internal/supervisor"
)

const gpuPollInterval = 5 * time.Second

// Server serves the benchdeck frontend API.
type Server struct {
	daemon   *daemon.Daemon
	hub      *Hub
	gpu      *gpu.Observer
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a frontend server backed by the given daemon. ctx bounds
// the background hub and GPU observer. Worker events and state changes start
// flowing to the hub immediately.
func NewServer(ctx context.Context, d *daemon.Daemon) *Server {
	s := &Server{
		daemon: d,
		hub:    newHub(),
		gpu:    gpu.NewObserver(gpuPollInterval),
		logger: slog.With("component", "ui"),
	}
	go s.hub.run(ctx)
	s.gpu.Start(ctx)

	d.SubscribeEvents(func(ev relay.Event) {
		s.hub.Broadcast(map[string]any{"event": ev.Name, "data": ev.Payload})
	})
	d.SubscribeWorkerState(func(st supervisor.State) {
		s.hub.Broadcast(map[string]any{"event": "worker-state", "data": d.Worker()})
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/worker", s.getWorker)
	mux.HandleFunc("GET /v1/worker/logs", s.getWorkerLogs)
	mux.HandleFunc("POST /v1/worker/restart", s.restartWorker)
	mux.HandleFunc("GET /v1/runs", s.listRuns)
	mux.HandleFunc("POST /v1/runs/launch", s.launchRun)
	mux.HandleFunc("POST /v1/runs/validate", s.validateRun)
	mux.HandleFunc("GET /v1/runs/{id}", s.getRun)
	mux.HandleFunc("POST /v1/runs/{id}/delete", s.deleteRun)
	mux.HandleFunc("POST /v1/runs/{id}/update", s.updateRun)
	mux.HandleFunc("POST /v1/runs/{id}/items/{item}/rerun", s.rerunItem)
	mux.HandleFunc("GET /v1/models", s.listModels)
	mux.HandleFunc("POST /v1/jobs/reset-stuck", s.resetStuckJobs)
	mux.HandleFunc("GET /v1/system", s.getSystem)
	mux.HandleFunc("GET /v1/health", s.health)
	mux.HandleFunc("/v1/events", s.hub.handleWS)

	s.server = &http.Server{Handler: mux}
	return s
}

// ListenUnix starts the server on a Unix socket, replacing a stale socket
// file from a previous run.
func (s *Server) ListenUnix(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("frontend API listening", "socket", path)
	return s.server.Serve(ln)
}

// ListenTCP starts the server on a TCP address. Used in development when the
// frontend runs in a browser.
func (s *Server) ListenTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("frontend API listening", "addr", addr)
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the frontend server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) getWorker(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Worker())
}

func (s *Server) getWorkerLogs(w http.ResponseWriter, r *http.Request) {
	n := 200
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid lines parameter"})
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": s.daemon.WorkerLogs(n)})
}

func (s *Server) restartWorker(w http.ResponseWriter, r *http.Request) {
	// Restart spans the stop grace plus the probe loop; run it in the
	// background and let the client follow worker-state events.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.daemon.RestartWorker(ctx); err != nil {
			s.logger.Error("worker restart failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Bridge().ListRuns(r.Context()))
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Bridge().RunDetails(r.Context(), r.PathValue("id")))
}

func (s *Server) launchRun(w http.ResponseWriter, r *http.Request) {
	params, ok := decodeBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.daemon.Bridge().LaunchRun(r.Context(), params))
}

func (s *Server) validateRun(w http.ResponseWriter, r *http.Request) {
	params, ok := decodeBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.daemon.Bridge().ValidateLimits(r.Context(), params))
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Bridge().DeleteRun(r.Context(), r.PathValue("id")))
}

func (s *Server) updateRun(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.daemon.Bridge().UpdateRun(r.Context(), r.PathValue("id"), fields))
}

func (s *Server) rerunItem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Bridge().RerunItem(r.Context(), r.PathValue("id"), r.PathValue("item")))
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Bridge().ListModels(r.Context()))
}

func (s *Server) resetStuckJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Bridge().ResetStuckJobs(r.Context()))
}

// getSystem reports local GPU memory and thermal state. Results collected
// while the machine is throttled are flagged in the frontend.
func (s *Server) getSystem(w http.ResponseWriter, r *http.Request) {
	info := s.gpu.Info()
	writeJSON(w, http.StatusOK, map[string]any{
		"gpu":       info,
		"throttled": info.Throttled(),
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"worker": s.daemon.Worker().State,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var params map[string]any
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return nil, false
		}
	}
	return params, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
