// Package server exposes a running search over HTTP, gRPC and websockets,
// and posts the final result to a callback URL.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/inantubek/rmnist/internal/report"
	"github.com/inantubek/rmnist/internal/runner"
	"github.com/inantubek/rmnist/pkg/logger"
)

type HTTPServer struct {
	mux     *http.ServeMux
	runner  *runner.Runner
	summary *report.Summary
	hub     *Hub
}

// NewHTTPServer wires the control endpoints. summary, hub and metrics may be nil;
// their endpoints then answer 412 or are not registered.
func NewHTTPServer(r *runner.Runner, summary *report.Summary, hub *Hub, metrics http.Handler) *HTTPServer {
	s := &HTTPServer{
		mux:     http.NewServeMux(),
		runner:  r,
		summary: summary,
		hub:     hub,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/", s.handleSearch)
	if metrics != nil {
		s.mux.Handle("/metrics", metrics)
	}

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSearch routes /v1/search, /v1/search:stop and the /v1/search/* endpoints
func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/search":
		s.requireMethod(w, r, http.MethodGet, s.handleGetSearch)
	case "/v1/search:stop":
		s.requireMethod(w, r, http.MethodPost, s.handleStopSearch)
	case "/v1/search/best":
		s.requireMethod(w, r, http.MethodGet, s.handleGetBest)
	case "/v1/search/summary":
		s.requireMethod(w, r, http.MethodGet, s.handleGetSummary)
	case "/v1/search/records:watch":
		s.requireMethod(w, r, http.MethodGet, s.handleWatchRecords)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) requireMethod(w http.ResponseWriter, r *http.Request, method string, h http.HandlerFunc) {
	if r.Method != method {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h(w, r)
}

// handleGetSearch handles GET /v1/search
func (s *HTTPServer) handleGetSearch(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"search": s.runner.Status(),
	})
}

// handleGetBest handles GET /v1/search/best
func (s *HTTPServer) handleGetBest(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, bestView(s.runner))
}

// handleGetSummary handles GET /v1/search/summary
func (s *HTTPServer) handleGetSummary(w http.ResponseWriter, _ *http.Request) {
	if s.summary == nil {
		s.writeError(w, http.StatusPreconditionFailed, "summary not available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"summary": s.summary.Report(),
		"cache":   s.runner.Annealer().Cache().Stats(),
	})
}

// handleStopSearch handles POST /v1/search:stop
func (s *HTTPServer) handleStopSearch(w http.ResponseWriter, _ *http.Request) {
	if err := s.runner.Stop(); err != nil {
		if errors.Is(err, runner.ErrNotRunning) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("search stop requested (HTTP)", "run_id", s.runner.ID())
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"search": s.runner.Status(),
	})
}

// handleWatchRecords handles GET /v1/search/records:watch (websocket)
func (s *HTTPServer) handleWatchRecords(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.writeError(w, http.StatusPreconditionFailed, "record stream not available")
		return
	}
	s.hub.ServeWS(w, r)
}

// bestView is the payload shared by the HTTP and gRPC best endpoints
func bestView(r *runner.Runner) map[string]any {
	snap := r.Annealer().Snapshot()
	return map[string]any{
		"run_id":     r.ID(),
		"state":      snap.State,
		"iteration":  snap.Iteration,
		"best":       snap.Best,
		"best_score": snap.BestScore,
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
