// Package gateway exposes the engine over a small HTTP control plane:
// run submission, approval resolution, run status, configured points,
// health, and Prometheus metrics.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/overseer/internal/orchestrator"
	"github.com/haasonsaas/overseer/internal/scheduler"
	"github.com/haasonsaas/overseer/pkg/models"
)

const maxBodySize = 1 << 20

// Config assembles the server's collaborators.
type Config struct {
	// Addr is the host:port to bind.
	Addr string

	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler

	// Registry gathers the metrics exposed at /metrics. Nil falls back
	// to the default gatherer.
	Registry *prometheus.Registry

	Logger *slog.Logger
}

// Server is the control-plane HTTP server.
type Server struct {
	cfg    Config
	logger *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New creates the server. Start binds the listener.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "gateway")
	}
	return &Server{cfg: cfg, logger: logger}
}

// Handler returns the routed handler. Exported for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/runs", s.handleSubmitRun)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRunStatus)
	mux.HandleFunc("POST /api/runs/{id}/cancel", s.handleCancelRun)
	mux.HandleFunc("POST /api/approvals/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/approvals/{id}/reject", s.handleReject)
	mux.HandleFunc("GET /api/points", s.handlePoints)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	if s.cfg.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Registry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.logger.Info("control plane listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// RunRequest submits a task for orchestration.
type RunRequest struct {
	TaskDescription string         `json:"task_description"`
	AgentRole       string         `json:"agent_role"`
	UserID          string         `json:"user_id"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// RunResponse returns the run ID with the state snapshot.
type RunResponse struct {
	RunID string                `json:"run_id"`
	State *models.WorkflowState `json:"state"`
}

// ResolveRequest carries the approver's identity and reasoning.
type ResolveRequest struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason"`
}

// CancelRequest carries the cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// PointInfo describes one configured checking point.
type PointInfo struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	Enabled           bool   `json:"enabled"`
	Priority          int    `json:"priority"`
	Schedule          string `json:"schedule,omitempty"`
	Interval          string `json:"interval,omitempty"`
	AgentRole         string `json:"agent_role,omitempty"`
	AIWorkflowEnabled bool   `json:"ai_workflow_enabled"`
}

// PointsResponse lists the configured points and the dispatch backlog.
type PointsResponse struct {
	Points     []PointInfo `json:"points"`
	QueueDepth int         `json:"queue_depth"`
}

func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TaskDescription) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "task_description is required"})
		return
	}

	runID, state, err := s.cfg.Orchestrator.Run(r.Context(), models.ExecutionContext{
		TaskDescription: req.TaskDescription,
		AgentRole:       req.AgentRole,
		UserID:          req.UserID,
		Metadata:        req.Metadata,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{RunID: runID, State: state})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	state := s.cfg.Orchestrator.Status(r.PathValue("id"))
	if state == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	state := s.cfg.Orchestrator.Cancel(r.PathValue("id"), req.Reason)
	if state == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.resolveApproval(w, r, true)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.resolveApproval(w, r, false)
}

func (s *Server) resolveApproval(w http.ResponseWriter, r *http.Request, approve bool) {
	var req ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")

	var state *models.WorkflowState
	if approve {
		state = s.cfg.Orchestrator.Approve(id, req.Approver, req.Reason)
	} else {
		state = s.cfg.Orchestrator.Reject(id, req.Approver, req.Reason)
	}
	if state == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "approval not found"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	resp := PointsResponse{Points: []PointInfo{}}
	if s.cfg.Scheduler != nil {
		for _, e := range s.cfg.Scheduler.Entries() {
			cfg := e.Point.Config()
			info := PointInfo{
				Name:              e.Point.Name(),
				Type:              e.Point.Type(),
				Enabled:           cfg.Enabled,
				Priority:          cfg.Priority,
				Schedule:          e.Schedule,
				AgentRole:         cfg.AgentRole,
				AIWorkflowEnabled: cfg.AIWorkflowEnabled,
			}
			if e.Schedule == "" {
				info.Interval = e.Interval.String()
			}
			resp.Points = append(resp.Points, info)
		}
		resp.QueueDepth = s.cfg.Scheduler.QueueDepth()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "request too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Warn("encode response", "error", err)
	}
}
