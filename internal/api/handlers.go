package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/artifacts"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/config"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/dataflow"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/executor"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/health"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/runstore"
)

// createAttempts bounds retries when a generated run id collides.
const createAttempts = 3

// Deps are the collaborators the handlers need.
type Deps struct {
	Store    runstore.RunStore
	Launcher *executor.Launcher
	Registry registry.Registry
	Health   *health.Checker

	// Artifacts is optional; nil disables the artifacts endpoint
	Artifacts *dataflow.Service

	Config *config.Config
	Logger *slog.Logger
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	store     runstore.RunStore
	launcher  *executor.Launcher
	registry  registry.Registry
	health    *health.Checker
	artifacts *dataflow.Service
	config    *config.Config
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	newRunID  func() string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{OutputDir: "output"}
	}
	return &Handlers{
		store:     d.Store,
		launcher:  d.Launcher,
		registry:  d.Registry,
		health:    d.Health,
		artifacts: d.Artifacts,
		config:    cfg,
		logger:    logger,
		upgrader:  newUpgrader(cfg.CORSOrigins, logger),
		newRunID:  runstore.NewRunID,
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz liveness endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking the run store.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.AdapterInfo(r.Context())
	if err != nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "runstore unhealthy", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ready",
		"runstore": info,
	})
}

// ModelHealth handles GET /api/health by probing both Ollama endpoints.
func (h *Handlers) ModelHealth(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "health checker not configured", nil)
		return
	}
	h.respondJSON(w, http.StatusOK, h.health.Check(r.Context()))
}

// Warmup handles POST /api/warmup, loading both models.
func (h *Handlers) Warmup(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "health checker not configured", nil)
		return
	}
	h.respondJSON(w, http.StatusOK, h.health.Warmup(r.Context()))
}

// --- Crew Runs ---

// RunRequest is the request body for starting a crew run.
type RunRequest struct {
	Topic string `json:"topic"`
}

// RunResponse is the response body after starting a crew run.
type RunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// StartRun handles POST /api/crew/run. The run executes in the background.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		h.respondError(w, r, http.StatusBadRequest, "topic is required", nil)
		return
	}

	var (
		run *runstore.Run
		err error
	)
	for range createAttempts {
		run, err = h.store.CreateRun(ctx, h.newRunID(), topic)
		if !errors.Is(err, runstore.ErrRunExists) {
			break
		}
	}
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to create run", err)
		return
	}

	if err := h.launcher.Start(run); err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to start run", err)
		return
	}

	h.logger.Info("crew run started",
		slog.String("run_id", run.ID()),
		slog.String("topic", topic),
	)
	h.respondJSON(w, http.StatusOK, RunResponse{RunID: run.ID(), Status: "started"})
}

// GetStatus handles GET /api/crew/status/{run_id}.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, run.Snapshot())
}

// ReportResponse is the body of a ready report.
type ReportResponse struct {
	RunID  string   `json:"run_id"`
	Report string   `json:"report"`
	Charts []string `json:"charts"`
}

// GetReport handles GET /api/crew/report/{run_id}.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	reportPath := run.ReportPath()
	if reportPath == "" {
		writeErrorResponse(w, r, http.StatusConflict, ErrCodeReportNotReady, "Report not ready",
			map[string]interface{}{"status": run.Status()})
		return
	}

	file, err := artifacts.ResolveOutputURL(h.config.OutputDir, reportPath)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "invalid report path", err)
		return
	}
	content, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeErrorResponse(w, r, http.StatusNotFound, ErrCodeReportMissing, "Report file not found", nil)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to read report", err)
		return
	}

	h.respondJSON(w, http.StatusOK, ReportResponse{
		RunID:  run.ID(),
		Report: string(content),
		Charts: run.Charts(),
	})
}

// ListRuns handles GET /api/crew/runs.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context())
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetEvents handles GET /api/crew/events/{run_id}, returning the raw log.
func (h *Handlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	events := run.Bridge().Events()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":   run.ID(),
		"complete": run.Bridge().IsComplete(),
		"events":   events,
	})
}

// ListAgents handles GET /api/crew/agents.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"agents": h.registry.List(),
	})
}

// artifactView is one mirrored artifact with an optional download link.
type artifactView struct {
	*dataflow.ArtifactRef
	URL string `json:"url,omitempty"`
}

// ListArtifacts handles GET /api/crew/artifacts/{run_id}.
func (h *Handlers) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	if h.artifacts == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "artifact store not configured", nil)
		return
	}

	refs, err := h.artifacts.ListRunArtifacts(r.Context(), run.ID())
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list artifacts", err)
		return
	}

	views := make([]artifactView, 0, len(refs))
	for _, ref := range refs {
		v := artifactView{ArtifactRef: ref}
		if url, err := h.artifacts.GetDownloadURL(r.Context(), ref, 15*time.Minute); err == nil {
			v.URL = url
		}
		views = append(views, v)
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":    run.ID(),
		"artifacts": views,
	})
}

// --- Helpers ---

// lookupRun resolves {run_id}; on failure it writes the error and returns false.
func (h *Handlers) lookupRun(w http.ResponseWriter, r *http.Request) (*runstore.Run, bool) {
	runID := mux.Vars(r)["run_id"]
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			writeErrorResponse(w, r, http.StatusNotFound, ErrCodeRunNotFound, "Run not found",
				map[string]interface{}{"run_id": runID})
			return nil, false
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get run", err)
		return nil, false
	}
	return run, true
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	var details map[string]interface{}
	if err != nil {
		details = map[string]interface{}{"cause": err.Error()}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, "error", err, "status", status)
	}
	writeErrorResponse(w, r, status, HTTPStatusToErrorCode(status), message, details)
}
