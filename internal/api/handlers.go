// Package api provides the HTTP invocation boundary for the worker.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/komojini/runpod-worker-comfy/internal/comfy"
	"github.com/komojini/runpod-worker-comfy/internal/config"
	"github.com/komojini/runpod-worker-comfy/internal/jobstore"
	"github.com/komojini/runpod-worker-comfy/internal/worker"
	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

// Runner executes one job and always returns a well-formed envelope.
type Runner interface {
	Run(ctx context.Context, req *worker.JobRequest) *types.ResultEnvelope
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	runner Runner
	client *comfy.Client
	store  jobstore.Store
	config *config.Config
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(runner Runner, client *comfy.Client, store jobstore.Store, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		runner: runner,
		client: client,
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking the generation server and
// the job store.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.client != nil {
		if err := h.client.WaitReady(ctx, 1, 0); err != nil {
			h.respondError(w, http.StatusServiceUnavailable, "generation server unreachable", err)
			return
		}
	}

	resp := map[string]interface{}{"status": "ready"}
	if h.store != nil {
		info, err := h.store.AdapterInfo(ctx)
		if err != nil {
			h.respondError(w, http.StatusServiceUnavailable, "jobstore unhealthy", err)
			return
		}
		resp["jobstore"] = info
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// --- Invocation ---

// RunInput carries the workflow and per-job options. The legacy
// "comfy_input" key is accepted as an alias for "workflow".
type RunInput struct {
	Workflow   json.RawMessage `json:"workflow,omitempty"`
	ComfyInput json.RawMessage `json:"comfy_input,omitempty"`

	// Timeout overrides the default job deadline, in seconds.
	Timeout int `json:"timeout,omitempty"`
}

// RunRequest is the POST /run body.
type RunRequest struct {
	ID    string   `json:"id,omitempty"`
	Input RunInput `json:"input"`
}

// Run handles POST /run. The response is always a result envelope; job
// failures are reported inside it with HTTP 200, only an unreadable
// request produces a 4xx.
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest,
			types.ErrorEnvelope(req.ID, types.CodeInvalidWorkflow, "invalid request body: "+err.Error()))
		return
	}

	raw := req.Input.Workflow
	if len(raw) == 0 {
		raw = req.Input.ComfyInput
	}
	if len(raw) == 0 {
		h.respondJSON(w, http.StatusBadRequest,
			types.ErrorEnvelope(req.ID, types.CodeInvalidWorkflow, "input.workflow is required"))
		return
	}

	wf, err := types.DecodeWorkflow(raw)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest,
			types.ErrorEnvelope(req.ID, types.CodeInvalidWorkflow, err.Error()))
		return
	}

	jobReq := &worker.JobRequest{
		ID:       req.ID,
		Workflow: wf,
		Timeout:  time.Duration(req.Input.Timeout) * time.Second,
	}

	env := h.runner.Run(r.Context(), jobReq)
	h.respondJSON(w, http.StatusOK, env)
}

// --- Job Records ---

// ListJobs handles GET /api/v1/jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ids, err := h.store.List(ctx)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs", err)
		return
	}

	info, err := h.store.AdapterInfo(ctx)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to get store info", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  ids,
		"store": info,
	})
}

// GetJob handles GET /api/v1/jobs/{id}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := mux.Vars(r)["id"]

	rec, err := h.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			h.respondError(w, http.StatusNotFound, "job not found", err)
			return
		}
		h.respondError(w, http.StatusInternalServerError, "failed to get job", err)
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

// --- Helper Methods ---

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string, err error) {
	h.logger.Error(message, "error", err, "status", status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   message,
		"details": err.Error(),
	})
}
