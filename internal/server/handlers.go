package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-ai/acc/internal/model"
	"github.com/meridian-ai/acc/internal/service/discovery"
	"github.com/meridian-ai/acc/internal/service/lifecycle"
	"github.com/meridian-ai/acc/internal/service/reconcile"
	"github.com/meridian-ai/acc/internal/service/traces"
	"github.com/meridian-ai/acc/internal/service/zombie"
	"github.com/meridian-ai/acc/internal/storage"
)

// Trace listing bounds for GET /traces.
const (
	defaultTraceLimit = 20
	maxTraceLimit     = 100
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db           *storage.DB
	lifecycleMgr *lifecycle.Manager
	traceSvc     *traces.Service
	reconciler   *reconcile.Engine
	discoverySvc *discovery.Service
	registryURL  string
	logger       *slog.Logger
	startedAt    time.Time
	version      string
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB           *storage.DB
	LifecycleMgr *lifecycle.Manager
	TraceSvc     *traces.Service
	Reconciler   *reconcile.Engine
	DiscoverySvc *discovery.Service
	RegistryURL  string
	Logger       *slog.Logger
	Version      string
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:           d.DB,
		lifecycleMgr: d.LifecycleMgr,
		traceSvc:     d.TraceSvc,
		reconciler:   d.Reconciler,
		discoverySvc: d.DiscoverySvc,
		registryURL:  d.RegistryURL,
		logger:       d.Logger,
		startedAt:    time.Now(),
		version:      d.Version,
	}
}

// HandleListAgents handles GET /agents.
func (h *Handlers) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.db.ListAgents(r.Context())
	if err != nil {
		h.logger.Error("failed to list agents", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list agents")
		return
	}
	if agents == nil {
		agents = []model.Agent{}
	}
	writeJSON(w, r, http.StatusOK, model.AgentListResponse{
		Count:  len(agents),
		Agents: agents,
	})
}

// HandleListTasks handles GET /tasks. Every pending task is annotated with
// its zombie flag at response time.
func (h *Handlers) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.db.ListPendingTasks(r.Context())
	if err != nil {
		h.logger.Error("failed to list tasks", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list tasks")
		return
	}
	annotated := zombie.Annotate(tasks, time.Now().UTC())
	writeJSON(w, r, http.StatusOK, model.TaskListResponse{
		Count: len(annotated),
		Tasks: annotated,
	})
}

// HandleListZombies handles GET /tasks/zombies.
func (h *Handlers) HandleListZombies(w http.ResponseWriter, r *http.Request) {
	cutoff := zombie.Cutoff(time.Now().UTC())
	tasks, err := h.db.ListPendingTasksOlderThan(r.Context(), cutoff)
	if err != nil {
		h.logger.Error("failed to list zombie tasks", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list zombie tasks")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, r, http.StatusOK, model.ZombieListResponse{
		Count:            len(tasks),
		ThresholdMinutes: int(zombie.Threshold.Minutes()),
		Tasks:            tasks,
	})
}

// HandleApproveTask handles POST /tasks/{task_id}/approve.
func (h *Handlers) HandleApproveTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}

	task, err := h.lifecycleMgr.Approve(r.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "task not found")
		case errors.Is(err, lifecycle.ErrPublishFailed):
			h.logger.Error("resume publish failed", "task_id", taskID, "error", err)
			writeError(w, r, http.StatusBadGateway, model.ErrCodePublishFailed, "task approved but resume signal could not be published")
		default:
			h.logger.Error("failed to approve task", "task_id", taskID, "error", err)
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to approve task")
		}
		return
	}
	writeJSON(w, r, http.StatusOK, task)
}

// HandleRejectTask handles POST /tasks/{task_id}/reject.
func (h *Handlers) HandleRejectTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}

	task, err := h.lifecycleMgr.Reject(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "task not found")
			return
		}
		h.logger.Error("failed to reject task", "task_id", taskID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to reject task")
		return
	}
	writeJSON(w, r, http.StatusOK, task)
}

// HandleUsage handles GET /usage.
func (h *Handlers) HandleUsage(w http.ResponseWriter, r *http.Request) {
	totals, err := h.db.GetUsageTotals(r.Context())
	if err != nil {
		h.logger.Error("failed to get usage totals", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to get usage")
		return
	}
	byAgent, err := h.db.GetUsageByAgent(r.Context())
	if err != nil {
		h.logger.Error("failed to get per-agent usage", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to get usage")
		return
	}
	if byAgent == nil {
		byAgent = []model.AgentUsage{}
	}
	for i := range byAgent {
		byAgent[i].CostUsd = reconcile.RoundCost(byAgent[i].CostUsd)
	}
	writeJSON(w, r, http.StatusOK, model.UsageResponse{
		TotalTokens:  totals.Tokens,
		TotalCostUsd: reconcile.RoundCost(totals.CostUsd),
		ByAgent:      byAgent,
	})
}

// HandleDiscoveryStatus handles GET /discovery.
func (h *Handlers) HandleDiscoveryStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, struct {
		discovery.Status
		RegistryURL         string `json:"registry_url"`
		PollIntervalSeconds int    `json:"poll_interval_seconds"`
	}{
		Status:              h.discoverySvc.Status(),
		RegistryURL:         h.registryURL,
		PollIntervalSeconds: int(h.discoverySvc.Interval().Seconds()),
	})
}

// HandleListTraces handles GET /traces.
func (h *Handlers) HandleListTraces(w http.ResponseWriter, r *http.Request) {
	limit := defaultTraceLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTraceLimit)
	}

	summaries, err := h.traceSvc.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to correlate traces", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list traces")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"count":  len(summaries),
		"traces": summaries,
	})
}

// HandleReconciliation handles GET /reconciliation.
func (h *Handlers) HandleReconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Compute(r.Context())
	if err != nil {
		if errors.Is(err, reconcile.ErrIngressUnavailable) {
			h.logger.Warn("ingress service unavailable", "error", err)
			writeError(w, r, http.StatusBadGateway, model.ErrCodeUpstreamUnavailable, "ingress service unavailable")
			return
		}
		h.logger.Error("failed to compute reconciliation", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to compute reconciliation")
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

// taskIDFromPath parses the task_id path value, writing a 400 on failure.
func taskIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("task_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "task_id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
