package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridian-ai/acc/internal/service/discovery"
	"github.com/meridian-ai/acc/internal/service/lifecycle"
	"github.com/meridian-ai/acc/internal/service/reconcile"
	"github.com/meridian-ai/acc/internal/service/traces"
	"github.com/meridian-ai/acc/internal/storage"
)

// Server is the acc HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	DB           *storage.DB
	LifecycleMgr *lifecycle.Manager
	TraceSvc     *traces.Service
	Reconciler   *reconcile.Engine
	DiscoverySvc *discovery.Service
	RegistryURL  string
	Logger       *slog.Logger

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:           cfg.DB,
		LifecycleMgr: cfg.LifecycleMgr,
		TraceSvc:     cfg.TraceSvc,
		Reconciler:   cfg.Reconciler,
		DiscoverySvc: cfg.DiscoverySvc,
		RegistryURL:  cfg.RegistryURL,
		Logger:       cfg.Logger,
		Version:      cfg.Version,
	})

	mux := http.NewServeMux()

	// Agent registry view.
	mux.HandleFunc("GET /agents", h.HandleListAgents)

	// Task governance. The literal zombies segment takes precedence over
	// the {task_id} wildcard under the mux's most-specific-wins rule.
	mux.HandleFunc("GET /tasks", h.HandleListTasks)
	mux.HandleFunc("GET /tasks/zombies", h.HandleListZombies)
	mux.HandleFunc("POST /tasks/{task_id}/approve", h.HandleApproveTask)
	mux.HandleFunc("POST /tasks/{task_id}/reject", h.HandleRejectTask)

	// Observability views.
	mux.HandleFunc("GET /usage", h.HandleUsage)
	mux.HandleFunc("GET /discovery", h.HandleDiscoveryStatus)
	mux.HandleFunc("GET /traces", h.HandleListTraces)
	mux.HandleFunc("GET /reconciliation", h.HandleReconciliation)

	// Health (no middleware exemptions needed, there is no auth layer).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
