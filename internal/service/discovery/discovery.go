package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/meridian-ai/acc/internal/model"
	"github.com/meridian-ai/acc/internal/storage"
	"github.com/meridian-ai/acc/internal/telemetry"
)

var meter = telemetry.Meter("acc/discovery")

// Status is a snapshot of the most recent discovery cycle. A successful
// cycle replaces the whole snapshot; a failed cycle only records Error and
// keeps LastRun from the last success.
type Status struct {
	LastRun      time.Time `json:"last_run,omitzero"`
	AgentsFound  int       `json:"agents_found"`
	AgentsSynced []string  `json:"agents_synced"`
	Error        string    `json:"error,omitempty"`
}

// Fetcher retrieves the registry document. Satisfied by RegistryClient.
type Fetcher interface {
	Fetch(ctx context.Context) (RegistryDocument, error)
}

// Service polls the agent registry and syncs discovered agents into storage.
type Service struct {
	db       *storage.DB
	registry Fetcher
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	status Status
}

// New creates a discovery service polling registry every interval.
func New(db *storage.DB, registry Fetcher, interval time.Duration, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// Interval returns the configured polling interval.
func (s *Service) Interval() time.Duration {
	return s.interval
}

// Status returns the latest discovery snapshot.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Run polls once immediately, then on every interval tick until ctx is
// cancelled. Cycle failures are logged and surfaced through Status, never
// returned.
func (s *Service) Run(ctx context.Context) {
	s.Sync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("discovery loop stopped")
			return
		case <-ticker.C:
			s.Sync(ctx)
		}
	}
}

// Sync performs a single discovery cycle: fetch the registry document and
// create any agents not yet known by name. Existing agents are never
// modified.
func (s *Service) Sync(ctx context.Context) {
	doc, err := s.registry.Fetch(ctx)
	if err != nil {
		s.logger.Warn("discovery cycle failed", "error", err)
		recordCycle(ctx, "failure")
		s.mu.Lock()
		s.status.Error = err.Error()
		s.mu.Unlock()
		return
	}

	synced := make([]string, 0, len(doc.Agents))
	for _, card := range doc.Agents {
		if card.Name == "" {
			s.logger.Warn("skipping registry entry without name", "id", card.ID)
			continue
		}
		if err := s.syncAgent(ctx, card); err != nil {
			s.logger.Error("failed to sync agent", "agent", card.Name, "error", err)
			continue
		}
		synced = append(synced, card.Name)
	}

	s.mu.Lock()
	s.status = Status{
		LastRun:      time.Now().UTC(),
		AgentsFound:  len(doc.Agents),
		AgentsSynced: synced,
	}
	s.mu.Unlock()

	recordCycle(ctx, "success")
	s.logger.Info("discovery cycle complete", "found", len(doc.Agents), "synced", len(synced))
}

// recordCycle counts discovery cycles by outcome (best-effort, instruments
// lazily created).
func recordCycle(ctx context.Context, outcome string) {
	if counter, err := meter.Int64Counter("discovery.cycles"); err == nil {
		counter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

// syncAgent creates the agent if it is not already known by name. Known
// agents are left untouched; local state wins over the registry.
func (s *Service) syncAgent(ctx context.Context, card AgentCard) error {
	_, err := s.db.GetAgentByName(ctx, card.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("discovery: lookup agent %q: %w", card.Name, err)
	}

	agent := model.Agent{
		Name:         card.Name,
		Role:         card.Role,
		Goal:         card.Goal,
		SystemPrompt: fmt.Sprintf("Auto-registered from registry. Role: %s. Goal: %s.", card.Role, card.Goal),
	}
	for i, tool := range card.Tools {
		agent.Tools = append(agent.Tools, model.AgentTool{
			Name:     tool,
			Position: i,
		})
	}

	if _, err := s.db.CreateAgent(ctx, agent); err != nil {
		return fmt.Errorf("discovery: create agent %q: %w", card.Name, err)
	}
	s.logger.Info("registered new agent", "agent", card.Name, "role", card.Role)
	return nil
}
