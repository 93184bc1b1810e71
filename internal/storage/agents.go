package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-ai/acc/internal/model"
)

// CreateAgent inserts a new agent together with its tool capabilities
// atomically within a single transaction.
func (db *DB) CreateAgent(ctx context.Context, agent model.Agent) (model.Agent, error) {
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Agent{}, fmt.Errorf("storage: begin create agent tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO agents (id, name, role, goal, system_prompt, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		agent.ID, agent.Name, agent.Role, agent.Goal, agent.SystemPrompt,
		agent.CreatedAt, agent.UpdatedAt,
	); err != nil {
		return model.Agent{}, fmt.Errorf("storage: create agent: %w", err)
	}

	for i := range agent.Tools {
		tool := &agent.Tools[i]
		if tool.ID == uuid.Nil {
			tool.ID = uuid.New()
		}
		tool.AgentID = agent.ID
		tool.Position = i
		if _, err := tx.Exec(ctx,
			`INSERT INTO agent_tools (id, agent_id, name, description, position)
			 VALUES ($1, $2, $3, $4, $5)`,
			tool.ID, tool.AgentID, tool.Name, tool.Description, tool.Position,
		); err != nil {
			return model.Agent{}, fmt.Errorf("storage: create agent tool: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Agent{}, fmt.Errorf("storage: commit create agent tx: %w", err)
	}
	return agent, nil
}

// GetAgentByID retrieves an agent by its UUID, without tools.
func (db *DB) GetAgentByID(ctx context.Context, id uuid.UUID) (model.Agent, error) {
	var a model.Agent
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, role, goal, system_prompt, created_at, updated_at
		 FROM agents WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Role, &a.Goal, &a.SystemPrompt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Agent{}, fmt.Errorf("storage: agent %s: %w", id, ErrNotFound)
		}
		return model.Agent{}, fmt.Errorf("storage: get agent: %w", err)
	}
	return a, nil
}

// GetAgentByName retrieves an agent by its unique name, without tools.
// Discovery uses this as a name-keyed existence check.
func (db *DB) GetAgentByName(ctx context.Context, name string) (model.Agent, error) {
	var a model.Agent
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, role, goal, system_prompt, created_at, updated_at
		 FROM agents WHERE name = $1`, name,
	).Scan(&a.ID, &a.Name, &a.Role, &a.Goal, &a.SystemPrompt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Agent{}, fmt.Errorf("storage: agent %q: %w", name, ErrNotFound)
		}
		return model.Agent{}, fmt.Errorf("storage: get agent by name: %w", err)
	}
	return a, nil
}

// ListAgents returns all agents with their tools attached, ordered by
// creation time. Tools preserve their declared position ordering.
func (db *DB) ListAgents(ctx context.Context) ([]model.Agent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, role, goal, system_prompt, created_at, updated_at
		 FROM agents ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list agents: %w", err)
	}
	defer rows.Close()

	var agents []model.Agent
	byID := make(map[uuid.UUID]int)
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Role, &a.Goal, &a.SystemPrompt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan agent: %w", err)
		}
		a.Tools = []model.AgentTool{}
		byID[a.ID] = len(agents)
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list agents: %w", err)
	}
	if len(agents) == 0 {
		return agents, nil
	}

	toolRows, err := db.pool.Query(ctx,
		`SELECT id, agent_id, name, description, position
		 FROM agent_tools ORDER BY agent_id, position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list agent tools: %w", err)
	}
	defer toolRows.Close()

	for toolRows.Next() {
		var t model.AgentTool
		if err := toolRows.Scan(&t.ID, &t.AgentID, &t.Name, &t.Description, &t.Position); err != nil {
			return nil, fmt.Errorf("storage: scan agent tool: %w", err)
		}
		if idx, ok := byID[t.AgentID]; ok {
			agents[idx].Tools = append(agents[idx].Tools, t)
		}
	}
	return agents, toolRows.Err()
}

// CountAgents returns the number of registered agents.
func (db *DB) CountAgents(ctx context.Context) (int, error) {
	var count int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("storage: count agents: %w", err)
	}
	return count, nil
}
