package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-ai/acc/internal/model"
)

// InsertUsageLog appends one billable agent action.
func (db *DB) InsertUsageLog(ctx context.Context, log model.UsageLog) (model.UsageLog, error) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO usage_logs (id, agent_id, action, tokens, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ID, log.AgentID, log.Action, log.Tokens, log.CostUsd, log.CreatedAt,
	)
	if err != nil {
		return model.UsageLog{}, fmt.Errorf("storage: insert usage log: %w", err)
	}
	return log, nil
}

// UsageTotals holds the grand totals across all usage logs.
type UsageTotals struct {
	Tokens  int64
	CostUsd float64
}

// GetUsageTotals returns total tokens and cost across all agents.
func (db *DB) GetUsageTotals(ctx context.Context) (UsageTotals, error) {
	var t UsageTotals
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(tokens), 0), COALESCE(SUM(cost_usd), 0) FROM usage_logs`,
	).Scan(&t.Tokens, &t.CostUsd)
	if err != nil {
		return UsageTotals{}, fmt.Errorf("storage: usage totals: %w", err)
	}
	return t, nil
}

// GetUsageByAgent returns the per-agent usage rollup, highest cost first.
func (db *DB) GetUsageByAgent(ctx context.Context) ([]model.AgentUsage, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT u.agent_id, a.name, count(*), COALESCE(SUM(u.tokens), 0), COALESCE(SUM(u.cost_usd), 0)
		FROM usage_logs u JOIN agents a ON a.id = u.agent_id
		GROUP BY u.agent_id, a.name
		ORDER BY SUM(u.cost_usd) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: usage by agent: %w", err)
	}
	defer rows.Close()

	var usage []model.AgentUsage
	for rows.Next() {
		var u model.AgentUsage
		var agentID uuid.UUID
		if err := rows.Scan(&agentID, &u.AgentName, &u.Actions, &u.Tokens, &u.CostUsd); err != nil {
			return nil, fmt.Errorf("storage: scan usage: %w", err)
		}
		u.AgentID = agentID.String()
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
