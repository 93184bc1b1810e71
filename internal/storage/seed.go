package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-ai/acc/internal/model"
)

// SeedDemo inserts a small demo dataset for local bring-up: two agents with
// tools, three pending tasks (one stale enough to be flagged as a zombie),
// and a handful of usage logs. No-op when any agent already exists.
func (db *DB) SeedDemo(ctx context.Context) error {
	count, err := db.CountAgents(ctx)
	if err != nil {
		return fmt.Errorf("storage: seed demo: %w", err)
	}
	if count > 0 {
		return nil
	}

	researcher, err := db.CreateAgent(ctx, model.Agent{
		Name: "researcher",
		Role: "Research Analyst",
		Goal: "Gather and summarize sources for open questions",
		Tools: []model.AgentTool{
			{Name: "web_search", Description: "Search the public web"},
			{Name: "fetch_url", Description: "Fetch and extract a page"},
		},
	})
	if err != nil {
		return err
	}

	writer, err := db.CreateAgent(ctx, model.Agent{
		Name: "writer",
		Role: "Report Writer",
		Goal: "Draft reports from research notes",
		Tools: []model.AgentTool{
			{Name: "draft_report", Description: "Produce a structured draft"},
		},
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	seedTasks := []model.Task{
		{Description: "Summarize Q3 incident reports", AgentID: researcher.ID, CreatedAt: now.Add(-2 * time.Minute)},
		{Description: "Draft onboarding guide", AgentID: writer.ID, CreatedAt: now.Add(-1 * time.Minute)},
		// Old enough to show up on the zombie endpoint.
		{Description: "Collect vendor pricing data", AgentID: researcher.ID, CreatedAt: now.Add(-30 * time.Minute)},
	}
	for _, t := range seedTasks {
		if _, err := db.CreateTask(ctx, t); err != nil {
			return err
		}
	}

	seedUsage := []model.UsageLog{
		{AgentID: researcher.ID, Action: "llm_call", Tokens: 1200, CostUsd: 0.0144},
		{AgentID: researcher.ID, Action: "llm_call", Tokens: 860, CostUsd: 0.0103},
		{AgentID: writer.ID, Action: "llm_call", Tokens: 2400, CostUsd: 0.0288},
	}
	for _, u := range seedUsage {
		if _, err := db.InsertUsageLog(ctx, u); err != nil {
			return err
		}
	}

	db.logger.Info("demo data seeded", "agents", 2, "tasks", len(seedTasks))
	return nil
}
