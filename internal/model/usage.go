package model

import (
	"time"

	"github.com/google/uuid"
)

// UsageLog is one billable agent action. Append-only.
type UsageLog struct {
	ID        uuid.UUID `json:"id"`
	AgentID   uuid.UUID `json:"agent_id"`
	Action    string    `json:"action"`
	Tokens    int64     `json:"tokens"`
	CostUsd   float64   `json:"cost_usd"`
	CreatedAt time.Time `json:"created_at"`
}
