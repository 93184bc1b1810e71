// Package model defines the core domain types for acc.
//
// All types correspond directly to database tables and wire payloads.
// Types use strong typing (UUIDs, time.Time, enums) and avoid interface{}
// wherever possible; the one exception is Document, the schema-less
// key-value payload attached to tasks and trace spans.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Agent is a registered autonomous agent. Agents are created by discovery
// upsert or manual seeding and are never deleted.
type Agent struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"` // Unique; discovery upserts key on it.
	Role         string      `json:"role"`
	Goal         string      `json:"goal"`
	SystemPrompt string      `json:"system_prompt"`
	Tools        []AgentTool `json:"tools"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// AgentTool is one tool capability of an agent. Position preserves the
// declared ordering.
type AgentTool struct {
	ID          uuid.UUID `json:"id"`
	AgentID     uuid.UUID `json:"agent_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Position    int       `json:"position"`
}
