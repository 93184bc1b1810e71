package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a governed task.
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "PENDING"
	TaskStatusApproved TaskStatus = "APPROVED"
	TaskStatusRejected TaskStatus = "REJECTED"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusApproved, TaskStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s is a final decision state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusApproved || s == TaskStatusRejected
}

// Task is an agent task awaiting or past human review. Status is the only
// field this service mutates: exactly one PENDING → APPROVED/REJECTED
// transition, never back.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	InputPayload Document   `json:"input_payload"`
	AgentID      uuid.UUID  `json:"agent_id"`
	Agent        *Agent     `json:"agent,omitempty"` // Joined on read paths.
	CreatedAt    time.Time  `json:"created_at"`
}

// PendingTask is a Task annotated with the zombie classification for the
// GET /tasks listing.
type PendingTask struct {
	Task
	IsZombie bool `json:"is_zombie"`
}

// Document is a schema-less key-value payload whose shape varies by
// producer. Accessors return an ok flag so absence is explicit.
type Document map[string]any

// String returns the string value at key, with ok=false when the key is
// missing or holds a non-string value.
func (d Document) String(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
