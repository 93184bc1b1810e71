package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodePublishFailed       = "PUBLISH_FAILED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// AgentListResponse is the response for GET /agents.
type AgentListResponse struct {
	Count  int     `json:"count"`
	Agents []Agent `json:"agents"`
}

// TaskListResponse is the response for GET /tasks.
type TaskListResponse struct {
	Count int           `json:"count"`
	Tasks []PendingTask `json:"tasks"`
}

// ZombieListResponse is the response for GET /tasks/zombies.
type ZombieListResponse struct {
	Count            int    `json:"count"`
	ThresholdMinutes int    `json:"threshold_minutes"`
	Tasks            []Task `json:"tasks"`
}

// AgentUsage is the per-agent rollup in the usage report.
type AgentUsage struct {
	AgentID   string  `json:"agent_id"`
	AgentName string  `json:"agent_name"`
	Actions   int     `json:"actions"`
	Tokens    int64   `json:"tokens"`
	CostUsd   float64 `json:"cost_usd"`
}

// UsageResponse is the response for GET /usage.
type UsageResponse struct {
	TotalTokens  int64        `json:"total_tokens"`
	TotalCostUsd float64      `json:"total_cost_usd"`
	ByAgent      []AgentUsage `json:"by_agent"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Uptime   int64  `json:"uptime_seconds"`
}
