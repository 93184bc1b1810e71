package model

import "time"

// SpanStatus represents the outcome of a traced operation.
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "OK"
	SpanStatusError SpanStatus = "ERROR"
)

// TraceSpan is one timed unit of work within a distributed trace.
// Append-only; spans sharing a TraceID belong to one request flow.
// A nil ParentID marks a candidate trace root.
type TraceSpan struct {
	ID         string     `json:"id"` // ULID, sortable by creation time.
	TraceID    string     `json:"trace_id"`
	ParentID   *string    `json:"parent_id,omitempty"`
	Service    string     `json:"service"`
	Operation  string     `json:"operation"`
	Status     SpanStatus `json:"status"`
	DurationMs int64      `json:"duration_ms"`
	Metadata   Document   `json:"metadata"`
	StartedAt  time.Time  `json:"started_at"`
	CreatedAt  time.Time  `json:"created_at"` // Storage insert time, not exported to trace views.
}

// SpanView is the public shape of a span inside a trace summary. It drops
// the trace id (implied by the enclosing trace) and storage bookkeeping.
type SpanView struct {
	ID         string     `json:"id"`
	ParentID   *string    `json:"parent_id,omitempty"`
	Service    string     `json:"service"`
	Operation  string     `json:"operation"`
	Status     SpanStatus `json:"status"`
	DurationMs int64      `json:"duration_ms"`
	Metadata   Document   `json:"metadata,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
}

// View re-shapes a span for API output.
func (s TraceSpan) View() SpanView {
	return SpanView{
		ID:         s.ID,
		ParentID:   s.ParentID,
		Service:    s.Service,
		Operation:  s.Operation,
		Status:     s.Status,
		DurationMs: s.DurationMs,
		Metadata:   s.Metadata,
		StartedAt:  s.StartedAt,
	}
}
