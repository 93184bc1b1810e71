// Package lifecycle owns the PENDING → APPROVED/REJECTED task transition.
//
// Approving a task publishes a resume signal so the suspended executor
// continues; rejecting does not. Both record a trace span for the
// transition. The status update and the span write are two independent
// store operations — if the span write fails after the status update
// committed, the decision stands and the missing span is logged.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-ai/acc/internal/bus"
	"github.com/meridian-ai/acc/internal/model"
	"github.com/meridian-ai/acc/internal/storage"
)

// ServiceName identifies this service in trace spans.
const ServiceName = "acc"

// Span operations recorded for task transitions.
const (
	OperationApprove = "approve_task"
	OperationReject  = "reject_task"
)

// SignalTypeResume is the message type of a resume signal.
const SignalTypeResume = "RESUME"

// payloadTraceIDKey is the key external producers use to embed a trace id
// in a task's input payload.
const payloadTraceIDKey = "traceId"

// ErrPublishFailed wraps resume-signal publish failures. The resume signal
// is essential to the approve contract, so the request fails with it.
var ErrPublishFailed = errors.New("lifecycle: resume publish failed")

// resumeSignal is the wire payload of a resume signal.
type resumeSignal struct {
	Type    string `json:"type"`
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
	TraceID string `json:"traceId"`
}

// Manager performs task lifecycle transitions.
type Manager struct {
	db        *storage.DB
	publisher bus.Publisher
	logger    *slog.Logger
}

// New creates a lifecycle manager.
func New(db *storage.DB, publisher bus.Publisher, logger *slog.Logger) *Manager {
	return &Manager{db: db, publisher: publisher, logger: logger}
}

// Approve sets the task to APPROVED, publishes a resume signal with the
// derived trace id, and records a trace span. Returns the updated task
// with its agent joined. storage.ErrNotFound propagates when the id has
// no row. There is no guard against re-approving a terminal task: the
// full side-effect sequence runs again.
func (m *Manager) Approve(ctx context.Context, taskID uuid.UUID) (model.Task, error) {
	start := time.Now()

	task, err := m.db.UpdateTaskStatus(ctx, taskID, model.TaskStatusApproved)
	if err != nil {
		return model.Task{}, err
	}

	traceID := deriveTraceID(task)

	data, err := json.Marshal(resumeSignal{
		Type:    SignalTypeResume,
		TaskID:  task.ID.String(),
		AgentID: task.AgentID.String(),
		TraceID: traceID,
	})
	if err != nil {
		return model.Task{}, fmt.Errorf("lifecycle: marshal resume signal: %w", err)
	}
	if err := m.publisher.Publish(ctx, bus.Message{
		Data:       data,
		Attributes: map[string]string{payloadTraceIDKey: traceID},
	}); err != nil {
		return model.Task{}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	m.recordSpan(ctx, traceID, OperationApprove, task, start)

	m.logger.Info("task approved",
		"task_id", task.ID, "agent_id", task.AgentID, "trace_id", traceID)
	return task, nil
}

// Reject sets the task to REJECTED and records a trace span. A rejected
// task does not resume execution, so no signal is published.
func (m *Manager) Reject(ctx context.Context, taskID uuid.UUID) (model.Task, error) {
	start := time.Now()

	task, err := m.db.UpdateTaskStatus(ctx, taskID, model.TaskStatusRejected)
	if err != nil {
		return model.Task{}, err
	}

	traceID := deriveTraceID(task)
	m.recordSpan(ctx, traceID, OperationReject, task, start)

	m.logger.Info("task rejected",
		"task_id", task.ID, "agent_id", task.AgentID, "trace_id", traceID)
	return task, nil
}

// deriveTraceID takes the trace id embedded in the task's input payload
// when present, else generates a fresh one so the transition is still
// traceable.
func deriveTraceID(task model.Task) string {
	if tid, ok := task.InputPayload.String(payloadTraceIDKey); ok && tid != "" {
		return tid
	}
	return uuid.NewString()
}

// recordSpan appends the transition span. Best-effort: the decision has
// already committed, so a span-write failure is logged, not returned.
func (m *Manager) recordSpan(ctx context.Context, traceID, operation string, task model.Task, start time.Time) {
	agentName := ""
	if task.Agent != nil {
		agentName = task.Agent.Name
	}
	_, err := m.db.InsertSpan(ctx, model.TraceSpan{
		TraceID:    traceID,
		Service:    ServiceName,
		Operation:  operation,
		Status:     model.SpanStatusOK,
		DurationMs: time.Since(start).Milliseconds(),
		Metadata: model.Document{
			"taskId":    task.ID.String(),
			"agentName": agentName,
		},
		StartedAt: start.UTC(),
	})
	if err != nil {
		m.logger.Warn("transition span not recorded",
			"task_id", task.ID, "operation", operation, "error", err)
	}
}
