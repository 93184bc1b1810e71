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

const taskColumns = `t.id, t.description, t.status, t.input_payload, t.agent_id, t.created_at,
	a.id, a.name, a.role, a.goal, a.system_prompt, a.created_at, a.updated_at`

func scanTaskWithAgent(row pgx.Row) (model.Task, error) {
	var t model.Task
	var a model.Agent
	if err := row.Scan(
		&t.ID, &t.Description, &t.Status, &t.InputPayload, &t.AgentID, &t.CreatedAt,
		&a.ID, &a.Name, &a.Role, &a.Goal, &a.SystemPrompt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return model.Task{}, err
	}
	t.Agent = &a
	return t, nil
}

// CreateTask inserts a new task. Used by seeding and tests; the production
// ingestion path writes tasks from outside this service.
func (db *DB) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.InputPayload == nil {
		task.InputPayload = model.Document{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO tasks (id, description, status, input_payload, agent_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		task.ID, task.Description, string(task.Status), task.InputPayload, task.AgentID, task.CreatedAt,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("storage: create task: %w", err)
	}
	return task, nil
}

// ListPendingTasks returns all PENDING tasks with their agent joined,
// newest-first.
func (db *DB) ListPendingTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t JOIN agents a ON a.id = t.agent_id
		 WHERE t.status = $1
		 ORDER BY t.created_at DESC`,
		string(model.TaskStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTaskWithAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ListPendingTasksOlderThan returns PENDING tasks created strictly before
// cutoff, oldest-first, so the most-stuck tasks surface first.
func (db *DB) ListPendingTasksOlderThan(ctx context.Context, cutoff time.Time) ([]model.Task, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t JOIN agents a ON a.id = t.agent_id
		 WHERE t.status = $1 AND t.created_at < $2
		 ORDER BY t.created_at ASC`,
		string(model.TaskStatusPending), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list stale pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTaskWithAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus sets a task's status and returns the updated task with
// its agent joined. Returns ErrNotFound when no task has the given id.
// No guard on the current status: re-applying a terminal status is a no-op
// at the data level and the caller decides side-effect semantics.
func (db *DB) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status model.TaskStatus) (model.Task, error) {
	row := db.pool.QueryRow(ctx,
		`WITH updated AS (
			UPDATE tasks SET status = $1 WHERE id = $2
			RETURNING id, description, status, input_payload, agent_id, created_at
		 )
		 SELECT t.id, t.description, t.status, t.input_payload, t.agent_id, t.created_at,
		        a.id, a.name, a.role, a.goal, a.system_prompt, a.created_at, a.updated_at
		 FROM updated t JOIN agents a ON a.id = t.agent_id`,
		string(status), id,
	)
	t, err := scanTaskWithAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, fmt.Errorf("storage: task %s: %w", id, ErrNotFound)
		}
		return model.Task{}, fmt.Errorf("storage: update task status: %w", err)
	}
	return t, nil
}

// TaskStatusCounts holds per-status task totals for reconciliation.
type TaskStatusCounts struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Pending  int `json:"pending"`
}

// CountTasksByStatus returns task totals partitioned by status in a single query.
func (db *DB) CountTasksByStatus(ctx context.Context) (TaskStatusCounts, error) {
	var c TaskStatusCounts
	err := db.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'APPROVED'),
		       count(*) FILTER (WHERE status = 'REJECTED'),
		       count(*) FILTER (WHERE status = 'PENDING')
		FROM tasks`,
	).Scan(&c.Total, &c.Approved, &c.Rejected, &c.Pending)
	if err != nil {
		return TaskStatusCounts{}, fmt.Errorf("storage: count tasks by status: %w", err)
	}
	return c, nil
}
