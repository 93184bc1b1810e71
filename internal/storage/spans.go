package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/meridian-ai/acc/internal/model"
)

// InsertSpan appends a trace span. Span ids are ULIDs so store order and
// creation order agree without a separate sequence.
func (db *DB) InsertSpan(ctx context.Context, span model.TraceSpan) (model.TraceSpan, error) {
	if span.ID == "" {
		span.ID = ulid.Make().String()
	}
	if span.CreatedAt.IsZero() {
		span.CreatedAt = time.Now().UTC()
	}
	if span.StartedAt.IsZero() {
		span.StartedAt = span.CreatedAt
	}
	if span.Metadata == nil {
		span.Metadata = model.Document{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO trace_spans (id, trace_id, parent_id, service, operation, status, duration_ms, metadata, started_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		span.ID, span.TraceID, span.ParentID, span.Service, span.Operation,
		string(span.Status), span.DurationMs, span.Metadata, span.StartedAt, span.CreatedAt,
	)
	if err != nil {
		return model.TraceSpan{}, fmt.Errorf("storage: insert span: %w", err)
	}
	return span, nil
}

// ListRecentSpans returns the most recent spans, newest-first. Callers
// over-fetch relative to the number of traces they want; uneven
// span-per-trace distribution is absorbed upstream.
func (db *DB) ListRecentSpans(ctx context.Context, limit int) ([]model.TraceSpan, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, trace_id, parent_id, service, operation, status, duration_ms, metadata, started_at, created_at
		 FROM trace_spans
		 ORDER BY started_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list recent spans: %w", err)
	}
	defer rows.Close()

	var spans []model.TraceSpan
	for rows.Next() {
		var s model.TraceSpan
		if err := rows.Scan(
			&s.ID, &s.TraceID, &s.ParentID, &s.Service, &s.Operation,
			&s.Status, &s.DurationMs, &s.Metadata, &s.StartedAt, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan span: %w", err)
		}
		spans = append(spans, s)
	}
	return spans, rows.Err()
}

// CountSpansByOperation returns the number of spans recorded for an
// operation, scoped to one service.
func (db *DB) CountSpansByOperation(ctx context.Context, service, operation string) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trace_spans WHERE service = $1 AND operation = $2`,
		service, operation,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("storage: count spans: %w", err)
	}
	return count, nil
}
