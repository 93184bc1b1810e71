// Package traces reconstructs causally-related spans into traces.
//
// Spans arrive as a flat recency-ordered window; grouping by trace id plus
// root selection turns them into per-trace summaries with an aggregate
// status. The window over-fetches relative to the requested trace count to
// absorb uneven span-per-trace distribution.
package traces

import (
	"context"

	"github.com/meridian-ai/acc/internal/model"
	"github.com/meridian-ai/acc/internal/storage"
)

// OverfetchFactor is how many spans are fetched per requested trace.
const OverfetchFactor = 5

// Summary is the per-trace aggregate view.
type Summary struct {
	TraceID         string           `json:"trace_id"`
	Root            model.SpanView   `json:"root"`
	Services        []string         `json:"services"`
	Status          model.SpanStatus `json:"status"`
	TotalDurationMs int64            `json:"total_duration_ms"`
	SpanCount       int              `json:"span_count"`
	Spans           []model.SpanView `json:"spans"`
}

// Service correlates recent spans from the trace store.
type Service struct {
	db *storage.DB
}

// New creates a trace correlation service.
func New(db *storage.DB) *Service {
	return &Service{db: db}
}

// Recent returns summaries for the most recent traces, newest-first,
// truncated to limit distinct traces.
func (s *Service) Recent(ctx context.Context, limit int) ([]Summary, error) {
	spans, err := s.db.ListRecentSpans(ctx, limit*OverfetchFactor)
	if err != nil {
		return nil, err
	}
	return Correlate(spans, limit), nil
}

// Correlate groups a recency-ordered span window by trace id and computes a
// summary per trace. Trace order follows first appearance in the window, so
// "most recent traces first" is preserved. Within a trace, spans keep their
// query order.
func Correlate(spans []model.TraceSpan, limit int) []Summary {
	grouped := make(map[string][]model.TraceSpan)
	var order []string
	for _, span := range spans {
		if _, seen := grouped[span.TraceID]; !seen {
			if len(order) == limit {
				// Trace budget exhausted; drop spans of unseen traces but
				// keep collecting for traces already admitted.
				continue
			}
			order = append(order, span.TraceID)
		}
		grouped[span.TraceID] = append(grouped[span.TraceID], span)
	}

	summaries := make([]Summary, 0, len(order))
	for _, traceID := range order {
		summaries = append(summaries, summarize(traceID, grouped[traceID]))
	}
	return summaries
}

// summarize computes the aggregate view for one trace's spans.
func summarize(traceID string, spans []model.TraceSpan) Summary {
	root := rootSpan(spans)

	var services []string
	seen := make(map[string]bool)
	status := model.SpanStatusOK
	views := make([]model.SpanView, len(spans))
	for i, span := range spans {
		if !seen[span.Service] {
			seen[span.Service] = true
			services = append(services, span.Service)
		}
		if span.Status == model.SpanStatusError {
			status = model.SpanStatusError
		}
		views[i] = span.View()
	}

	// The root self-reports end-to-end latency; summing child spans would
	// double-count nested work.
	return Summary{
		TraceID:         traceID,
		Root:            root.View(),
		Services:        services,
		Status:          status,
		TotalDurationMs: root.DurationMs,
		SpanCount:       len(spans),
		Spans:           views,
	}
}

// rootSpan selects the first span with no parent, falling back to the first
// span in query order when trace capture is incomplete.
func rootSpan(spans []model.TraceSpan) model.TraceSpan {
	for _, span := range spans {
		if span.ParentID == nil {
			return span
		}
	}
	return spans[0]
}
