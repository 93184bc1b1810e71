// Package reconcile cross-checks ingress volume against resolved-task
// volume to detect silent drops between the pipeline's entry point and the
// governance decisions recorded here.
package reconcile

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-ai/acc/internal/storage"
)

// Balance labels for the reconciliation section.
const (
	StatusBalanced = "BALANCED"
	StatusDrift    = "DRIFT"
)

// IngressCounts is the volume report of the external ingress collaborator.
// This service only consumes these counts, it does not compute them.
type IngressCounts struct {
	TotalReceived  int `json:"total_received"`
	TotalPublished int `json:"total_published"`
	TotalFailed    int `json:"total_failed"`
}

// Ingress supplies ingress-side counters.
type Ingress interface {
	Counts(ctx context.Context) (IngressCounts, error)
}

// Section is the derived ingress-vs-egress comparison.
type Section struct {
	TotalIngress  int    `json:"total_ingress"`
	TotalResolved int    `json:"total_resolved"`
	Gap           int    `json:"gap"`
	Status        string `json:"status"`
}

// Cost aggregates the usage log.
type Cost struct {
	TotalTokens  int64   `json:"total_tokens"`
	TotalCostUsd float64 `json:"total_cost_usd"`
}

// Report is the full reconciliation report. Stateless; recomputed fresh on
// each query.
type Report struct {
	Ingress        IngressCounts            `json:"ingress"`
	Egress         storage.TaskStatusCounts `json:"egress"`
	Reconciliation Section                  `json:"reconciliation"`
	Cost           Cost                     `json:"cost"`
}

// Engine composes the reconciliation report from the task store, the usage
// log, and the ingress collaborator.
type Engine struct {
	db      *storage.DB
	ingress Ingress
}

// New creates a reconciliation engine.
func New(db *storage.DB, ingress Ingress) *Engine {
	return &Engine{db: db, ingress: ingress}
}

// Compute builds the report. The three reads are independent and run
// concurrently.
func (e *Engine) Compute(ctx context.Context) (Report, error) {
	var (
		ingress IngressCounts
		egress  storage.TaskStatusCounts
		totals  storage.UsageTotals
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ingress, err = e.ingress.Counts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		egress, err = e.db.CountTasksByStatus(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = e.db.GetUsageTotals(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	return Report{
		Ingress:        ingress,
		Egress:         egress,
		Reconciliation: reconcile(ingress, egress),
		Cost: Cost{
			TotalTokens:  totals.Tokens,
			TotalCostUsd: RoundCost(totals.CostUsd),
		},
	}, nil
}

// reconcile derives the gap section. The rule is deterministic: a gap of
// exactly zero is BALANCED, anything else (including negative gaps, which
// mean more resolutions than ingress events) is DRIFT.
func reconcile(ingress IngressCounts, egress storage.TaskStatusCounts) Section {
	resolved := egress.Approved + egress.Rejected
	gap := ingress.TotalReceived - resolved

	status := StatusDrift
	if gap == 0 {
		status = StatusBalanced
	}

	return Section{
		TotalIngress:  ingress.TotalReceived,
		TotalResolved: resolved,
		Gap:           gap,
		Status:        status,
	}
}

// RoundCost rounds a dollar amount to 4 decimal places for reporting.
func RoundCost(usd float64) float64 {
	return math.Round(usd*10000) / 10000
}
