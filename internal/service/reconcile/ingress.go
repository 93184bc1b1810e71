package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrIngressUnavailable marks ingress fetch failures so callers can report
// the upstream as down rather than the report as broken.
var ErrIngressUnavailable = errors.New("reconcile: ingress unavailable")

// HTTPIngress fetches ingress counters from the ingress service's stats
// endpoint.
type HTTPIngress struct {
	baseURL string
	client  *http.Client
}

// NewHTTPIngress creates an ingress client for the given base URL.
func NewHTTPIngress(baseURL string, timeout time.Duration) *HTTPIngress {
	return &HTTPIngress{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Counts fetches the current ingress counters.
func (i *HTTPIngress) Counts(ctx context.Context) (IngressCounts, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+"/stats", nil)
	if err != nil {
		return IngressCounts{}, fmt.Errorf("reconcile: build ingress request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return IngressCounts{}, fmt.Errorf("%w: %w", ErrIngressUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return IngressCounts{}, fmt.Errorf("%w: stats returned %d", ErrIngressUnavailable, resp.StatusCode)
	}

	var counts IngressCounts
	if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
		return IngressCounts{}, fmt.Errorf("%w: decode counts: %w", ErrIngressUnavailable, err)
	}
	return counts, nil
}

// ZeroIngress reports all-zero counters. Used when no ingress service is
// configured; the report then shows pure egress-side drift.
type ZeroIngress struct{}

// Counts returns zero counters.
func (ZeroIngress) Counts(context.Context) (IngressCounts, error) {
	return IngressCounts{}, nil
}
