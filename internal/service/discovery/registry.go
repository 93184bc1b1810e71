package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WellKnownPath is the discovery path on the registry, per the Agent Card
// convention.
const WellKnownPath = "/.well-known/agent.json"

// Registry fetch failure classes. Both are non-fatal to the discovery loop.
var (
	ErrUnavailable = errors.New("discovery: registry unavailable")
	ErrMalformed   = errors.New("discovery: malformed registry payload")
)

// AgentCard is one agent entry in the registry document.
type AgentCard struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Role  string   `json:"role"`
	Goal  string   `json:"goal"`
	Tools []string `json:"tools"`
}

// RegistryDocument is the agent card registry response.
type RegistryDocument struct {
	Agents []AgentCard `json:"agents"`
}

// RegistryClient fetches the agent card document from a registry.
type RegistryClient struct {
	baseURL string
	client  *http.Client
}

// NewRegistryClient creates a client for the registry at baseURL.
func NewRegistryClient(baseURL string, timeout time.Duration) *RegistryClient {
	return &RegistryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves and validates the registry document. Network and non-2xx
// failures wrap ErrUnavailable; undecodable or shapeless payloads wrap
// ErrMalformed.
func (c *RegistryClient) Fetch(ctx context.Context) (RegistryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+WellKnownPath, nil)
	if err != nil {
		return RegistryDocument{}, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return RegistryDocument{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RegistryDocument{}, fmt.Errorf("%w: registry returned %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return RegistryDocument{}, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}

	// Decode through an intermediate map so a present-but-wrong-type agents
	// field is malformed rather than silently empty.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return RegistryDocument{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	agentsRaw, ok := raw["agents"]
	if !ok {
		return RegistryDocument{}, fmt.Errorf("%w: missing agents array", ErrMalformed)
	}

	var doc RegistryDocument
	if err := json.Unmarshal(agentsRaw, &doc.Agents); err != nil {
		return RegistryDocument{}, fmt.Errorf("%w: agents is not an array: %w", ErrMalformed, err)
	}
	return doc, nil
}
