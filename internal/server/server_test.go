package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-ai/acc/internal/bus"
	"github.com/meridian-ai/acc/internal/model"
	"github.com/meridian-ai/acc/internal/server"
	"github.com/meridian-ai/acc/internal/service/discovery"
	"github.com/meridian-ai/acc/internal/service/lifecycle"
	"github.com/meridian-ai/acc/internal/service/reconcile"
	"github.com/meridian-ai/acc/internal/service/traces"
	"github.com/meridian-ai/acc/internal/storage"
	"github.com/meridian-ai/acc/internal/testutil"
)

var (
	testDB        *storage.DB
	testSrv       *httptest.Server
	testPublisher *capturePublisher
	discoverySvc  *discovery.Service
	testAgent     model.Agent
)

// capturePublisher records published messages instead of hitting a bus.
type capturePublisher struct {
	mu       sync.Mutex
	messages []bus.Message
}

func (p *capturePublisher) Publish(ctx context.Context, msg bus.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturePublisher) drain() []bus.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.messages
	p.messages = nil
	return out
}

type staticRegistry struct {
	doc discovery.RegistryDocument
}

func (s *staticRegistry) Fetch(ctx context.Context) (discovery.RegistryDocument, error) {
	return s.doc, nil
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()

	logger := testutil.TestLogger()
	var err error
	testDB, err = tc.NewTestDB(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	testAgent, err = testDB.CreateAgent(ctx, model.Agent{
		Name: "test-researcher",
		Role: "Researcher",
		Goal: "Find facts",
		Tools: []model.AgentTool{
			{Name: "web_search", Description: "Search the web"},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed agent: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	testPublisher = &capturePublisher{}
	discoverySvc = discovery.New(testDB, &staticRegistry{}, time.Minute, logger)

	srv := server.New(server.ServerConfig{
		DB:           testDB,
		LifecycleMgr: lifecycle.New(testDB, testPublisher, logger),
		TraceSvc:     traces.New(testDB),
		Reconciler:   reconcile.New(testDB, reconcile.ZeroIngress{}),
		DiscoverySvc: discoverySvc,
		RegistryURL:  "http://registry.test:9000",
		Logger:       logger,
		Port:         0,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Version:      "test",
	})
	testSrv = httptest.NewServer(srv.Handler())

	code := m.Run()

	testSrv.Close()
	testDB.Close(ctx)
	tc.Terminate()
	os.Exit(code)
}

// getJSON fetches url and decodes the data envelope into out.
func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		envelope := struct {
			Data json.RawMessage `json:"data"`
		}{}
		require.NoError(t, json.Unmarshal(body, &envelope), "body: %s", body)
		require.NoError(t, json.Unmarshal(envelope.Data, out), "data: %s", envelope.Data)
	}
	return resp
}

func postTaskAction(t *testing.T, taskID, action string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(testSrv.URL+"/tasks/"+taskID+"/"+action, "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func createTask(t *testing.T, desc string, createdAt time.Time, payload model.Document) model.Task {
	t.Helper()
	task, err := testDB.CreateTask(context.Background(), model.Task{
		Description:  desc,
		AgentID:      testAgent.ID,
		CreatedAt:    createdAt,
		InputPayload: payload,
	})
	require.NoError(t, err)
	return task
}

func TestHealthEndpoint(t *testing.T) {
	var health model.HealthResponse
	resp := getJSON(t, testSrv.URL+"/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.Postgres)
	assert.Equal(t, "test", health.Version)
}

func TestRequestIDHeader(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, _ := http.NewRequest(http.MethodGet, testSrv.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, "fixed-id", resp2.Header.Get("X-Request-ID"))
}

func TestListAgents(t *testing.T) {
	var agents model.AgentListResponse
	resp := getJSON(t, testSrv.URL+"/agents", &agents)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.GreaterOrEqual(t, agents.Count, 1)

	var found *model.Agent
	for i := range agents.Agents {
		if agents.Agents[i].Name == "test-researcher" {
			found = &agents.Agents[i]
		}
	}
	require.NotNil(t, found)
	require.Len(t, found.Tools, 1)
	assert.Equal(t, "web_search", found.Tools[0].Name)
}

func TestListTasksAnnotatesZombies(t *testing.T) {
	now := time.Now().UTC()
	fresh := createTask(t, "fresh task", now, nil)
	stale := createTask(t, "stale task", now.Add(-10*time.Minute), nil)
	staler := createTask(t, "staler task", now.Add(-20*time.Minute), nil)

	var tasks model.TaskListResponse
	resp := getJSON(t, testSrv.URL+"/tasks", &tasks)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	flags := map[string]bool{}
	for _, pt := range tasks.Tasks {
		flags[pt.ID.String()] = pt.IsZombie
		require.NotNil(t, pt.Agent, "pending tasks carry the joined agent")
	}
	assert.False(t, flags[fresh.ID.String()])
	assert.True(t, flags[stale.ID.String()])

	var zombies model.ZombieListResponse
	resp = getJSON(t, testSrv.URL+"/tasks/zombies", &zombies)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, zombies.ThresholdMinutes)

	idx := map[string]int{}
	for i, task := range zombies.Tasks {
		idx[task.ID.String()] = i
	}
	_, hasFresh := idx[fresh.ID.String()]
	assert.False(t, hasFresh)
	staleIdx, hasStale := idx[stale.ID.String()]
	require.True(t, hasStale)
	stalerIdx, hasStaler := idx[staler.ID.String()]
	require.True(t, hasStaler)
	assert.Less(t, stalerIdx, staleIdx, "zombies sorted oldest-first")
}

func TestApproveTaskPublishesResume(t *testing.T) {
	task := createTask(t, "needs approval", time.Now().UTC(), model.Document{"traceId": "trace-abc"})
	testPublisher.drain()

	resp, body := postTaskAction(t, task.ID.String(), "approve")
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

	var result struct {
		Data model.Task `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, model.TaskStatusApproved, result.Data.Status)

	msgs := testPublisher.drain()
	require.Len(t, msgs, 1)

	var signal struct {
		Type    string `json:"type"`
		TaskID  string `json:"taskId"`
		AgentID string `json:"agentId"`
		TraceID string `json:"traceId"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].Data, &signal))
	assert.Equal(t, "RESUME", signal.Type)
	assert.Equal(t, task.ID.String(), signal.TaskID)
	assert.Equal(t, testAgent.ID.String(), signal.AgentID)
	assert.Equal(t, "trace-abc", signal.TraceID)
}

func TestRejectTaskPublishesNothing(t *testing.T) {
	task := createTask(t, "needs rejection", time.Now().UTC(), nil)
	testPublisher.drain()

	resp, body := postTaskAction(t, task.ID.String(), "reject")
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

	var result struct {
		Data model.Task `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, model.TaskStatusRejected, result.Data.Status)
	assert.Empty(t, testPublisher.drain())
}

func TestApproveTaskNotFound(t *testing.T) {
	resp, body := postTaskAction(t, uuid.NewString(), "approve")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var apiErr model.APIError
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, model.ErrCodeNotFound, apiErr.Error.Code)
	assert.NotEmpty(t, apiErr.Meta.RequestID)
}

func TestApproveTaskInvalidID(t *testing.T) {
	resp, body := postTaskAction(t, "not-a-uuid", "approve")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var apiErr model.APIError
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, model.ErrCodeInvalidInput, apiErr.Error.Code)
}

func TestApprovedTaskLeavesPendingList(t *testing.T) {
	task := createTask(t, "short lived", time.Now().UTC().Add(-20*time.Minute), nil)

	resp, _ := postTaskAction(t, task.ID.String(), "approve")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var zombies model.ZombieListResponse
	getJSON(t, testSrv.URL+"/tasks/zombies", &zombies)
	for _, z := range zombies.Tasks {
		assert.NotEqual(t, task.ID, z.ID)
	}
}

func TestUsageEndpoint(t *testing.T) {
	ctx := context.Background()
	_, err := testDB.InsertUsageLog(ctx, model.UsageLog{
		AgentID: testAgent.ID, Action: "llm_call", Tokens: 1200, CostUsd: 0.0360,
	})
	require.NoError(t, err)
	_, err = testDB.InsertUsageLog(ctx, model.UsageLog{
		AgentID: testAgent.ID, Action: "tool_call", Tokens: 300, CostUsd: 0.0090,
	})
	require.NoError(t, err)

	var usage model.UsageResponse
	resp := getJSON(t, testSrv.URL+"/usage", &usage)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, usage.TotalTokens, int64(1500))
	assert.Greater(t, usage.TotalCostUsd, 0.0)
	require.NotEmpty(t, usage.ByAgent)

	var mine *model.AgentUsage
	for i := range usage.ByAgent {
		if usage.ByAgent[i].AgentID == testAgent.ID.String() {
			mine = &usage.ByAgent[i]
		}
	}
	require.NotNil(t, mine)
	assert.Equal(t, "test-researcher", mine.AgentName)
	assert.GreaterOrEqual(t, mine.Actions, 2)
}

func TestTracesEndpoint(t *testing.T) {
	ctx := context.Background()
	base := time.Now().UTC()
	for i, tr := range []string{"srv-trace-1", "srv-trace-2"} {
		_, err := testDB.InsertSpan(ctx, model.TraceSpan{
			TraceID:    tr,
			Service:    "agent-core",
			Operation:  "run_step",
			Status:     model.SpanStatusOK,
			DurationMs: 42,
			StartedAt:  base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	var result struct {
		Count  int              `json:"count"`
		Traces []traces.Summary `json:"traces"`
	}
	resp := getJSON(t, testSrv.URL+"/traces?limit=1", &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, result.Count)
	require.Len(t, result.Traces, 1)
	assert.Equal(t, "srv-trace-2", result.Traces[0].TraceID)
}

func TestTracesInvalidLimit(t *testing.T) {
	for _, limit := range []string{"0", "-3", "abc"} {
		resp, err := http.Get(testSrv.URL + "/traces?limit=" + limit)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s body=%s", limit, body)
	}
}

func TestReconciliationEndpoint(t *testing.T) {
	var report reconcile.Report
	resp := getJSON(t, testSrv.URL+"/reconciliation", &report)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// ZeroIngress means resolved work shows up as negative-gap drift.
	resolved := report.Egress.Approved + report.Egress.Rejected
	assert.Equal(t, resolved, report.Reconciliation.TotalResolved)
	assert.Equal(t, -resolved, report.Reconciliation.Gap)
	if resolved > 0 {
		assert.Equal(t, reconcile.StatusDrift, report.Reconciliation.Status)
	}
	assert.Greater(t, report.Cost.TotalTokens, int64(0))
}

func TestDiscoveryEndpoint(t *testing.T) {
	discoverySvc.Sync(context.Background())

	var status struct {
		discovery.Status
		RegistryURL         string `json:"registry_url"`
		PollIntervalSeconds int    `json:"poll_interval_seconds"`
	}
	resp := getJSON(t, testSrv.URL+"/discovery", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, status.LastRun.IsZero())
	assert.Empty(t, status.Error)
	assert.Equal(t, "http://registry.test:9000", status.RegistryURL)
	assert.Equal(t, 60, status.PollIntervalSeconds)
}
