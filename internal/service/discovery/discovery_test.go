package discovery_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-ai/acc/internal/service/discovery"
	"github.com/meridian-ai/acc/internal/storage"
	"github.com/meridian-ai/acc/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close(ctx)
	tc.Terminate()
	os.Exit(code)
}

// fakeRegistry serves canned documents or errors without a network hop.
type fakeRegistry struct {
	doc discovery.RegistryDocument
	err error
}

func (f *fakeRegistry) Fetch(ctx context.Context) (discovery.RegistryDocument, error) {
	return f.doc, f.err
}

func TestDiscoverySyncCreatesMissingAgents(t *testing.T) {
	ctx := context.Background()

	reg := &fakeRegistry{doc: discovery.RegistryDocument{Agents: []discovery.AgentCard{
		{ID: "r-1", Name: "disc-planner", Role: "Planner", Goal: "Break work into steps", Tools: []string{"plan", "delegate"}},
		{ID: "r-2", Name: "disc-coder", Role: "Coder", Goal: "Write code"},
	}}}
	svc := discovery.New(testDB, reg, 0, testutil.TestLogger())

	svc.Sync(ctx)

	planner, err := testDB.GetAgentByName(ctx, "disc-planner")
	require.NoError(t, err)
	assert.Equal(t, "Planner", planner.Role)
	assert.Contains(t, planner.SystemPrompt, "Auto-registered")

	agents, err := testDB.ListAgents(ctx)
	require.NoError(t, err)
	var tools []string
	for _, a := range agents {
		if a.Name == "disc-planner" {
			for _, tl := range a.Tools {
				tools = append(tools, tl.Name)
			}
		}
	}
	assert.Equal(t, []string{"plan", "delegate"}, tools)

	status := svc.Status()
	assert.Equal(t, 2, status.AgentsFound)
	assert.Equal(t, []string{"disc-planner", "disc-coder"}, status.AgentsSynced)
	assert.False(t, status.LastRun.IsZero())
	assert.Empty(t, status.Error)
}

func TestDiscoverySyncIsIdempotent(t *testing.T) {
	ctx := context.Background()

	reg := &fakeRegistry{doc: discovery.RegistryDocument{Agents: []discovery.AgentCard{
		{ID: "r-3", Name: "disc-reviewer", Role: "Reviewer", Goal: "Check output"},
	}}}
	svc := discovery.New(testDB, reg, 0, testutil.TestLogger())

	svc.Sync(ctx)
	first, err := testDB.GetAgentByName(ctx, "disc-reviewer")
	require.NoError(t, err)

	// A second cycle must not duplicate or overwrite the existing agent.
	reg.doc.Agents[0].Role = "Changed Upstream"
	svc.Sync(ctx)

	second, err := testDB.GetAgentByName(ctx, "disc-reviewer")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Reviewer", second.Role)

	status := svc.Status()
	assert.Equal(t, []string{"disc-reviewer"}, status.AgentsSynced)
}

func TestDiscoverySyncSkipsNamelessEntries(t *testing.T) {
	ctx := context.Background()

	reg := &fakeRegistry{doc: discovery.RegistryDocument{Agents: []discovery.AgentCard{
		{ID: "r-4", Name: "", Role: "Ghost"},
		{ID: "r-5", Name: "disc-named", Role: "Named", Goal: "Exist"},
	}}}
	svc := discovery.New(testDB, reg, 0, testutil.TestLogger())

	svc.Sync(ctx)

	status := svc.Status()
	assert.Equal(t, 2, status.AgentsFound)
	assert.Equal(t, []string{"disc-named"}, status.AgentsSynced)
}

func TestStatusOmitsLastRunBeforeFirstCycle(t *testing.T) {
	svc := discovery.New(testDB, &fakeRegistry{}, 0, testutil.TestLogger())

	raw, err := json.Marshal(svc.Status())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "last_run")

	svc.Sync(context.Background())
	raw, err = json.Marshal(svc.Status())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "last_run")
}

func TestDiscoveryFailureKeepsLastRun(t *testing.T) {
	ctx := context.Background()

	reg := &fakeRegistry{doc: discovery.RegistryDocument{Agents: []discovery.AgentCard{
		{ID: "r-6", Name: "disc-survivor", Role: "Survivor", Goal: "Persist"},
	}}}
	svc := discovery.New(testDB, reg, 0, testutil.TestLogger())

	svc.Sync(ctx)
	good := svc.Status()
	require.False(t, good.LastRun.IsZero())

	reg.err = errors.New("registry down")
	svc.Sync(ctx)

	after := svc.Status()
	assert.Equal(t, good.LastRun, after.LastRun)
	assert.Equal(t, good.AgentsSynced, after.AgentsSynced)
	assert.Contains(t, after.Error, "registry down")
}
