package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/topolane/topolane/internal/engine"
	"github.com/topolane/topolane/internal/governor"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store/memory"
)

func TestQueryNodesToolFiltersByProvider(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.UpsertNodes(t.Context(), []models.NodeInput{
		{Provider: models.ProviderAWS, Region: "us-east-1", ResourceType: models.ResourceStorage, NativeID: "b-1", Name: "bucket", Status: models.StatusRunning},
		{Provider: models.ProviderGCP, Region: "us-central1", ResourceType: models.ResourceStorage, NativeID: "b-2", Name: "bucket-2", Status: models.StatusRunning},
	}))

	tool := NewQueryNodesTool(s)
	result, err := tool.Execute(t.Context(), json.RawMessage(`{"provider":"aws"}`))
	require.NoError(t, err)
	require.True(t, result.Success)

	nodes, ok := result.Data.([]models.Node)
	require.True(t, ok)
	require.Len(t, nodes, 1)
	require.Equal(t, models.ProviderAWS, nodes[0].Provider)
}

func TestGetNodeToolReportsNotFound(t *testing.T) {
	tool := NewGetNodeTool(memory.New())
	result, err := tool.Execute(t.Context(), json.RawMessage(`{"id":"missing"}`))
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "not found")
}

func TestBlastRadiusToolRequiresID(t *testing.T) {
	e := engine.New(memory.New())
	tool := NewBlastRadiusTool(e)
	result, err := tool.Execute(t.Context(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestGetStatsToolReturnsGraphStats(t *testing.T) {
	s := memory.New()
	e := engine.New(s)
	require.NoError(t, s.UpsertNodes(t.Context(), []models.NodeInput{
		{Provider: models.ProviderAWS, Region: "us-east-1", ResourceType: models.ResourceStorage, NativeID: "b-1", Name: "bucket", Status: models.StatusRunning},
	}))

	tool := NewGetStatsTool(e)
	result, err := tool.Execute(t.Context(), nil)
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestPendingRequestsToolReflectsGovernorState(t *testing.T) {
	g := governor.New(memory.New(), governor.WithPolicies(&governor.PredicatePolicy{
		PolicyName: "hold-deletes",
		Applies:    func(req models.ChangeRequest) bool { return req.Action == models.ActionDelete },
		Decide:     func(req models.ChangeRequest) governor.Verdict { return governor.VerdictRequireApproval },
	}))
	_, err := g.Submit(t.Context(), models.ChangeRequest{
		TargetResourceID: "node-1",
		ResourceType:     models.ResourceDatabase,
		Provider:         models.ProviderAWS,
		Action:           models.ActionDelete,
		Initiator:        "alice",
		InitiatorType:    models.InitiatorHuman,
		Description:      "drop instance",
	})
	require.NoError(t, err)

	tool := NewPendingRequestsTool(g)
	result, err := tool.Execute(t.Context(), nil)
	require.NoError(t, err)
	require.True(t, result.Success)

	pending, ok := result.Data.([]models.ChangeRequest)
	require.True(t, ok)
	require.Len(t, pending, 1)
}

func TestAuditTrailToolRequiresTargetResourceID(t *testing.T) {
	tool := NewAuditTrailTool(governor.New(memory.New()))
	result, err := tool.Execute(t.Context(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestBuiltinRegistryOmitsToolsForMissingDependencies(t *testing.T) {
	r := NewBuiltinRegistry(Dependencies{Store: memory.New()})
	_, ok := r.Get("query_nodes")
	require.True(t, ok)
	_, ok = r.Get("get_pending_requests")
	require.False(t, ok)
}
