package rules_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/topolane/topolane/internal/cloud"
	"github.com/topolane/topolane/internal/engine"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/monitor/rules"
	"github.com/topolane/topolane/internal/store/memory"
)

func buildHubAndSpokes(t *testing.T, hubDegree, totalNodes int) (*engine.Engine, *memory.Store, string) {
	t.Helper()
	s := memory.New()
	e := engine.New(s)

	hub := models.NodeInput{Provider: models.ProviderAWS, Region: "us-east-1", ResourceType: models.ResourceNetwork, NativeID: "hub", Name: "hub", Status: models.StatusRunning}
	nodes := []models.NodeInput{hub}
	hubID := models.NodeID(hub.Provider, hub.Region, hub.ResourceType, hub.NativeID)

	var edges []models.EdgeInput
	for i := 0; i < totalNodes-1; i++ {
		n := models.NodeInput{Provider: models.ProviderAWS, Region: "us-east-1", ResourceType: models.ResourceCompute, NativeID: fmt.Sprintf("spoke-%d", i), Name: fmt.Sprintf("spoke-%d", i), Status: models.StatusRunning}
		nodes = append(nodes, n)
		if i < hubDegree {
			edges = append(edges, models.EdgeInput{
				SourceNodeID:     hubID,
				TargetNodeID:     models.NodeID(n.Provider, n.Region, n.ResourceType, n.NativeID),
				RelationshipType: models.RelDependsOn,
				Confidence:       1,
				DiscoveredVia:    models.DiscoveredAPIField,
			})
		}
	}

	e.RegisterAdapter(cloud.NewStaticAdapter("aws-static", models.ProviderAWS, nodes, edges))
	_, err := e.Sync(t.Context(), nil)
	require.NoError(t, err)

	return e, s, hubID
}

func TestSPOFRuleFiresForHighDegreeHighReachHub(t *testing.T) {
	e, s, hubID := buildHubAndSpokes(t, 5, 10)

	r := rules.NewSPOFRule()
	alerts, err := r.Evaluate(t.Context(), rules.EvalContext{Engine: e, Store: s})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, hubID, alerts[0].ResourceID)
}

func TestSPOFRuleHubWithFiveDependentsIsOneCriticalAlert(t *testing.T) {
	e, s, hubID := buildHubAndSpokes(t, 5, 6)

	r := rules.NewSPOFRule()
	alerts, err := r.Evaluate(t.Context(), rules.EvalContext{Engine: e, Store: s})
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	alert := alerts[0]
	require.Equal(t, rules.CategorySPOF, alert.Category)
	require.Equal(t, rules.SeverityCritical, alert.Severity)
	require.Contains(t, alert.AffectedNodeIDs, hubID)
	reachRatio, ok := alert.Metadata["reachRatio"].(float64)
	require.True(t, ok)
	require.Greater(t, reachRatio, 0.3)
}

func TestSPOFRuleSkipsLowDegreeNode(t *testing.T) {
	e, s, _ := buildHubAndSpokes(t, 2, 10)

	r := rules.NewSPOFRule()
	alerts, err := r.Evaluate(t.Context(), rules.EvalContext{Engine: e, Store: s})
	require.NoError(t, err)
	require.Empty(t, alerts)
}
