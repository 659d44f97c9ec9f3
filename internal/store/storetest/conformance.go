// Package storetest holds the conformance suite every Store backend must
// pass (spec §8). A backend registers itself by calling RunConformance
// from its own _test.go file with a constructor for a fresh, empty store.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/topolane/topolane/internal/apierr"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

// NewStoreFunc constructs a fresh, empty Store for one test case. Backends
// that need teardown should register it with t.Cleanup inside this func.
type NewStoreFunc func(t *testing.T) store.Store

// RunConformance exercises every invariant and boundary behavior spec §8
// names, against the store built by newStore.
func RunConformance(t *testing.T, newStore NewStoreFunc) {
	t.Run("edge referential integrity", func(t *testing.T) { testDanglingEdge(t, newStore) })
	t.Run("cascade delete", func(t *testing.T) { testCascadeDelete(t, newStore) })
	t.Run("change monotonicity", func(t *testing.T) { testChangeMonotonicity(t, newStore) })
	t.Run("bfs bounds and termination", func(t *testing.T) { testNeighborsBounds(t, newStore) })
	t.Run("full pagination exactly once", func(t *testing.T) { testFullPagination(t, newStore) })
	t.Run("idempotent upsert", func(t *testing.T) { testIdempotentUpsert(t, newStore) })
	t.Run("delete then reupsert", func(t *testing.T) { testDeleteReupsert(t, newStore) })
	t.Run("cursor validation", func(t *testing.T) { testCursorValidation(t, newStore) })
	t.Run("limit clamping", func(t *testing.T) { testLimitClamping(t, newStore) })
}

func vmNode(name, nativeID string) models.NodeInput {
	return models.NodeInput{
		Provider:     models.ProviderAWS,
		Account:      "acct-1",
		Region:       "us-east-1",
		ResourceType: models.ResourceCompute,
		NativeID:     nativeID,
		Name:         name,
		Status:       models.StatusRunning,
		Tags:         map[string]string{},
		Owner:        "team-infra",
	}
}

func testDanglingEdge(t *testing.T, newStore NewStoreFunc) {
	s := newStore(t)
	ctx := context.Background()

	err := s.UpsertEdges(ctx, []models.EdgeInput{{
		SourceNodeID:     "missing-a",
		TargetNodeID:     "missing-b",
		RelationshipType: models.RelDependsOn,
		Confidence:       1,
		DiscoveredVia:    models.DiscoveredAPIField,
	}})
	require.Error(t, err)
	kind, ok := apierr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, apierr.KindDanglingEdge, kind)
}

func testCascadeDelete(t *testing.T, newStore NewStoreFunc) {
	s := newStore(t)
	ctx := context.Background()

	a := vmNode("a", "i-a")
	b := vmNode("b", "i-b")
	require.NoError(t, s.UpsertNodes(ctx, []models.NodeInput{a, b}))

	aID := models.NodeID(a.Provider, a.Region, a.ResourceType, a.NativeID)
	bID := models.NodeID(b.Provider, b.Region, b.ResourceType, b.NativeID)

	require.NoError(t, s.UpsertEdges(ctx, []models.EdgeInput{{
		SourceNodeID:     aID,
		TargetNodeID:     bID,
		RelationshipType: models.RelDependsOn,
		Confidence:       1,
		DiscoveredVia:    models.DiscoveredAPIField,
	}}))

	require.NoError(t, s.DeleteNode(ctx, aID))

	edges, err := s.GetEdgesForNode(ctx, aID, store.DirectionBoth)
	require.NoError(t, err)
	require.Empty(t, edges)

	edges, err = s.GetEdgesForNode(ctx, bID, store.DirectionBoth)
	require.NoError(t, err)
	for _, e := range edges {
		require.NotEqual(t, aID, e.SourceNodeID)
		require.NotEqual(t, aID, e.TargetNodeID)
	}
}

func testChangeMonotonicity(t *testing.T, newStore NewStoreFunc) {
	s := newStore(t)
	ctx := context.Background()

	n := vmNode("a", "i-a")
	require.NoError(t, s.UpsertNodes(ctx, []models.NodeInput{n}))
	id := models.NodeID(n.Provider, n.Region, n.ResourceType, n.NativeID)

	n.Name = "a-renamed"
	require.NoError(t, s.UpsertNodes(ctx, []models.NodeInput{n}))
	n.Name = "a-renamed-again"
	require.NoError(t, s.UpsertNodes(ctx, []models.NodeInput{n}))

	timeline, err := s.GetNodeTimeline(ctx, id, 0)
	require.NoError(t, err)
	require.True(t, len(timeline) >= 2)
	for i := 1; i < len(timeline); i++ {
		require.True(t, !timeline[i-1].DetectedAt.Before(timeline[i].DetectedAt))
	}
}

func testNeighborsBounds(t *testing.T, newStore NewStoreFunc) {
	s := newStore(t)
	ctx := context.Background()

	names := []string{"a", "b", "c", "d"}
	var inputs []models.NodeInput
	for _, n := range names {
		inputs = append(inputs, vmNode(n, "i-"+n))
	}
	require.NoError(t, s.UpsertNodes(ctx, inputs))

	idOf := func(name string) string {
		return models.NodeID(models.ProviderAWS, "us-east-1", models.ResourceCompute, "i-"+name)
	}

	require.NoError(t, s.UpsertEdges(ctx, []models.EdgeInput{
		{SourceNodeID: idOf("a"), TargetNodeID: idOf("b"), RelationshipType: models.RelDependsOn, Confidence: 1, DiscoveredVia: models.DiscoveredAPIField},
		{SourceNodeID: idOf("b"), TargetNodeID: idOf("c"), RelationshipType: models.RelDependsOn, Confidence: 1, DiscoveredVia: models.DiscoveredAPIField},
		{SourceNodeID: idOf("c"), TargetNodeID: idOf("d"), RelationshipType: models.RelDependsOn, Confidence: 1, DiscoveredVia: models.DiscoveredAPIField},
	}))

	zero, err := s.GetNeighbors(ctx, idOf("a"), 0, store.DirectionDownstream)
	require.NoError(t, err)
	require.Len(t, zero.Nodes, 1)
	require.Equal(t, idOf("a"), zero.Nodes[0].ID)

	two, err := s.GetNeighbors(ctx, idOf("a"), 2, store.DirectionDownstream)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, n := range two.Nodes {
		ids[n.ID] = true
	}
	require.True(t, ids[idOf("a")])
	require.True(t, ids[idOf("b")])
	require.True(t, ids[idOf("c")])
	require.False(t, ids[idOf("d")])
}

func testFullPagination(t *testing.T, newStore NewStoreFunc) {
	s := newStore(t)
	ctx := context.Background()

	var inputs []models.NodeInput
	for i := 0; i < 25; i++ {
		inputs = append(inputs, vmNode("n", "i-"+string(rune('a'+i))))
	}
	require.NoError(t, s.UpsertNodes(ctx, inputs))

	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := s.QueryNodesPaginated(ctx, store.NodeFilter{}, store.PageRequest{Limit: 7, Cursor: cursor})
		require.NoError(t, err)
		for _, n := range page.Items {
			require.False(t, seen[n.ID], "node %s returned twice", n.ID)
			seen[n.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	require.Len(t, seen, 25)
}

func testIdempotentUpsert(t *testing.T, newStore NewStoreFunc) {
	s := newStore(t)
	ctx := context.Background()

	n := vmNode("a", "i-a")
	require.NoError(t, s.UpsertNodes(ctx, []models.NodeInput{n}))
	id := models.NodeID(n.Provider, n.Region, n.ResourceType, n.NativeID)
	before, err := s.GetNodeTimeline(ctx, id, 0)
	require.NoError(t, err)

	require.NoError(t, s.UpsertNodes(ctx, []models.NodeInput{n}))
	after, err := s.GetNodeTimeline(ctx, id, 0)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))

	nodes, err := s.QueryNodes(ctx, store.NodeFilter{})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
}

func testDeleteReupsert(t *testing.T, newStore NewStoreFunc) {
	s := newStore(t)
	ctx := context.Background()

	n := vmNode("a", "i-a")
	id := models.NodeID(n.Provider, n.Region, n.ResourceType, n.NativeID)

	require.NoError(t, s.UpsertNodes(ctx, []models.NodeInput{n}))
	require.NoError(t, s.DeleteNode(ctx, id))
	require.NoError(t, s.UpsertNodes(ctx, []models.NodeInput{n}))

	got, err := s.GetNode(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)

	timeline, err := s.GetNodeTimeline(ctx, id, 0)
	require.NoError(t, err)
	var created, deleted int
	for _, c := range timeline {
		switch c.ChangeType {
		case models.ChangeNodeCreated:
			created++
		case models.ChangeNodeDeleted:
			deleted++
		}
	}
	require.Equal(t, 2, created)
	require.Equal(t, 1, deleted)
}

func testCursorValidation(t *testing.T, newStore NewStoreFunc) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNodes(ctx, []models.NodeInput{vmNode("a", "i-a")}))

	_, err := s.QueryNodesPaginated(ctx, store.NodeFilter{}, store.PageRequest{Cursor: "not-a-valid-cursor!!"})
	require.Error(t, err)
	kind, ok := apierr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, apierr.KindInvalidCursor, kind)

	page, err := s.QueryNodesPaginated(ctx, store.NodeFilter{}, store.PageRequest{Limit: 1})
	require.NoError(t, err)
	require.False(t, page.HasMore)

	_, err = s.QueryNodesPaginated(ctx, store.NodeFilter{NamePrefix: "other"}, store.PageRequest{Cursor: page.NextCursor})
	if page.NextCursor != "" {
		require.Error(t, err)
	}
}

func testLimitClamping(t *testing.T, newStore NewStoreFunc) {
	require.Equal(t, store.DefaultPageLimit, store.ClampLimit(0))
	require.Equal(t, 1, store.ClampLimit(-5))
	require.Equal(t, store.MaxPageLimit, store.ClampLimit(5000))
	require.Equal(t, 42, store.ClampLimit(42))
}
