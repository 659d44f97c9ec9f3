package temporal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
	"github.com/topolane/topolane/internal/store/memory"
	"github.com/topolane/topolane/internal/temporal"
)

func seedNode(t *testing.T, s store.Store, name string) models.Node {
	t.Helper()
	in := models.NodeInput{
		Provider: models.ProviderAWS, Region: "us-east-1", ResourceType: models.ResourceCompute,
		NativeID: name, Name: name, Status: models.StatusRunning,
	}
	require.NoError(t, s.UpsertNodes(t.Context(), []models.NodeInput{in}))
	n, err := s.GetNode(t.Context(), models.NodeID(in.Provider, in.Region, in.ResourceType, in.NativeID))
	require.NoError(t, err)
	require.NotNil(t, n)
	return *n
}

func TestTakeSnapshotAndDiffIsEmptyWithoutMutation(t *testing.T) {
	s := temporal.New(memory.New(), temporal.NewMemorySnapshotStore())
	seedNode(t, s, "i-1")

	snap, err := s.TakeSnapshot(t.Context(), models.SnapshotTriggerManual, "")
	require.NoError(t, err)

	diff, err := s.DiffTimestamps(t.Context(), snap.CreatedAt, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	require.Empty(t, diff.AddedNodes)
	require.Empty(t, diff.RemovedNodes)
	require.Empty(t, diff.ChangedNodes)
}

func TestGetTopologyAtReflectsDeletion(t *testing.T) {
	s := temporal.New(memory.New(), temporal.NewMemorySnapshotStore())
	n := seedNode(t, s, "i-2")

	mid := time.Now().UTC()
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.DeleteNode(t.Context(), n.ID))

	before, err := s.GetTopologyAt(t.Context(), mid, store.NodeFilter{})
	require.NoError(t, err)
	require.Len(t, before, 1)

	after, err := s.GetTopologyAt(t.Context(), time.Now().UTC(), store.NodeFilter{})
	require.NoError(t, err)
	require.Empty(t, after)
}

func TestEvolutionSummaryCounts(t *testing.T) {
	s := temporal.New(memory.New(), temporal.NewMemorySnapshotStore())
	since := time.Now().UTC()
	seedNode(t, s, "i-3")
	seedNode(t, s, "i-4")

	summary, err := s.GetEvolutionSummary(t.Context(), since)
	require.NoError(t, err)
	require.Equal(t, 2, summary.NodesAdded)
}
