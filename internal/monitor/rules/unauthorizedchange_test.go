package rules_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/monitor/rules"
	"github.com/topolane/topolane/internal/store/memory"
)

func TestUnauthorizedChangeRuleFiresForAgentWithoutCorrelation(t *testing.T) {
	s := memory.New()
	started := time.Now().Add(-time.Minute)
	require.NoError(t, s.AppendChanges(t.Context(), []models.Change{
		{ID: "c-1", TargetID: "node-1", ChangeType: models.ChangeNodeUpdated, DetectedAt: time.Now(), DetectedVia: models.DetectedEventStream, InitiatorType: models.InitiatorAgent},
	}))

	r := rules.NewUnauthorizedChangeRule()
	alerts, err := r.Evaluate(t.Context(), rules.EvalContext{
		Store:       s,
		SyncRecords: []models.SyncRecord{{ID: "sync-1", StartedAt: started}},
	})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestUnauthorizedChangeRuleSkipsAgentWithCorrelation(t *testing.T) {
	s := memory.New()
	started := time.Now().Add(-time.Minute)
	require.NoError(t, s.AppendChanges(t.Context(), []models.Change{
		{ID: "c-1", TargetID: "node-1", ChangeType: models.ChangeNodeUpdated, DetectedAt: time.Now(), DetectedVia: models.DetectedEventStream, Initiator: "agent-7", InitiatorType: models.InitiatorAgent, CorrelationID: "req-1"},
	}))

	r := rules.NewUnauthorizedChangeRule()
	alerts, err := r.Evaluate(t.Context(), rules.EvalContext{
		Store:       s,
		SyncRecords: []models.SyncRecord{{ID: "sync-1", StartedAt: started}},
	})
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestUnauthorizedChangeRuleSkipsWithoutSyncRecords(t *testing.T) {
	s := memory.New()
	r := rules.NewUnauthorizedChangeRule()
	alerts, err := r.Evaluate(t.Context(), rules.EvalContext{Store: s})
	require.NoError(t, err)
	require.Empty(t, alerts)
}
