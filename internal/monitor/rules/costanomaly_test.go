package rules_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/topolane/topolane/internal/monitor/rules"
	"github.com/topolane/topolane/internal/store"
)

func TestCostAnomalyRuleFiresAboveThreshold(t *testing.T) {
	r := rules.NewCostAnomalyRule()
	alerts, err := r.Evaluate(t.Context(), rules.EvalContext{
		PreviousStats: store.Stats{TotalCostMonthly: 1000},
		CurrentStats:  store.Stats{TotalCostMonthly: 1300},
	})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestCostAnomalyRuleSkipsBelowThreshold(t *testing.T) {
	r := rules.NewCostAnomalyRule()
	alerts, err := r.Evaluate(t.Context(), rules.EvalContext{
		PreviousStats: store.Stats{TotalCostMonthly: 1000},
		CurrentStats:  store.Stats{TotalCostMonthly: 1100},
	})
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestCostAnomalyRuleSkipsZeroPrevious(t *testing.T) {
	r := rules.NewCostAnomalyRule()
	alerts, err := r.Evaluate(t.Context(), rules.EvalContext{
		PreviousStats: store.Stats{TotalCostMonthly: 0},
		CurrentStats:  store.Stats{TotalCostMonthly: 500},
	})
	require.NoError(t, err)
	require.Empty(t, alerts)
}
