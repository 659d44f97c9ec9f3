package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/topolane/topolane/internal/engine"
)

// GetStatsTool wraps engine.Engine.GetStats.
type GetStatsTool struct {
	engine *engine.Engine
}

// NewGetStatsTool returns the get_stats tool bound to e.
func NewGetStatsTool(e *engine.Engine) *GetStatsTool {
	return &GetStatsTool{engine: e}
}

func (t *GetStatsTool) Name() string { return "get_stats" }

func (t *GetStatsTool) Description() string {
	return `Get graph-wide summary statistics: total node/edge counts broken
down by provider, resource type, and status, total monthly cost, and the
most recent sync timestamp.

Input: none.`
}

func (t *GetStatsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}

func (t *GetStatsTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	stats, err := t.engine.GetStats(ctx)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	return &Result{
		Success: true,
		Data:    stats,
		Summary: fmt.Sprintf("%d node(s), %d edge(s), $%.2f/mo", stats.TotalNodes, stats.TotalEdges, stats.TotalCostMonthly),
	}, nil
}

var _ Tool = (*GetStatsTool)(nil)
