package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/topolane/topolane/internal/engine"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

// CostByFilterTool wraps engine.Engine.GetCostByFilter.
type CostByFilterTool struct {
	engine *engine.Engine
}

// NewCostByFilterTool returns the get_cost_by_filter tool bound to e.
func NewCostByFilterTool(e *engine.Engine) *CostByFilterTool {
	return &CostByFilterTool{engine: e}
}

func (t *CostByFilterTool) Name() string { return "get_cost_by_filter" }

func (t *CostByFilterTool) Description() string {
	return `Roll up monthly cost across every node matching a filter,
broken down by provider, resource type, region, and account.

Input (all fields optional, an empty input rolls up the entire graph):
- provider, account, region, resourceTypes, statuses, tagMatch, namePrefix, ownerContains
  (same filter shape as query_nodes)`
}

func (t *CostByFilterTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"provider":      map[string]interface{}{"type": "string"},
			"account":       map[string]interface{}{"type": "string"},
			"region":        map[string]interface{}{"type": "string"},
			"resourceTypes": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"statuses":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"tagMatch":      map[string]interface{}{"type": "object"},
			"namePrefix":    map[string]interface{}{"type": "string"},
			"ownerContains": map[string]interface{}{"type": "string"},
		},
	}
}

type costByFilterInput struct {
	Provider      models.Provider       `json:"provider"`
	Account       string                `json:"account"`
	Region        string                `json:"region"`
	ResourceTypes []models.ResourceType `json:"resourceTypes"`
	Statuses      []models.NodeStatus   `json:"statuses"`
	TagMatch      map[string]string     `json:"tagMatch"`
	NamePrefix    string                `json:"namePrefix"`
	OwnerContains string                `json:"ownerContains"`
}

func (t *CostByFilterTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in costByFilterInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return &Result{Success: false, Error: err.Error()}, nil
		}
	}

	rollup, err := t.engine.GetCostByFilter(ctx, store.NodeFilter{
		Provider:      in.Provider,
		Account:       in.Account,
		Region:        in.Region,
		ResourceTypes: in.ResourceTypes,
		Statuses:      in.Statuses,
		TagMatch:      in.TagMatch,
		NamePrefix:    in.NamePrefix,
		OwnerContains: in.OwnerContains,
	})
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	return &Result{
		Success: true,
		Data:    rollup,
		Summary: fmt.Sprintf("$%.2f/mo total", rollup.TotalMonthly),
	}, nil
}

var _ Tool = (*CostByFilterTool)(nil)
