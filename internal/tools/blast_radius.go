package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/topolane/topolane/internal/engine"
)

// BlastRadiusTool wraps engine.Engine.GetBlastRadius.
type BlastRadiusTool struct {
	engine *engine.Engine
}

// NewBlastRadiusTool returns the get_blast_radius tool bound to e.
func NewBlastRadiusTool(e *engine.Engine) *BlastRadiusTool {
	return &BlastRadiusTool{engine: e}
}

func (t *BlastRadiusTool) Name() string { return "get_blast_radius" }

func (t *BlastRadiusTool) Description() string {
	return `Compute the downstream blast radius of a resource: every node
reachable by following downstream edges, bucketed by hop distance, with
total monthly cost across the visited set.

Use this tool to assess the impact of deleting or failing a resource.

Input:
- id: the root node's id
- maxDepth (optional): maximum hops to traverse (default: 5)`
}

func (t *BlastRadiusTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"id"},
		"properties": map[string]interface{}{
			"id":       map[string]interface{}{"type": "string"},
			"maxDepth": map[string]interface{}{"type": "integer", "description": "default 5"},
		},
	}
}

type blastRadiusInput struct {
	ID       string `json:"id"`
	MaxDepth int    `json:"maxDepth"`
}

func (t *BlastRadiusTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in blastRadiusInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	if in.ID == "" {
		return &Result{Success: false, Error: "id is required"}, nil
	}
	if in.MaxDepth <= 0 {
		in.MaxDepth = 5
	}

	radius, err := t.engine.GetBlastRadius(ctx, in.ID, in.MaxDepth)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	return &Result{
		Success: true,
		Data:    radius,
		Summary: fmt.Sprintf("%d resource(s) downstream of %s, $%.2f/mo", len(radius.VisitedNodes), in.ID, radius.TotalCostMonthly),
	}, nil
}

var _ Tool = (*BlastRadiusTool)(nil)
