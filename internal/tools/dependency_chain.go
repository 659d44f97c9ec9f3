package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/topolane/topolane/internal/engine"
	"github.com/topolane/topolane/internal/store"
)

// DependencyChainTool wraps engine.Engine.GetDependencyChain.
type DependencyChainTool struct {
	engine *engine.Engine
}

// NewDependencyChainTool returns the get_dependency_chain tool bound to e.
func NewDependencyChainTool(e *engine.Engine) *DependencyChainTool {
	return &DependencyChainTool{engine: e}
}

func (t *DependencyChainTool) Name() string { return "get_dependency_chain" }

func (t *DependencyChainTool) Description() string {
	return `Walk a node's neighborhood in one direction: upstream (what it
depends on), downstream (what depends on it), or both.

Input:
- id: the node's id
- direction (optional): "upstream", "downstream", or "both" (default: "both")
- depth (optional): maximum hops (default: 3)`
}

func (t *DependencyChainTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"id"},
		"properties": map[string]interface{}{
			"id":        map[string]interface{}{"type": "string"},
			"direction": map[string]interface{}{"type": "string", "enum": []string{"upstream", "downstream", "both"}},
			"depth":     map[string]interface{}{"type": "integer", "description": "default 3"},
		},
	}
}

type dependencyChainInput struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Depth     int    `json:"depth"`
}

func (t *DependencyChainTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in dependencyChainInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	if in.ID == "" {
		return &Result{Success: false, Error: "id is required"}, nil
	}
	if in.Depth <= 0 {
		in.Depth = 3
	}
	dir := store.DirectionBoth
	switch in.Direction {
	case "upstream":
		dir = store.DirectionUpstream
	case "downstream":
		dir = store.DirectionDownstream
	}

	neighborhood, err := t.engine.GetDependencyChain(ctx, in.ID, dir, in.Depth)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	return &Result{
		Success: true,
		Data:    neighborhood,
		Summary: fmt.Sprintf("%d node(s), %d edge(s) within %d hop(s)", len(neighborhood.Nodes), len(neighborhood.Edges), in.Depth),
	}, nil
}

var _ Tool = (*DependencyChainTool)(nil)
