package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/topolane/topolane/internal/store"
)

// GetNodeTool wraps store.Store.GetNode.
type GetNodeTool struct {
	store store.Store
}

// NewGetNodeTool returns the get_node tool bound to st.
func NewGetNodeTool(st store.Store) *GetNodeTool {
	return &GetNodeTool{store: st}
}

func (t *GetNodeTool) Name() string { return "get_node" }

func (t *GetNodeTool) Description() string {
	return `Fetch one resource by its node id.

Input:
- id: the node's deterministic id (provider::region:resourceType:nativeId)`
}

func (t *GetNodeTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"id"},
		"properties": map[string]interface{}{
			"id": map[string]interface{}{"type": "string"},
		},
	}
}

type getNodeInput struct {
	ID string `json:"id"`
}

func (t *GetNodeTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in getNodeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	if in.ID == "" {
		return &Result{Success: false, Error: "id is required"}, nil
	}

	node, err := t.store.GetNode(ctx, in.ID)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	if node == nil {
		return &Result{Success: false, Error: fmt.Sprintf("node %q not found", in.ID)}, nil
	}

	return &Result{
		Success: true,
		Data:    node,
		Summary: fmt.Sprintf("%s (%s)", node.Name, node.Status),
	}, nil
}

var _ Tool = (*GetNodeTool)(nil)
