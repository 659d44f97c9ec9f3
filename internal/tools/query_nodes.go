package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

// QueryNodesTool wraps store.Store.QueryNodes.
type QueryNodesTool struct {
	store store.Store
}

// NewQueryNodesTool returns the query_nodes tool bound to st.
func NewQueryNodesTool(st store.Store) *QueryNodesTool {
	return &QueryNodesTool{store: st}
}

func (t *QueryNodesTool) Name() string { return "query_nodes" }

func (t *QueryNodesTool) Description() string {
	return `List discovered resources matching a filter.

Use this tool to:
- Find resources by provider, region, resource type, or status
- Find resources whose tags match a required set of key/value pairs
- Find resources by name prefix or owner substring

Input (all fields optional, an empty input returns every node):
- provider: one of aws, azure, gcp, kubernetes, custom
- account: exact account id
- region: exact region
- resourceTypes: list of resource type strings
- statuses: list of status strings (running, stopped, error, unknown)
- tagMatch: map of tag key to required value
- namePrefix: match the start of the node's name
- ownerContains: substring of the node's owner`
}

func (t *QueryNodesTool) InputSchema() map[string]interface{} {
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

type queryNodesInput struct {
	Provider      models.Provider       `json:"provider"`
	Account       string                `json:"account"`
	Region        string                `json:"region"`
	ResourceTypes []models.ResourceType `json:"resourceTypes"`
	Statuses      []models.NodeStatus   `json:"statuses"`
	TagMatch      map[string]string     `json:"tagMatch"`
	NamePrefix    string                `json:"namePrefix"`
	OwnerContains string                `json:"ownerContains"`
}

func (t *QueryNodesTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in queryNodesInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return &Result{Success: false, Error: err.Error()}, nil
		}
	}

	nodes, err := t.store.QueryNodes(ctx, store.NodeFilter{
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
		Data:    nodes,
		Summary: fmt.Sprintf("found %d node(s)", len(nodes)),
	}, nil
}

var _ Tool = (*QueryNodesTool)(nil)
