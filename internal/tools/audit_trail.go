package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/topolane/topolane/internal/governor"
	"github.com/topolane/topolane/internal/models"
)

// AuditTrailTool wraps governor.Governor.GetAuditTrail.
type AuditTrailTool struct {
	governor *governor.Governor
}

// NewAuditTrailTool returns the get_audit_trail tool bound to g.
func NewAuditTrailTool(g *governor.Governor) *AuditTrailTool {
	return &AuditTrailTool{governor: g}
}

func (t *AuditTrailTool) Name() string { return "get_audit_trail" }

func (t *AuditTrailTool) Description() string {
	return `List the governor's change-request history for a resource,
optionally narrowed to one mutation action, most recent first.

Input:
- targetResourceId: node id to look up (required)
- action (optional): one of create, update, delete, scale, reconfigure
- limit (optional): max results (default: 50)`
}

func (t *AuditTrailTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"targetResourceId"},
		"properties": map[string]interface{}{
			"targetResourceId": map[string]interface{}{"type": "string"},
			"action":           map[string]interface{}{"type": "string"},
			"limit":            map[string]interface{}{"type": "integer", "description": "default 50"},
		},
	}
}

type auditTrailInput struct {
	TargetResourceID string                `json:"targetResourceId"`
	Action           models.MutationAction `json:"action"`
	Limit            int                   `json:"limit"`
}

func (t *AuditTrailTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in auditTrailInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	if in.TargetResourceID == "" {
		return &Result{Success: false, Error: "targetResourceId is required"}, nil
	}
	if in.Limit <= 0 {
		in.Limit = 50
	}

	trail := t.governor.GetAuditTrail(in.TargetResourceID, in.Action, in.Limit)
	return &Result{
		Success: true,
		Data:    trail,
		Summary: fmt.Sprintf("%d change request(s)", len(trail)),
	}, nil
}

var _ Tool = (*AuditTrailTool)(nil)
