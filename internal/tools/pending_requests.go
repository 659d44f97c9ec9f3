package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/topolane/topolane/internal/governor"
)

// PendingRequestsTool wraps governor.Governor.GetPendingRequests.
type PendingRequestsTool struct {
	governor *governor.Governor
}

// NewPendingRequestsTool returns the get_pending_requests tool bound to g.
func NewPendingRequestsTool(g *governor.Governor) *PendingRequestsTool {
	return &PendingRequestsTool{governor: g}
}

func (t *PendingRequestsTool) Name() string { return "get_pending_requests" }

func (t *PendingRequestsTool) Description() string {
	return `List change requests awaiting approval, oldest submitted first.

Input: none.`
}

func (t *PendingRequestsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}

func (t *PendingRequestsTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	pending := t.governor.GetPendingRequests()
	return &Result{
		Success: true,
		Data:    pending,
		Summary: fmt.Sprintf("%d pending request(s)", len(pending)),
	}, nil
}

var _ Tool = (*PendingRequestsTool)(nil)
