package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/topolane/topolane/internal/engine"
	"github.com/topolane/topolane/internal/models"
)

// DetectDriftTool wraps engine.Engine.DetectDrift.
type DetectDriftTool struct {
	engine *engine.Engine
}

// NewDetectDriftTool returns the detect_drift tool bound to e.
func NewDetectDriftTool(e *engine.Engine) *DetectDriftTool {
	return &DetectDriftTool{engine: e}
}

func (t *DetectDriftTool) Name() string { return "detect_drift" }

func (t *DetectDriftTool) Description() string {
	return `Compare live cloud state against stored metadata for every known
node of a provider, and report field-level drift classified by severity
(critical for encryption/publicAccess/deletionProtection, medium otherwise),
plus any nodes that no longer exist live.

Input:
- provider (optional): one of aws, azure, gcp, kubernetes, custom.
  Omit to check every provider with a registered adapter.`
}

func (t *DetectDriftTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"provider": map[string]interface{}{"type": "string"},
		},
	}
}

type detectDriftInput struct {
	Provider models.Provider `json:"provider"`
}

func (t *DetectDriftTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in detectDriftInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return &Result{Success: false, Error: err.Error()}, nil
		}
	}

	report, err := t.engine.DetectDrift(ctx, in.Provider)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	return &Result{
		Success: true,
		Data:    report,
		Summary: fmt.Sprintf("%d drifted, %d disappeared", len(report.DriftedNodes), len(report.DisappearedNodes)),
	}, nil
}

var _ Tool = (*DetectDriftTool)(nil)
