package rules

import (
	"context"
	"fmt"
)

// DisappearedRule fires when a sync record from this cycle reports
// nodesDisappeared > 0.
type DisappearedRule struct {
	enabled bool
}

// NewDisappearedRule returns the built-in disappeared-resource rule.
func NewDisappearedRule() *DisappearedRule {
	return &DisappearedRule{enabled: true}
}

func (r *DisappearedRule) ID() string         { return "disappeared" }
func (r *DisappearedRule) Name() string       { return "Resources disappeared" }
func (r *DisappearedRule) Category() Category { return CategoryDisappeared }
func (r *DisappearedRule) Severity() Severity { return SeverityHigh }
func (r *DisappearedRule) Enabled() bool      { return r.enabled }
func (r *DisappearedRule) SetEnabled(v bool)  { r.enabled = v }

func (r *DisappearedRule) Evaluate(ctx context.Context, evalCtx EvalContext) ([]Alert, error) {
	var alerts []Alert
	for _, rec := range evalCtx.SyncRecords {
		if rec.NodesDisappeared <= 0 {
			continue
		}
		alerts = append(alerts, Alert{
			RuleID:   r.ID(),
			Name:     r.Name(),
			Category: r.Category(),
			Severity: r.Severity(),
			Title:    fmt.Sprintf("%d resources disappeared (%s)", rec.NodesDisappeared, rec.Provider),
			Message:  fmt.Sprintf("sync record %s confirmed %d disappeared resources for provider %s", rec.ID, rec.NodesDisappeared, rec.Provider),
			Metadata: map[string]any{
				"syncRecordId":     rec.ID,
				"provider":         string(rec.Provider),
				"nodesDisappeared": rec.NodesDisappeared,
			},
		})
	}
	return alerts, nil
}

var _ Rule = (*DisappearedRule)(nil)
