package rules

import (
	"context"
	"fmt"
)

// defaultCostIncreasePct is the spec default: a rise of more than 20% in
// totalCostMonthly since the previous stats snapshot fires the rule.
const defaultCostIncreasePct = 20.0

// CostAnomalyRule fires when the graph's total monthly cost rises by more
// than thresholdPct between two consecutive stats snapshots.
type CostAnomalyRule struct {
	enabled     bool
	thresholdPct float64
}

// NewCostAnomalyRule returns the built-in cost-anomaly rule using the spec
// default threshold (20%).
func NewCostAnomalyRule() *CostAnomalyRule {
	return &CostAnomalyRule{enabled: true, thresholdPct: defaultCostIncreasePct}
}

// NewCostAnomalyRuleWithThreshold overrides the default percentage threshold.
func NewCostAnomalyRuleWithThreshold(thresholdPct float64) *CostAnomalyRule {
	return &CostAnomalyRule{enabled: true, thresholdPct: thresholdPct}
}

func (r *CostAnomalyRule) ID() string         { return "cost-anomaly" }
func (r *CostAnomalyRule) Name() string       { return "Cost anomaly" }
func (r *CostAnomalyRule) Category() Category { return CategoryCostAnomaly }
func (r *CostAnomalyRule) Severity() Severity { return SeverityMedium }
func (r *CostAnomalyRule) Enabled() bool      { return r.enabled }
func (r *CostAnomalyRule) SetEnabled(v bool)  { r.enabled = v }

func (r *CostAnomalyRule) Evaluate(ctx context.Context, evalCtx EvalContext) ([]Alert, error) {
	prev := evalCtx.PreviousStats.TotalCostMonthly
	curr := evalCtx.CurrentStats.TotalCostMonthly
	if prev <= 0 {
		return nil, nil
	}

	deltaPct := (curr - prev) / prev * 100
	if deltaPct <= r.thresholdPct {
		return nil, nil
	}

	return []Alert{{
		RuleID:   r.ID(),
		Name:     r.Name(),
		Category: r.Category(),
		Severity: r.Severity(),
		Title:    "Total monthly cost increased",
		Message:  fmt.Sprintf("totalCostMonthly rose %.1f%% (%.2f -> %.2f) since the previous sync", deltaPct, prev, curr),
		Metadata: map[string]any{
			"previousTotal": prev,
			"currentTotal":  curr,
			"deltaPct":      deltaPct,
		},
	}}, nil
}

var _ Rule = (*CostAnomalyRule)(nil)
