package rules

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

// orphanCostCriticalThreshold is the combined monthly cost of orphaned
// resources above which the finding escalates from medium to critical.
const orphanCostCriticalThreshold = 1000.0

// OrphanRule fires for nodes with zero incident edges in either direction.
type OrphanRule struct {
	enabled bool
}

// NewOrphanRule returns the built-in orphan-node rule.
func NewOrphanRule() *OrphanRule {
	return &OrphanRule{enabled: true}
}

func (r *OrphanRule) ID() string         { return "orphan" }
func (r *OrphanRule) Name() string       { return "Orphaned resource" }
func (r *OrphanRule) Category() Category { return CategoryOrphan }
func (r *OrphanRule) Severity() Severity { return SeverityMedium }
func (r *OrphanRule) Enabled() bool      { return r.enabled }
func (r *OrphanRule) SetEnabled(v bool)  { r.enabled = v }

// Evaluate gathers every zero-edge node into one Alert rather than one per
// node, so a batch of isolated resources reads as a single finding.
func (r *OrphanRule) Evaluate(ctx context.Context, evalCtx EvalContext) ([]Alert, error) {
	nodes, err := evalCtx.Store.QueryNodes(ctx, store.NodeFilter{})
	if err != nil {
		return nil, err
	}

	var orphans []models.Node
	for _, n := range nodes {
		edges, err := evalCtx.Store.GetEdgesForNode(ctx, n.ID, store.DirectionBoth)
		if err != nil {
			return nil, err
		}
		if len(edges) == 0 {
			orphans = append(orphans, n)
		}
	}
	if len(orphans) == 0 {
		return nil, nil
	}

	ids := lo.Map(orphans, func(n models.Node, _ int) string { return n.ID })
	totalCost := lo.Reduce(orphans, func(agg float64, n models.Node, _ int) float64 {
		if n.CostMonthly != nil {
			agg += *n.CostMonthly
		}
		return agg
	}, 0.0)

	severity := SeverityMedium
	if totalCost > orphanCostCriticalThreshold {
		severity = SeverityCritical
	}

	return []Alert{{
		RuleID:          r.ID(),
		Name:            r.Name(),
		Category:        r.Category(),
		Severity:        severity,
		Title:           fmt.Sprintf("%d resources have no connections", len(orphans)),
		Message:         fmt.Sprintf("%d resources have zero incident edges, combined cost $%.2f/mo", len(orphans), totalCost),
		AffectedNodeIDs: ids,
		Metadata: map[string]any{
			"totalCostMonthly": totalCost,
			"nodeCount":        len(orphans),
		},
	}}, nil
}

var _ Rule = (*OrphanRule)(nil)
