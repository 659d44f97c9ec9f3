package rules

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/topolane/topolane/internal/store"
)

const (
	spofMinDegree          = 5
	spofMinReachRatio      = 0.3
	spofCriticalReachRatio = 0.5
	spofBlastRadiusDepth   = 5
)

// spofHub pairs a node found to be a single point of failure with the
// degree and reach ratio that qualified it.
type spofHub struct {
	nodeID     string
	name       string
	degree     int
	reachRatio float64
}

// SPOFRule fires for nodes whose combined degree is at least spofMinDegree
// and whose downstream blast radius reaches more than spofMinReachRatio of
// the graph: a single point of failure for a disproportionate share of the
// inventory.
type SPOFRule struct {
	enabled bool
}

// NewSPOFRule returns the built-in single-point-of-failure rule.
func NewSPOFRule() *SPOFRule {
	return &SPOFRule{enabled: true}
}

func (r *SPOFRule) ID() string         { return "spof" }
func (r *SPOFRule) Name() string       { return "Single point of failure" }
func (r *SPOFRule) Category() Category { return CategorySPOF }
func (r *SPOFRule) Severity() Severity { return SeverityHigh }
func (r *SPOFRule) Enabled() bool      { return r.enabled }
func (r *SPOFRule) SetEnabled(v bool)  { r.enabled = v }

// Evaluate gathers every qualifying hub into one Alert rather than one per
// hub, carrying the worst-case reach ratio in Metadata and escalating
// severity to critical once any hub's downstream reach passes
// spofCriticalReachRatio.
func (r *SPOFRule) Evaluate(ctx context.Context, evalCtx EvalContext) ([]Alert, error) {
	if evalCtx.Engine == nil {
		return nil, nil
	}

	nodes, err := evalCtx.Store.QueryNodes(ctx, store.NodeFilter{})
	if err != nil {
		return nil, err
	}
	totalNodes := len(nodes)
	if totalNodes == 0 {
		return nil, nil
	}

	var hubs []spofHub
	for _, n := range nodes {
		edges, err := evalCtx.Store.GetEdgesForNode(ctx, n.ID, store.DirectionBoth)
		if err != nil {
			return nil, err
		}
		if len(edges) < spofMinDegree {
			continue
		}

		radius, err := evalCtx.Engine.GetBlastRadius(ctx, n.ID, spofBlastRadiusDepth)
		if err != nil {
			return nil, err
		}
		reachRatio := float64(len(radius.VisitedNodes)) / float64(totalNodes)
		if reachRatio <= spofMinReachRatio {
			continue
		}
		hubs = append(hubs, spofHub{nodeID: n.ID, name: n.Name, degree: len(edges), reachRatio: reachRatio})
	}
	if len(hubs) == 0 {
		return nil, nil
	}

	ids := lo.Map(hubs, func(h spofHub, _ int) string { return h.nodeID })
	maxReach := lo.Reduce(hubs, func(agg float64, h spofHub, _ int) float64 {
		if h.reachRatio > agg {
			return h.reachRatio
		}
		return agg
	}, 0.0)

	severity := SeverityHigh
	if maxReach > spofCriticalReachRatio {
		severity = SeverityCritical
	}

	title := fmt.Sprintf("%s is a single point of failure", hubs[0].name)
	if len(hubs) > 1 {
		title = fmt.Sprintf("%d resources are single points of failure", len(hubs))
	}

	return []Alert{{
		RuleID:          r.ID(),
		Name:            r.Name(),
		Category:        r.Category(),
		Severity:        severity,
		Title:           title,
		Message:         fmt.Sprintf("%d hub resources reach up to %.0f%% of the graph downstream", len(hubs), maxReach*100),
		ResourceID:      hubs[0].nodeID,
		AffectedNodeIDs: ids,
		Metadata: map[string]any{
			"reachRatio": maxReach,
			"hubCount":   len(hubs),
			"degree":     hubs[0].degree,
		},
	}}, nil
}

var _ Rule = (*SPOFRule)(nil)
