package engine

import (
	"context"
	"sort"

	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

// HopBucket is the set of nodes discovered at one BFS depth from the root.
type HopBucket struct {
	Depth int
	Nodes []models.Node
}

// BlastRadius is the getBlastRadius result shape: the full downstream
// visited set, bucketed by hop distance, plus its total monthly cost.
type BlastRadius struct {
	RootID           string
	VisitedNodes     []models.Node
	Hops             []HopBucket
	TotalCostMonthly float64
}

// GetBlastRadius runs a downstream BFS from id up to maxDepth hops and
// returns the visited node set bucketed by hop, plus total monthly cost.
func (e *Engine) GetBlastRadius(ctx context.Context, id string, maxDepth int) (BlastRadius, error) {
	visited := map[string]models.Node{}
	frontier := []string{id}
	var hops []HopBucket

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		var bucket []models.Node

		for _, nodeID := range frontier {
			edges, err := e.store.GetEdgesForNode(ctx, nodeID, store.DirectionDownstream)
			if err != nil {
				return BlastRadius{}, err
			}
			for _, edge := range edges {
				if edge.TargetNodeID == nodeID || visited[edge.TargetNodeID].ID != "" {
					continue
				}
				n, err := e.store.GetNode(ctx, edge.TargetNodeID)
				if err != nil {
					return BlastRadius{}, err
				}
				if n == nil {
					continue
				}
				visited[n.ID] = *n
				bucket = append(bucket, *n)
				next = append(next, n.ID)
			}
		}

		if len(bucket) > 0 {
			sort.Slice(bucket, func(i, j int) bool { return bucket[i].ID < bucket[j].ID })
			hops = append(hops, HopBucket{Depth: depth, Nodes: bucket})
		}
		frontier = next
	}

	nodes := make([]models.Node, 0, len(visited))
	var totalCost float64
	for _, n := range visited {
		nodes = append(nodes, n)
		if n.CostMonthly != nil {
			totalCost += *n.CostMonthly
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return BlastRadius{
		RootID:           id,
		VisitedNodes:     nodes,
		Hops:             hops,
		TotalCostMonthly: totalCost,
	}, nil
}

// GetDependencyChain proxies the store's neighborhood BFS (spec §4.A).
func (e *Engine) GetDependencyChain(ctx context.Context, id string, dir store.Direction, depth int) (store.Neighborhood, error) {
	return e.store.GetNeighbors(ctx, id, depth, dir)
}

// CostRollup is the getCostByFilter result shape.
type CostRollup struct {
	TotalMonthly   float64
	ByProvider     map[models.Provider]float64
	ByResourceType map[models.ResourceType]float64
	ByRegion       map[string]float64
	ByAccount      map[string]float64
}

// GetCostByFilter rolls up monthly cost across nodes matching filter.
func (e *Engine) GetCostByFilter(ctx context.Context, filter store.NodeFilter) (CostRollup, error) {
	nodes, err := e.store.QueryNodes(ctx, filter)
	if err != nil {
		return CostRollup{}, err
	}

	rollup := CostRollup{
		ByProvider:     map[models.Provider]float64{},
		ByResourceType: map[models.ResourceType]float64{},
		ByRegion:       map[string]float64{},
		ByAccount:      map[string]float64{},
	}
	for _, n := range nodes {
		if n.CostMonthly == nil {
			continue
		}
		cost := *n.CostMonthly
		rollup.TotalMonthly += cost
		rollup.ByProvider[n.Provider] += cost
		rollup.ByResourceType[n.ResourceType] += cost
		rollup.ByRegion[n.Region] += cost
		rollup.ByAccount[n.Account] += cost
	}
	return rollup, nil
}
