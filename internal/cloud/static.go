package cloud

import (
	"context"
	"sync"

	"github.com/topolane/topolane/internal/models"
)

// StaticAdapter is a deterministic, in-memory Adapter test double. It
// returns a fixed inventory from Discover and answers Describe from the
// same set, so tests can script disappearance/drift by mutating or
// removing entries between sync cycles.
type StaticAdapter struct {
	name     string
	provider models.Provider
	dependsOn []models.Provider

	mu                sync.Mutex
	nodes             []models.NodeInput
	edges             []models.EdgeInput
	describeOverrides map[string]map[string]any
	mutations         []MutationCall
	costs             map[string]float64
}

// MutationCall records one Mutate invocation for test assertions.
type MutationCall struct {
	Action       models.MutationAction
	NativeID     string
	ResourceType models.ResourceType
	Properties   map[string]any
}

// NewStaticAdapter builds a StaticAdapter that discovers exactly nodes/edges
// on every call, answering Describe by matching on (nativeID, resourceType)
// against the same node list.
func NewStaticAdapter(name string, provider models.Provider, nodes []models.NodeInput, edges []models.EdgeInput) *StaticAdapter {
	return &StaticAdapter{name: name, provider: provider, nodes: nodes, edges: edges, costs: map[string]float64{}, describeOverrides: map[string]map[string]any{}}
}

// WithDependsOn declares adapters whose output must be upserted before this
// adapter's sync runs.
func (a *StaticAdapter) WithDependsOn(providers ...models.Provider) *StaticAdapter {
	a.dependsOn = providers
	return a
}

// SetNodes replaces the discoverable inventory, used by tests to simulate a
// resource disappearing or drifting between sync cycles.
func (a *StaticAdapter) SetNodes(nodes []models.NodeInput) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes = nodes
}

// SetActualCost registers the cost-adapter answer for a native id.
func (a *StaticAdapter) SetActualCost(nativeID string, cost float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.costs[nativeID] = cost
}

// SetDescribeOverride makes Describe return props for nativeID instead of
// the matching node's own Metadata, used by tests to simulate live drift
// without mutating the discovered inventory.
func (a *StaticAdapter) SetDescribeOverride(nativeID string, props map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.describeOverrides[nativeID] = props
}

func (a *StaticAdapter) Name() string               { return a.name }
func (a *StaticAdapter) Provider() models.Provider   { return a.provider }
func (a *StaticAdapter) DependsOnProviders() []models.Provider { return a.dependsOn }

func (a *StaticAdapter) Discover(ctx context.Context, filter DiscoverFilter) (DiscoverResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return DiscoverResult{Nodes: append([]models.NodeInput{}, a.nodes...), Edges: append([]models.EdgeInput{}, a.edges...)}, nil
}

func (a *StaticAdapter) Describe(ctx context.Context, nativeID string, resourceType models.ResourceType) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if props, ok := a.describeOverrides[nativeID]; ok {
		return props, nil
	}
	for _, n := range a.nodes {
		if n.NativeID == nativeID && n.ResourceType == resourceType {
			return n.Metadata, nil
		}
	}
	return nil, nil
}

func (a *StaticAdapter) Mutate(ctx context.Context, action models.MutationAction, nativeID string, resourceType models.ResourceType, properties map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mutations = append(a.mutations, MutationCall{Action: action, NativeID: nativeID, ResourceType: resourceType, Properties: properties})
	return nil
}

func (a *StaticAdapter) HealthCheck(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{OK: true}, nil
}

func (a *StaticAdapter) ActualCostLast30Days(ctx context.Context, nativeID string, resourceType models.ResourceType) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.costs[nativeID], nil
}

// Mutations returns every recorded Mutate call, for test assertions.
func (a *StaticAdapter) Mutations() []MutationCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]MutationCall{}, a.mutations...)
}

var (
	_ Adapter     = (*StaticAdapter)(nil)
	_ DependsOn   = (*StaticAdapter)(nil)
	_ CostAdapter = (*StaticAdapter)(nil)
)
