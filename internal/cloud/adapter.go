// Package cloud defines the uniform interface every cloud provider
// integration satisfies. The core never talks to a concrete SDK; it treats
// adapters as black boxes and expects discover/describe to be idempotent
// and retry-safe.
package cloud

import (
	"context"

	"github.com/topolane/topolane/internal/models"
)

// DiscoverFilter narrows a discover() call to a subset of regions/types.
type DiscoverFilter struct {
	Regions       []string
	ResourceTypes []models.ResourceType
}

// DiscoverResult is the batch output of one discover() call.
type DiscoverResult struct {
	Nodes []models.NodeInput
	Edges []models.EdgeInput
}

// HealthStatus is the healthCheck() result shape.
type HealthStatus struct {
	OK      bool
	Message string
}

// Adapter is the uniform shape every provider integration satisfies (spec
// §4.C). Adapters own their rate-limiting, credential refresh, and
// pagination; the core treats describe/discover as idempotent and
// retry-safe.
type Adapter interface {
	Name() string
	Provider() models.Provider

	// Discover returns every resource matching filter as a batch. A
	// provider with very large inventories may prefer a streaming variant;
	// this interface models the common batch case used by the engine's
	// bounded fan-out.
	Discover(ctx context.Context, filter DiscoverFilter) (DiscoverResult, error)

	// Describe returns the current live properties of nativeId, or nil if
	// the resource no longer exists. Only not-found-like errors become nil;
	// all other errors propagate.
	Describe(ctx context.Context, nativeID string, resourceType models.ResourceType) (map[string]any, error)

	// Mutate performs a create/update/delete/scale/reconfigure action.
	Mutate(ctx context.Context, action models.MutationAction, nativeID string, resourceType models.ResourceType, properties map[string]any) error

	HealthCheck(ctx context.Context) (HealthStatus, error)
}

// DependsOn is implemented by adapters whose discovered nodes reference ids
// produced by another adapter (e.g. a Kubernetes cluster referencing its
// parent cloud region). The engine topologically sorts adapters on this
// declaration before running sync.
type DependsOn interface {
	DependsOnProviders() []models.Provider
}

// CostAdapter is implemented by adapters that can report actual spend for a
// resource, used by the reconciliation engine's cost-anomaly detection.
type CostAdapter interface {
	ActualCostLast30Days(ctx context.Context, nativeID string, resourceType models.ResourceType) (float64, error)
}

// EventSourceAdapter is the audit-log poller / push-webhook ingester shape
// consumed by the monitoring loop's event-ingestion worker (spec §6).
type EventSourceAdapter interface {
	Type() string
	Provider() models.Provider
	FetchEvents(ctx context.Context, sinceTs int64) ([]CloudEvent, error)
	HealthCheck(ctx context.Context) (HealthStatus, error)
}

// CloudEvent is one entry from an EventSourceAdapter.
type CloudEvent struct {
	ID           string
	Provider     models.Provider
	EventType    string
	ResourceID   string
	ResourceType models.ResourceType
	Actor        string
	Timestamp    int64
	ReadOnly     bool
	Success      bool
	Raw          map[string]any
}
