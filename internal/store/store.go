// Package store defines the Graph Store contract: a typed, queryable,
// paginated store for nodes, edges, changes, and groups. Multiple
// backends (memory, embedded, postgres, falkordb) implement Store and
// are exercised by the shared conformance suite in storetest.
package store

import (
	"context"
	"time"

	"github.com/topolane/topolane/internal/models"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Direction selects which side of an edge to traverse.
type Direction string

const (
	DirectionUpstream   Direction = "upstream"
	DirectionDownstream Direction = "downstream"
	DirectionBoth       Direction = "both"
)

// NodeFilter narrows queryNodes/queryNodesPaginated.
type NodeFilter struct {
	Provider      models.Provider
	Account       string
	Region        string
	ResourceTypes []models.ResourceType
	Statuses      []models.NodeStatus
	// TagMatch requires every key/value pair to be present in the node's tags.
	TagMatch map[string]string
	// NamePrefix matches the beginning of the node's name.
	NamePrefix string
	// OwnerContains matches a substring of the node's owner.
	OwnerContains string
}

// EdgeFilter narrows queryEdgesPaginated.
type EdgeFilter struct {
	SourceNodeID      string
	TargetNodeID      string
	RelationshipTypes []models.RelationshipType
}

// PageRequest is the paginated-query input shared by all list operations.
type PageRequest struct {
	Limit  int
	Cursor string
}

// PageResult is the paginated-query output shared by all list operations.
type PageResult[T any] struct {
	Items      []T
	TotalCount int
	HasMore    bool
	NextCursor string
}

// Neighborhood is the visited subgraph returned by getNeighbors.
type Neighborhood struct {
	Nodes []models.Node
	Edges []models.Edge
}

// Stats is the getStats() result shape.
type Stats struct {
	TotalNodes        int
	TotalEdges        int
	NodesByProvider    map[models.Provider]int
	NodesByResourceType map[models.ResourceType]int
	NodesByStatus      map[models.NodeStatus]int
	TotalCostMonthly   float64
	LastSyncAt         time.Time
}

// Store is the Graph Store contract (spec §4.A). Implementations must be
// safe for concurrent callers: single-writer per logical batch, multi-reader.
type Store interface {
	UpsertNodes(ctx context.Context, nodes []models.NodeInput) error
	UpsertEdges(ctx context.Context, edges []models.EdgeInput) error

	GetNode(ctx context.Context, id string) (*models.Node, error)
	GetEdge(ctx context.Context, id string) (*models.Edge, error)

	DeleteNode(ctx context.Context, id string) error

	QueryNodes(ctx context.Context, filter NodeFilter) ([]models.Node, error)
	QueryNodesPaginated(ctx context.Context, filter NodeFilter, page PageRequest) (PageResult[models.Node], error)
	QueryEdgesPaginated(ctx context.Context, filter EdgeFilter, page PageRequest) (PageResult[models.Edge], error)

	GetEdgesForNode(ctx context.Context, id string, dir Direction) ([]models.Edge, error)
	GetNeighbors(ctx context.Context, id string, maxDepth int, dir Direction) (Neighborhood, error)

	AppendChanges(ctx context.Context, changes []models.Change) error
	GetChanges(ctx context.Context, filter models.ChangeFilter) ([]models.Change, error)
	GetChangesPaginated(ctx context.Context, filter models.ChangeFilter, page PageRequest) (PageResult[models.Change], error)
	GetNodeTimeline(ctx context.Context, id string, limit int) ([]models.Change, error)

	UpsertGroup(ctx context.Context, group models.Group) error
	AddGroupMember(ctx context.Context, groupID, nodeID string) error
	RemoveGroupMember(ctx context.Context, groupID, nodeID string) error
	GetGroupMembers(ctx context.Context, groupID string) ([]string, error)

	GetStats(ctx context.Context) (Stats, error)
}

// ClampLimit applies the spec's pagination clamp: non-positive becomes 1,
// zero means "use the default", and anything above MaxPageLimit is capped.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultPageLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}
