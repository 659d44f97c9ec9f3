// Package temporal layers snapshot-and-replay time travel over a
// store.Store. It never mutates the wrapped store's node/edge/change
// tables directly; snapshots are their own append-only record, and every
// read-side query (getTopologyAt, diffTimestamps) is derived by replaying
// changes forward from the nearest prior snapshot.
package temporal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

// SnapshotStore persists and lists snapshots, each with its full node/edge
// copy. MemorySnapshotStore is the implementation in this package and is
// used whatever the wrapped store.Store backend; no backend's own tables
// hold snapshots. The narrow interface keeps snapshot persistence out of
// the main store.Store contract.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap models.Snapshot) error
	ListSnapshots(ctx context.Context, limit int) ([]models.Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error)
}

// Store is a store.Store decorated with snapshot/time-travel operations.
type Store struct {
	store.Store
	snapshots SnapshotStore
	logger    *logging.Logger
}

// New wraps inner with the given SnapshotStore (typically an in-process
// implementation sharing inner's lifetime).
func New(inner store.Store, snapshots SnapshotStore) *Store {
	return &Store{Store: inner, snapshots: snapshots, logger: logging.GetLogger("temporal")}
}

// TakeSnapshot materializes the current graph and persists it.
func (s *Store) TakeSnapshot(ctx context.Context, trigger models.SnapshotTrigger, label string) (models.Snapshot, error) {
	nodes, err := s.QueryNodes(ctx, store.NodeFilter{})
	if err != nil {
		return models.Snapshot{}, err
	}
	edges, err := s.allEdges(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap := models.Snapshot{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Label:     label,
		Trigger:   trigger,
		NodeCount: len(nodes),
		EdgeCount: len(edges),
		Nodes:     nodes,
		Edges:     edges,
	}
	if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("temporal: save snapshot: %w", err)
	}
	s.logger.InfoWithFields("snapshot taken",
		logging.Field("id", snap.ID), logging.Field("nodes", snap.NodeCount), logging.Field("edges", snap.EdgeCount))
	return snap, nil
}

// ListSnapshots returns up to limit snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]models.Snapshot, error) {
	return s.snapshots.ListSnapshots(ctx, limit)
}

func (s *Store) allEdges(ctx context.Context) ([]models.Edge, error) {
	var out []models.Edge
	cursor := ""
	for {
		page, err := s.QueryEdgesPaginated(ctx, store.EdgeFilter{}, store.PageRequest{Limit: store.MaxPageLimit, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	return out, nil
}

// latestSnapshotBefore returns the most recent snapshot with createdAt <= ts,
// or nil if none exists.
func (s *Store) latestSnapshotBefore(ctx context.Context, ts time.Time) (*models.Snapshot, error) {
	snaps, err := s.snapshots.ListSnapshots(ctx, 0)
	if err != nil {
		return nil, err
	}
	var best *models.Snapshot
	for i := range snaps {
		snap := snaps[i]
		if snap.CreatedAt.After(ts) {
			continue
		}
		if best == nil || snap.CreatedAt.After(best.CreatedAt) {
			best = &snap
		}
	}
	return best, nil
}

// GetTopologyAt reconstructs the graph as of ts: the latest snapshot at or
// before ts, with every change in (snapshot.createdAt, ts] replayed forward.
func (s *Store) GetTopologyAt(ctx context.Context, ts time.Time, filter store.NodeFilter) ([]models.Node, error) {
	base, err := s.latestSnapshotBefore(ctx, ts)
	if err != nil {
		return nil, err
	}

	byID := map[string]models.Node{}
	since := time.Time{}
	if base != nil {
		for _, n := range base.Nodes {
			byID[n.ID] = n
		}
		since = base.CreatedAt
	}

	changes, err := s.GetChanges(ctx, models.ChangeFilter{Since: since, Until: ts})
	if err != nil {
		return nil, err
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].DetectedAt.Before(changes[j].DetectedAt) })

	for _, c := range changes {
		applyChange(byID, c)
	}

	out := make([]models.Node, 0, len(byID))
	for _, n := range byID {
		if matchesNode(filter, n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func applyChange(byID map[string]models.Node, c models.Change) {
	switch c.ChangeType {
	case models.ChangeNodeDeleted:
		delete(byID, c.TargetID)
	case models.ChangeNodeCreated, models.ChangeNodeUpdated, models.ChangeCostChanged, models.ChangeNodeDrifted, models.ChangeNodeDisappeared:
		n, ok := byID[c.TargetID]
		if !ok {
			return
		}
		applyFieldChange(&n, c)
		byID[c.TargetID] = n
	}
}

func applyFieldChange(n *models.Node, c models.Change) {
	switch c.Field {
	case "status":
		if v, ok := c.NewValue.(string); ok {
			n.Status = models.NodeStatus(v)
		} else if v, ok := c.NewValue.(models.NodeStatus); ok {
			n.Status = v
		}
	case "name":
		if v, ok := c.NewValue.(string); ok {
			n.Name = v
		}
	case "costMonthly":
		switch v := c.NewValue.(type) {
		case *float64:
			n.CostMonthly = v
		case float64:
			n.CostMonthly = &v
		}
	}
}

func matchesNode(f store.NodeFilter, n models.Node) bool {
	if f.Provider != "" && n.Provider != f.Provider {
		return false
	}
	if f.Account != "" && n.Account != f.Account {
		return false
	}
	if f.Region != "" && n.Region != f.Region {
		return false
	}
	if len(f.ResourceTypes) > 0 && !containsResourceType(f.ResourceTypes, n.ResourceType) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, n.Status) {
		return false
	}
	for k, v := range f.TagMatch {
		if n.Tags[k] != v {
			return false
		}
	}
	return true
}

func containsResourceType(set []models.ResourceType, rt models.ResourceType) bool {
	for _, v := range set {
		if v == rt {
			return true
		}
	}
	return false
}

func containsStatus(set []models.NodeStatus, st models.NodeStatus) bool {
	for _, v := range set {
		if v == st {
			return true
		}
	}
	return false
}

// GetNodeHistory returns up to limit changes for id, newest first.
func (s *Store) GetNodeHistory(ctx context.Context, id string, limit int) ([]models.Change, error) {
	return s.GetNodeTimeline(ctx, id, limit)
}

// DiffSnapshots compares two persisted snapshots by id.
func (s *Store) DiffSnapshots(ctx context.Context, fromID, toID string) (models.TopologyDiff, error) {
	from, err := s.snapshots.GetSnapshot(ctx, fromID)
	if err != nil {
		return models.TopologyDiff{}, err
	}
	to, err := s.snapshots.GetSnapshot(ctx, toID)
	if err != nil {
		return models.TopologyDiff{}, err
	}
	if from == nil || to == nil {
		return models.TopologyDiff{}, fmt.Errorf("temporal: snapshot not found")
	}
	return diffNodeSets(from.Nodes, to.Nodes), nil
}

// DiffTimestamps reconstructs the graph at fromTs and toTs and diffs them.
func (s *Store) DiffTimestamps(ctx context.Context, fromTs, toTs time.Time) (models.TopologyDiff, error) {
	from, err := s.GetTopologyAt(ctx, fromTs, store.NodeFilter{})
	if err != nil {
		return models.TopologyDiff{}, err
	}
	to, err := s.GetTopologyAt(ctx, toTs, store.NodeFilter{})
	if err != nil {
		return models.TopologyDiff{}, err
	}
	return diffNodeSets(from, to), nil
}

func diffNodeSets(from, to []models.Node) models.TopologyDiff {
	fromByID := map[string]models.Node{}
	for _, n := range from {
		fromByID[n.ID] = n
	}
	toByID := map[string]models.Node{}
	for _, n := range to {
		toByID[n.ID] = n
	}

	diff := models.TopologyDiff{}
	for id, n := range toByID {
		old, existed := fromByID[id]
		if !existed {
			diff.AddedNodes = append(diff.AddedNodes, n)
			continue
		}
		if fc := nodeFieldChanges(old, n); len(fc) > 0 {
			diff.ChangedNodes = append(diff.ChangedNodes, models.ChangedNodeEntry{ID: id, FieldChanges: fc})
		}
	}
	for id, n := range fromByID {
		if _, stillExists := toByID[id]; !stillExists {
			diff.RemovedNodes = append(diff.RemovedNodes, n)
		}
	}

	sort.Slice(diff.AddedNodes, func(i, j int) bool { return diff.AddedNodes[i].ID < diff.AddedNodes[j].ID })
	sort.Slice(diff.RemovedNodes, func(i, j int) bool { return diff.RemovedNodes[i].ID < diff.RemovedNodes[j].ID })
	sort.Slice(diff.ChangedNodes, func(i, j int) bool { return diff.ChangedNodes[i].ID < diff.ChangedNodes[j].ID })
	return diff
}

func nodeFieldChanges(old, next models.Node) []models.FieldChange {
	var out []models.FieldChange
	if old.Status != next.Status {
		out = append(out, models.FieldChange{Field: "status", Previous: old.Status, New: next.Status})
	}
	if old.Name != next.Name {
		out = append(out, models.FieldChange{Field: "name", Previous: old.Name, New: next.Name})
	}
	if !costEqual(old.CostMonthly, next.CostMonthly) {
		out = append(out, models.FieldChange{Field: "costMonthly", Previous: old.CostMonthly, New: next.CostMonthly})
	}
	return out
}

func costEqual(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// GetEvolutionSummary aggregates change activity since a given timestamp.
func (s *Store) GetEvolutionSummary(ctx context.Context, since time.Time) (models.EvolutionSummary, error) {
	changes, err := s.GetChanges(ctx, models.ChangeFilter{Since: since})
	if err != nil {
		return models.EvolutionSummary{}, err
	}
	summary := models.EvolutionSummary{Since: since, ChangesByType: map[models.ChangeType]int{}}
	for _, c := range changes {
		summary.ChangesByType[c.ChangeType]++
		switch c.ChangeType {
		case models.ChangeNodeCreated:
			summary.NodesAdded++
		case models.ChangeNodeDeleted, models.ChangeNodeDisappeared:
			summary.NodesRemoved++
		case models.ChangeNodeUpdated, models.ChangeCostChanged, models.ChangeNodeDrifted:
			summary.NodesUpdated++
		case models.ChangeEdgeCreated:
			summary.EdgesAdded++
		case models.ChangeEdgeDeleted:
			summary.EdgesRemoved++
		}
	}
	return summary, nil
}
