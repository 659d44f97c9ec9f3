// Package memory implements the Graph Store contract as a volatile,
// concurrency-safe in-memory backend. It is the reference implementation:
// every other backend is tested for equivalent behavior against the same
// conformance suite this one passes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/topolane/topolane/internal/apierr"
	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

var logger = logging.GetLogger("store.memory")

// Store is an in-memory, mutex-protected Graph Store. It is explicitly
// volatile: data does not survive process restart.
type Store struct {
	mu sync.RWMutex

	nodes    map[string]models.Node
	nodeSeq  []string // insertion order, preserved across updates
	edges    map[string]models.Edge
	edgeSeq  []string
	changes  []models.Change // append-only, kept sorted by (detectedAt, id)
	groups   map[string]models.Group
	members  map[string]map[string]struct{} // groupID -> set of nodeID

	lastChangeAt map[string]time.Time // targetID -> last detectedAt, for monotonic enforcement
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		nodes:        make(map[string]models.Node),
		edges:        make(map[string]models.Edge),
		groups:       make(map[string]models.Group),
		members:      make(map[string]map[string]struct{}),
		lastChangeAt: make(map[string]time.Time),
	}
}

func (s *Store) UpsertNodes(ctx context.Context, inputs []models.NodeInput) error {
	if len(inputs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var pending []models.Change
	for _, in := range inputs {
		next := in.ToNode(now)
		existing, exists := s.nodes[next.ID]
		if exists {
			if nodesEqual(existing, next) {
				continue
			}
			next.CreatedAt = existing.CreatedAt
			pending = append(pending, s.fieldChanges(existing, next)...)
			if existing.Status != next.Status {
				pending = append(pending, s.newChange(next.ID, models.ChangeNodeDrifted, "status", string(existing.Status), string(next.Status), models.DetectedSync, "", models.InitiatorSystem))
			}
		} else {
			s.nodeSeq = append(s.nodeSeq, next.ID)
			pending = append(pending, s.newChange(next.ID, models.ChangeNodeCreated, "", nil, nil, models.DetectedSync, "", models.InitiatorSystem))
		}
		s.nodes[next.ID] = next
	}
	s.appendChangesLocked(pending)
	return nil
}

func (s *Store) UpsertEdges(ctx context.Context, inputs []models.EdgeInput) error {
	if len(inputs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, in := range inputs {
		if _, ok := s.nodes[in.SourceNodeID]; !ok {
			return apierr.New(apierr.KindDanglingEdge, fmt.Sprintf("source node %q does not exist", in.SourceNodeID))
		}
		if _, ok := s.nodes[in.TargetNodeID]; !ok {
			return apierr.New(apierr.KindDanglingEdge, fmt.Sprintf("target node %q does not exist", in.TargetNodeID))
		}
	}

	var pending []models.Change
	for _, in := range inputs {
		next := in.ToEdge()
		if existing, exists := s.edges[next.ID]; exists {
			if edgesEqual(existing, next) {
				continue
			}
		} else {
			s.edgeSeq = append(s.edgeSeq, next.ID)
			pending = append(pending, s.newChange(next.ID, models.ChangeEdgeCreated, "", nil, nil, models.DetectedSync, "", models.InitiatorSystem))
		}
		s.edges[next.ID] = next
	}
	s.appendChangesLocked(pending)
	return nil
}

func (s *Store) GetNode(ctx context.Context, id string) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (s *Store) GetEdge(ctx context.Context, id string) (*models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return apierr.New(apierr.KindNotFound, fmt.Sprintf("node %q not found", id))
	}

	var remainingEdgeSeq []string
	for _, eid := range s.edgeSeq {
		e := s.edges[eid]
		if e.SourceNodeID == id || e.TargetNodeID == id {
			delete(s.edges, eid)
			continue
		}
		remainingEdgeSeq = append(remainingEdgeSeq, eid)
	}
	s.edgeSeq = remainingEdgeSeq

	delete(s.nodes, id)
	var remainingNodeSeq []string
	for _, nid := range s.nodeSeq {
		if nid != id {
			remainingNodeSeq = append(remainingNodeSeq, nid)
		}
	}
	s.nodeSeq = remainingNodeSeq

	for _, set := range s.members {
		delete(set, id)
	}

	s.appendChangesLocked([]models.Change{
		s.newChange(id, models.ChangeNodeDeleted, "", nil, nil, models.DetectedSync, "", models.InitiatorSystem),
	})
	return nil
}

func (s *Store) QueryNodes(ctx context.Context, filter store.NodeFilter) ([]models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchNodesLocked(filter), nil
}

func (s *Store) matchNodesLocked(filter store.NodeFilter) []models.Node {
	out := make([]models.Node, 0, len(s.nodeSeq))
	for _, id := range s.nodeSeq {
		n, ok := s.nodes[id]
		if !ok || !nodeMatches(n, filter) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func nodeMatches(n models.Node, f store.NodeFilter) bool {
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
	if f.NamePrefix != "" && !strings.HasPrefix(n.Name, f.NamePrefix) {
		return false
	}
	if f.OwnerContains != "" && !strings.Contains(n.Owner, f.OwnerContains) {
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
	for _, s := range set {
		if s == rt {
			return true
		}
	}
	return false
}

func containsStatus(set []models.NodeStatus, st models.NodeStatus) bool {
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}

func (s *Store) QueryNodesPaginated(ctx context.Context, filter store.NodeFilter, page store.PageRequest) (store.PageResult[models.Node], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := store.ClampLimit(page.Limit)
	hash := store.HashFilter(filter)
	offset, err := store.DecodeCursor(page.Cursor, hash)
	if err != nil {
		return store.PageResult[models.Node]{}, err
	}

	matched := s.matchNodesLocked(filter)
	return paginate(matched, hash, offset, limit), nil
}

func paginate[T any](matched []T, hash string, offset, limit int) store.PageResult[T] {
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	items := append([]T(nil), matched[offset:end]...)

	res := store.PageResult[T]{
		Items:      items,
		TotalCount: total,
		HasMore:    end < total,
	}
	if res.HasMore {
		res.NextCursor = store.EncodeCursor(hash, end)
	}
	return res
}

func (s *Store) QueryEdgesPaginated(ctx context.Context, filter store.EdgeFilter, page store.PageRequest) (store.PageResult[models.Edge], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := store.ClampLimit(page.Limit)
	hash := store.HashFilter(filter)
	offset, err := store.DecodeCursor(page.Cursor, hash)
	if err != nil {
		return store.PageResult[models.Edge]{}, err
	}

	matched := make([]models.Edge, 0, len(s.edgeSeq))
	for _, id := range s.edgeSeq {
		e := s.edges[id]
		if edgeMatches(e, filter) {
			matched = append(matched, e)
		}
	}
	return paginate(matched, hash, offset, limit), nil
}

func edgeMatches(e models.Edge, f store.EdgeFilter) bool {
	if f.SourceNodeID != "" && e.SourceNodeID != f.SourceNodeID {
		return false
	}
	if f.TargetNodeID != "" && e.TargetNodeID != f.TargetNodeID {
		return false
	}
	if len(f.RelationshipTypes) > 0 {
		found := false
		for _, rt := range f.RelationshipTypes {
			if rt == e.RelationshipType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Store) GetEdgesForNode(ctx context.Context, id string, dir store.Direction) ([]models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Edge
	for _, eid := range s.edgeSeq {
		e := s.edges[eid]
		switch dir {
		case store.DirectionUpstream:
			if e.TargetNodeID == id {
				out = append(out, e)
			}
		case store.DirectionDownstream:
			if e.SourceNodeID == id {
				out = append(out, e)
			}
		default:
			if e.SourceNodeID == id || e.TargetNodeID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// GetNeighbors performs a breadth-first traversal from id, bounded by
// maxDepth, tie-breaking equal-depth neighbors by lexicographic node id so
// the output is deterministic across runs.
func (s *Store) GetNeighbors(ctx context.Context, id string, maxDepth int, dir store.Direction) (store.Neighborhood, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[id]; !ok {
		return store.Neighborhood{}, apierr.New(apierr.KindNotFound, fmt.Sprintf("node %q not found", id))
	}

	visited := map[string]int{id: 0}
	visitedEdges := map[string]struct{}{}
	frontier := []string{id}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		next := map[string]struct{}{}
		sort.Strings(frontier)
		for _, cur := range frontier {
			for _, eid := range s.edgeSeq {
				e := s.edges[eid]
				var neighbor string
				switch dir {
				case store.DirectionUpstream:
					if e.TargetNodeID != cur {
						continue
					}
					neighbor = e.SourceNodeID
				case store.DirectionDownstream:
					if e.SourceNodeID != cur {
						continue
					}
					neighbor = e.TargetNodeID
				default:
					if e.SourceNodeID == cur {
						neighbor = e.TargetNodeID
					} else if e.TargetNodeID == cur {
						neighbor = e.SourceNodeID
					} else {
						continue
					}
				}
				if _, ok := visited[neighbor]; !ok {
					next[neighbor] = struct{}{}
				}
				visitedEdges[eid] = struct{}{}
			}
		}
		var sortedNext []string
		for n := range next {
			sortedNext = append(sortedNext, n)
		}
		sort.Strings(sortedNext)
		for _, n := range sortedNext {
			visited[n] = depth + 1
		}
		frontier = sortedNext
	}

	result := store.Neighborhood{}
	var ids []string
	for nid := range visited {
		ids = append(ids, nid)
	}
	sort.Strings(ids)
	for _, nid := range ids {
		result.Nodes = append(result.Nodes, s.nodes[nid])
	}
	var eids []string
	for eid := range visitedEdges {
		eids = append(eids, eid)
	}
	sort.Strings(eids)
	for _, eid := range eids {
		e := s.edges[eid]
		if _, sOK := visited[e.SourceNodeID]; sOK {
			if _, tOK := visited[e.TargetNodeID]; tOK {
				result.Edges = append(result.Edges, e)
			}
		}
	}
	return result, nil
}

func (s *Store) AppendChanges(ctx context.Context, changes []models.Change) error {
	if len(changes) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendChangesLocked(changes)
	return nil
}

// appendChangesLocked enforces per-target monotonic detectedAt ordering
// (a detectedAt at or before the target's last change becomes last+1ns)
// before appending.
func (s *Store) appendChangesLocked(changes []models.Change) {
	for i := range changes {
		c := changes[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if last, ok := s.lastChangeAt[c.TargetID]; ok && !c.DetectedAt.After(last) {
			c.DetectedAt = last.Add(time.Nanosecond)
		}
		s.lastChangeAt[c.TargetID] = c.DetectedAt
		s.changes = append(s.changes, c)
	}
	sort.SliceStable(s.changes, func(i, j int) bool {
		if !s.changes[i].DetectedAt.Equal(s.changes[j].DetectedAt) {
			return s.changes[i].DetectedAt.Before(s.changes[j].DetectedAt)
		}
		return s.changes[i].ID < s.changes[j].ID
	})
}

func (s *Store) newChange(targetID string, ct models.ChangeType, field string, prev, newVal any, via models.DetectedVia, correlationID string, initType models.InitiatorType) models.Change {
	return models.Change{
		ID:            uuid.NewString(),
		TargetID:      targetID,
		ChangeType:    ct,
		Field:         field,
		PreviousValue: prev,
		NewValue:      newVal,
		DetectedAt:    time.Now().UTC(),
		DetectedVia:   via,
		CorrelationID: correlationID,
		Initiator:     "system",
		InitiatorType: initType,
	}
}

func (s *Store) fieldChanges(prev, next models.Node) []models.Change {
	var out []models.Change
	if prev.Name != next.Name {
		out = append(out, s.newChange(next.ID, models.ChangeNodeUpdated, "name", prev.Name, next.Name, models.DetectedSync, "", models.InitiatorSystem))
	}
	if !costEqual(prev.CostMonthly, next.CostMonthly) {
		out = append(out, s.newChange(next.ID, models.ChangeCostChanged, "costMonthly", prev.CostMonthly, next.CostMonthly, models.DetectedSync, "", models.InitiatorSystem))
	}
	return out
}

func (s *Store) GetChanges(ctx context.Context, filter models.ChangeFilter) ([]models.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.matchChangesLocked(filter)), nil
}

func (s *Store) matchChangesLocked(filter models.ChangeFilter) []models.Change {
	var out []models.Change
	for _, c := range s.changes {
		if filter.TargetID != "" && c.TargetID != filter.TargetID {
			continue
		}
		if len(filter.ChangeTypes) > 0 && !containsChangeType(filter.ChangeTypes, c.ChangeType) {
			continue
		}
		if filter.CorrelationID != "" && c.CorrelationID != filter.CorrelationID {
			continue
		}
		if !filter.Since.IsZero() && c.DetectedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && c.DetectedAt.After(filter.Until) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func containsChangeType(set []models.ChangeType, ct models.ChangeType) bool {
	for _, s := range set {
		if s == ct {
			return true
		}
	}
	return false
}

func newestFirst(in []models.Change) []models.Change {
	out := append([]models.Change(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out
}

func (s *Store) GetChangesPaginated(ctx context.Context, filter models.ChangeFilter, page store.PageRequest) (store.PageResult[models.Change], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := store.ClampLimit(page.Limit)
	hash := store.HashFilter(filter)
	offset, err := store.DecodeCursor(page.Cursor, hash)
	if err != nil {
		return store.PageResult[models.Change]{}, err
	}
	matched := newestFirst(s.matchChangesLocked(filter))
	return paginate(matched, hash, offset, limit), nil
}

func (s *Store) GetNodeTimeline(ctx context.Context, id string, limit int) ([]models.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := newestFirst(s.matchChangesLocked(models.ChangeFilter{TargetID: id}))
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) UpsertGroup(ctx context.Context, group models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[group.ID]; !ok {
		s.members[group.ID] = make(map[string]struct{})
	}
	s.groups[group.ID] = group
	return nil
}

func (s *Store) AddGroupMember(ctx context.Context, groupID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return apierr.New(apierr.KindNotFound, fmt.Sprintf("group %q not found", groupID))
	}
	if _, ok := s.nodes[nodeID]; !ok {
		return apierr.New(apierr.KindNotFound, fmt.Sprintf("node %q not found", nodeID))
	}
	s.members[groupID][nodeID] = struct{}{}
	return nil
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.members[groupID]; ok {
		delete(set, nodeID)
	}
	return nil
}

func (s *Store) GetGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.members[groupID]
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, fmt.Sprintf("group %q not found", groupID))
	}
	var out []string
	for nid := range set {
		out = append(out, nid)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) GetStats(ctx context.Context) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := store.Stats{
		NodesByProvider:     make(map[models.Provider]int),
		NodesByResourceType: make(map[models.ResourceType]int),
		NodesByStatus:       make(map[models.NodeStatus]int),
	}
	var lastSync time.Time
	for _, n := range s.nodes {
		stats.TotalNodes++
		stats.NodesByProvider[n.Provider]++
		stats.NodesByResourceType[n.ResourceType]++
		stats.NodesByStatus[n.Status]++
		if n.CostMonthly != nil {
			stats.TotalCostMonthly += *n.CostMonthly
		}
		if n.LastSyncedAt.After(lastSync) {
			lastSync = n.LastSyncedAt
		}
	}
	stats.TotalEdges = len(s.edges)
	stats.LastSyncAt = lastSync
	return stats, nil
}

func nodesEqual(a, b models.Node) bool {
	if a.Name != b.Name || a.Status != b.Status || !costEqual(a.CostMonthly, b.CostMonthly) || a.Owner != b.Owner {
		return false
	}
	if len(a.Tags) != len(b.Tags) {
		return false
	}
	for k, v := range a.Tags {
		if b.Tags[k] != v {
			return false
		}
	}
	return true
}

func costEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func edgesEqual(a, b models.Edge) bool {
	return a.Confidence == b.Confidence && a.DiscoveredVia == b.DiscoveredVia
}

var _ store.Store = (*Store)(nil)
