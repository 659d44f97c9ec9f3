// Package embedded implements the Graph Store contract as a single-process,
// file-backed backend: a JSON-lines write-ahead log durably records every
// mutation, replayed into an in-memory index on open. No third-party
// embedded-database library appears anywhere in the reference corpus this
// platform was built from, so this backend is intentionally stdlib-only.
package embedded

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/topolane/topolane/internal/apierr"
	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
	"github.com/topolane/topolane/internal/store/memory"
)

var logger = logging.GetLogger("store.embedded")

// opKind distinguishes the mutating operations recorded in the log.
type opKind string

const (
	opUpsertNodes  opKind = "upsert-nodes"
	opUpsertEdges  opKind = "upsert-edges"
	opDeleteNode   opKind = "delete-node"
	opAppendChange opKind = "append-changes"
	opUpsertGroup  opKind = "upsert-group"
	opAddMember    opKind = "add-member"
	opRemoveMember opKind = "remove-member"
)

// record is one write-ahead log entry. Only the fields relevant to Op are
// populated; the rest are left zero.
type record struct {
	Op       opKind             `json:"op"`
	Nodes    []models.NodeInput `json:"nodes,omitempty"`
	Edges    []models.EdgeInput `json:"edges,omitempty"`
	NodeID   string             `json:"nodeId,omitempty"`
	Changes  []models.Change    `json:"changes,omitempty"`
	Group    *models.Group      `json:"group,omitempty"`
	GroupID  string             `json:"groupId,omitempty"`
	MemberID string             `json:"memberId,omitempty"`
}

// Store wraps memory.Store's indexing with a durable append-only log. Every
// mutating call is fsynced before the in-memory index is updated so a crash
// between the two never loses an acknowledged write.
type Store struct {
	mu    sync.Mutex
	inner *memory.Store
	file  *os.File
	enc   *json.Encoder
}

// Open loads (or creates) the log file at path, replays it to rebuild the
// in-memory index, and returns a Store ready to accept further writes.
func Open(path string) (*Store, error) {
	s := &Store{inner: memory.New()}

	if f, err := os.Open(path); err == nil {
		if err := s.replay(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("embedded: replay %q: %w", path, err)
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("embedded: open %q: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("embedded: open %q for append: %w", path, err)
	}
	s.file = file
	s.enc = json.NewEncoder(file)

	logger.InfoWithFields("embedded store ready", logging.Field("path", path))
	return s, nil
}

func (s *Store) replay(f *os.File) error {
	ctx := context.Background()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r record
		if err := json.Unmarshal(line, &r); err != nil {
			return fmt.Errorf("corrupt log record: %w", err)
		}
		if err := s.apply(ctx, r); err != nil {
			return fmt.Errorf("replay %s: %w", r.Op, err)
		}
	}
	return scanner.Err()
}

func (s *Store) apply(ctx context.Context, r record) error {
	switch r.Op {
	case opUpsertNodes:
		return s.inner.UpsertNodes(ctx, r.Nodes)
	case opUpsertEdges:
		return s.inner.UpsertEdges(ctx, r.Edges)
	case opDeleteNode:
		return s.inner.DeleteNode(ctx, r.NodeID)
	case opAppendChange:
		return s.inner.AppendChanges(ctx, r.Changes)
	case opUpsertGroup:
		return s.inner.UpsertGroup(ctx, *r.Group)
	case opAddMember:
		return s.inner.AddGroupMember(ctx, r.GroupID, r.MemberID)
	case opRemoveMember:
		return s.inner.RemoveGroupMember(ctx, r.GroupID, r.MemberID)
	default:
		return fmt.Errorf("unknown op %q", r.Op)
	}
}

// write appends r to the log and fsyncs before returning, so the caller can
// safely apply the same mutation to the in-memory index afterward.
func (s *Store) write(r record) error {
	if err := s.enc.Encode(r); err != nil {
		return fmt.Errorf("embedded: write log record: %w", err)
	}
	return s.file.Sync()
}

// Close flushes and releases the underlying log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *Store) UpsertNodes(ctx context.Context, nodes []models.NodeInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(record{Op: opUpsertNodes, Nodes: nodes}); err != nil {
		return err
	}
	return s.inner.UpsertNodes(ctx, nodes)
}

func (s *Store) UpsertEdges(ctx context.Context, edges []models.EdgeInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edges {
		if n, _ := s.inner.GetNode(ctx, e.SourceNodeID); n == nil {
			return apierr.New(apierr.KindDanglingEdge, fmt.Sprintf("source node %q does not exist", e.SourceNodeID))
		}
		if n, _ := s.inner.GetNode(ctx, e.TargetNodeID); n == nil {
			return apierr.New(apierr.KindDanglingEdge, fmt.Sprintf("target node %q does not exist", e.TargetNodeID))
		}
	}
	if err := s.write(record{Op: opUpsertEdges, Edges: edges}); err != nil {
		return err
	}
	return s.inner.UpsertEdges(ctx, edges)
}

func (s *Store) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(record{Op: opDeleteNode, NodeID: id}); err != nil {
		return err
	}
	return s.inner.DeleteNode(ctx, id)
}

func (s *Store) AppendChanges(ctx context.Context, changes []models.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(record{Op: opAppendChange, Changes: changes}); err != nil {
		return err
	}
	return s.inner.AppendChanges(ctx, changes)
}

func (s *Store) UpsertGroup(ctx context.Context, group models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(record{Op: opUpsertGroup, Group: &group}); err != nil {
		return err
	}
	return s.inner.UpsertGroup(ctx, group)
}

func (s *Store) AddGroupMember(ctx context.Context, groupID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(record{Op: opAddMember, GroupID: groupID, MemberID: nodeID}); err != nil {
		return err
	}
	return s.inner.AddGroupMember(ctx, groupID, nodeID)
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(record{Op: opRemoveMember, GroupID: groupID, MemberID: nodeID}); err != nil {
		return err
	}
	return s.inner.RemoveGroupMember(ctx, groupID, nodeID)
}

// Read-only operations pass straight through; memory.Store is already
// safe for concurrent readers via its own RWMutex.
func (s *Store) GetNode(ctx context.Context, id string) (*models.Node, error) {
	return s.inner.GetNode(ctx, id)
}
func (s *Store) GetEdge(ctx context.Context, id string) (*models.Edge, error) {
	return s.inner.GetEdge(ctx, id)
}
func (s *Store) QueryNodes(ctx context.Context, filter store.NodeFilter) ([]models.Node, error) {
	return s.inner.QueryNodes(ctx, filter)
}
func (s *Store) QueryNodesPaginated(ctx context.Context, filter store.NodeFilter, page store.PageRequest) (store.PageResult[models.Node], error) {
	return s.inner.QueryNodesPaginated(ctx, filter, page)
}
func (s *Store) QueryEdgesPaginated(ctx context.Context, filter store.EdgeFilter, page store.PageRequest) (store.PageResult[models.Edge], error) {
	return s.inner.QueryEdgesPaginated(ctx, filter, page)
}
func (s *Store) GetEdgesForNode(ctx context.Context, id string, dir store.Direction) ([]models.Edge, error) {
	return s.inner.GetEdgesForNode(ctx, id, dir)
}
func (s *Store) GetNeighbors(ctx context.Context, id string, maxDepth int, dir store.Direction) (store.Neighborhood, error) {
	return s.inner.GetNeighbors(ctx, id, maxDepth, dir)
}
func (s *Store) GetChanges(ctx context.Context, filter models.ChangeFilter) ([]models.Change, error) {
	return s.inner.GetChanges(ctx, filter)
}
func (s *Store) GetChangesPaginated(ctx context.Context, filter models.ChangeFilter, page store.PageRequest) (store.PageResult[models.Change], error) {
	return s.inner.GetChangesPaginated(ctx, filter, page)
}
func (s *Store) GetNodeTimeline(ctx context.Context, id string, limit int) ([]models.Change, error) {
	return s.inner.GetNodeTimeline(ctx, id, limit)
}
func (s *Store) GetGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	return s.inner.GetGroupMembers(ctx, groupID)
}
func (s *Store) GetStats(ctx context.Context) (store.Stats, error) {
	return s.inner.GetStats(ctx)
}

var _ store.Store = (*Store)(nil)
