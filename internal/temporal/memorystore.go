package temporal

import (
	"context"
	"sort"
	"sync"

	"github.com/topolane/topolane/internal/models"
)

// MemorySnapshotStore is the default SnapshotStore: an in-process registry
// of materialized snapshots. It backs every store.Store backend uniformly,
// since snapshot persistence is orthogonal to how nodes/edges/changes are
// stored and the spec leaves its backing medium unspecified.
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	byID  map[string]models.Snapshot
	order []string
}

// NewMemorySnapshotStore constructs an empty snapshot registry.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{byID: map[string]models.Snapshot{}}
}

func (m *MemorySnapshotStore) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[snap.ID] = snap
	m.order = append(m.order, snap.ID)
	return nil
}

func (m *MemorySnapshotStore) ListSnapshots(ctx context.Context, limit int) ([]models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Snapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemorySnapshotStore) GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)
