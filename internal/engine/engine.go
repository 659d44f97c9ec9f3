// Package engine implements the Graph Engine (spec §4.E): sync
// orchestration across registered cloud adapters, high-level queries over
// the Graph Store (blast radius, dependency chains, cost rollups), and
// drift detection.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/topolane/topolane/internal/cloud"
	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

var logger = logging.GetLogger("engine")

const (
	defaultMaxConcurrentDiscovers = 4
	defaultDisappearanceMisses    = 2
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMaxConcurrentDiscovers bounds the fan-out of concurrent adapter
// Discover calls during sync.
func WithMaxConcurrentDiscovers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrentDiscovers = n
		}
	}
}

// WithDisappearanceMisses sets how many consecutive sync passes must fail
// to observe a node before it is flagged disappeared.
func WithDisappearanceMisses(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.disappearanceMisses = n
		}
	}
}

// registeredAdapter pairs an adapter with the circuit breaker guarding its
// Discover calls.
type registeredAdapter struct {
	adapter cloud.Adapter
	breaker *gobreaker.CircuitBreaker
}

// Engine orchestrates discovery across registered cloud adapters and
// exposes high-level read queries over the wrapped Graph Store.
type Engine struct {
	store store.Store

	mu       sync.Mutex
	adapters map[string]*registeredAdapter
	order    []string // registration order, for deterministic default sync scope

	maxConcurrentDiscovers int
	disappearanceMisses    int

	missCounts map[string]int // nodeID -> consecutive sync passes not observed

	statsMu    sync.Mutex
	statsCache *store.Stats
	statsDirty bool
}

// New returns an Engine over st with no adapters registered.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:                  st,
		adapters:               make(map[string]*registeredAdapter),
		maxConcurrentDiscovers: defaultMaxConcurrentDiscovers,
		disappearanceMisses:    defaultDisappearanceMisses,
		missCounts:             make(map[string]int),
		statsDirty:             true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterAdapter adds a cloud Adapter to the engine's sync rotation. Each
// adapter gets its own circuit breaker so one failing provider cannot
// starve the others' fan-out slots.
func (e *Engine) RegisterAdapter(a cloud.Adapter) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.adapters[a.Name()] = &registeredAdapter{
		adapter: a,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        a.Name(),
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
	e.order = append(e.order, a.Name())
}

// Sync runs discovery for the given providers (all registered adapters if
// empty), upserts the results, confirms disappearance of previously-known
// nodes no longer observed, and returns one Sync Record per adapter run.
func (e *Engine) Sync(ctx context.Context, providers []models.Provider) ([]models.SyncRecord, error) {
	targets, err := e.adaptersFor(providers)
	if err != nil {
		return nil, err
	}
	ordered, err := topoSortAdapters(targets)
	if err != nil {
		return nil, err
	}

	records := make([]models.SyncRecord, len(targets))
	results := make([]cloud.DiscoverResult, len(targets))

	// Adapters within one phase discover concurrently, bounded by
	// maxConcurrentDiscovers; phases themselves run strictly in order and
	// each phase's results are upserted before the next phase starts
	// discovering, so an adapter's edges never reference a node from a
	// phase that hasn't been written yet.
	for _, phase := range ordered {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.maxConcurrentDiscovers)
		for _, idx := range phase {
			idx := idx
			ra := targets[idx]
			g.Go(func() error {
				rec, res, err := e.syncOne(gctx, ra)
				records[idx] = rec
				results[idx] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			logger.ErrorWithFields("sync phase failed", logging.Field("error", err.Error()))
		}

		for _, idx := range phase {
			if err := e.upsertDiscovered(ctx, results[idx]); err != nil {
				records[idx].Status = models.SyncFailed
				records[idx].Error = err.Error()
			}
		}
	}

	if err := e.confirmDisappearances(ctx, targets, results, records); err != nil {
		logger.ErrorWithFields("disappearance confirmation failed", logging.Field("error", err.Error()))
	}

	e.markStatsDirty()
	return records, nil
}

func (e *Engine) adaptersFor(providers []models.Provider) ([]*registeredAdapter, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(providers) == 0 {
		out := make([]*registeredAdapter, 0, len(e.order))
		for _, name := range e.order {
			out = append(out, e.adapters[name])
		}
		return out, nil
	}

	want := make(map[models.Provider]bool, len(providers))
	for _, p := range providers {
		want[p] = true
	}
	var out []*registeredAdapter
	for _, name := range e.order {
		ra := e.adapters[name]
		if want[ra.adapter.Provider()] {
			out = append(out, ra)
		}
	}
	return out, nil
}

func (e *Engine) syncOne(ctx context.Context, ra *registeredAdapter) (models.SyncRecord, cloud.DiscoverResult, error) {
	rec := models.SyncRecord{
		ID:        uuid.New().String(),
		Provider:  ra.adapter.Provider(),
		StartedAt: time.Now(),
		Status:    models.SyncRunning,
	}

	var result cloud.DiscoverResult
	_, err := ra.breaker.Execute(func() (any, error) {
		return nil, retry.Do(func() error {
			res, err := ra.adapter.Discover(ctx, cloud.DiscoverFilter{})
			if err != nil {
				return err
			}
			result = res
			return nil
		},
			retry.Attempts(3),
			retry.Delay(1*time.Second),
			retry.DelayType(retry.BackOffDelay),
			retry.Context(ctx),
		)
	})

	now := time.Now()
	rec.CompletedAt = &now
	if err != nil {
		rec.Status = models.SyncFailed
		rec.Error = err.Error()
		return rec, result, err
	}
	rec.Status = models.SyncCompleted
	rec.NodesDiscovered = len(result.Nodes)
	return rec, result, nil
}

// upsertDiscovered writes discovered nodes then edges, in that order, so
// edges never reference a node the store hasn't seen yet.
func (e *Engine) upsertDiscovered(ctx context.Context, result cloud.DiscoverResult) error {
	if len(result.Nodes) > 0 {
		if err := e.store.UpsertNodes(ctx, result.Nodes); err != nil {
			return fmt.Errorf("engine: upsert nodes: %w", err)
		}
	}
	if len(result.Edges) > 0 {
		if err := e.store.UpsertEdges(ctx, result.Edges); err != nil {
			return fmt.Errorf("engine: upsert edges: %w", err)
		}
	}
	return nil
}

// confirmDisappearances calls Describe for every previously-known node of a
// synced provider that wasn't present in this pass's discovery results, and
// applies the two-miss rule before deleting.
func (e *Engine) confirmDisappearances(ctx context.Context, targets []*registeredAdapter, results []cloud.DiscoverResult, records []models.SyncRecord) error {
	for i, ra := range targets {
		seen := make(map[string]bool, len(results[i].Nodes))
		for _, n := range results[i].Nodes {
			seen[models.NodeID(n.Provider, n.Region, n.ResourceType, n.NativeID)] = true
		}

		known, err := e.store.QueryNodes(ctx, store.NodeFilter{Provider: ra.adapter.Provider()})
		if err != nil {
			return err
		}

		for _, n := range known {
			if seen[n.ID] {
				e.mu.Lock()
				delete(e.missCounts, n.ID)
				e.mu.Unlock()
				continue
			}

			live, err := ra.adapter.Describe(ctx, n.NativeID, n.ResourceType)
			if err != nil {
				// Transient describe failure: neither confirms presence nor
				// absence, so it doesn't count toward the miss rule.
				continue
			}
			if live != nil {
				e.mu.Lock()
				delete(e.missCounts, n.ID)
				e.mu.Unlock()
				continue
			}

			e.mu.Lock()
			e.missCounts[n.ID]++
			misses := e.missCounts[n.ID]
			e.mu.Unlock()

			if misses < e.disappearanceMisses {
				continue
			}

			if err := e.store.DeleteNode(ctx, n.ID); err != nil {
				logger.ErrorWithFields("failed to delete disappeared node", logging.Field("nodeId", n.ID), logging.Field("error", err.Error()))
				continue
			}
			records[i].NodesDisappeared++
			e.mu.Lock()
			delete(e.missCounts, n.ID)
			e.mu.Unlock()
		}
	}
	return nil
}

// topoSortAdapters groups registered adapters into sequential phases using
// Kahn's algorithm over their DependsOn declarations, so a phase's adapters
// can run concurrently while still guaranteeing every adapter in phase N+1
// only runs after every adapter its providers depend on has completed.
func topoSortAdapters(targets []*registeredAdapter) ([][]int, error) {
	n := len(targets)
	providerIndex := make(map[models.Provider][]int, n)
	for i, ra := range targets {
		providerIndex[ra.adapter.Provider()] = append(providerIndex[ra.adapter.Provider()], i)
	}

	deps := make([][]int, n) // deps[i] = indices i depends on
	indegree := make([]int, n)
	for i, ra := range targets {
		dep, ok := ra.adapter.(cloud.DependsOn)
		if !ok {
			continue
		}
		for _, p := range dep.DependsOnProviders() {
			for _, j := range providerIndex[p] {
				if j == i {
					continue
				}
				deps[i] = append(deps[i], j)
				indegree[i]++
			}
		}
	}

	dependents := make([][]int, n)
	for i, d := range deps {
		for _, j := range d {
			dependents[j] = append(dependents[j], i)
		}
	}

	var phases [][]int
	remaining := n
	visited := make([]bool, n)
	for remaining > 0 {
		var phase []int
		for i := 0; i < n; i++ {
			if !visited[i] && indegree[i] == 0 {
				phase = append(phase, i)
			}
		}
		if len(phase) == 0 {
			return nil, fmt.Errorf("engine: cyclic adapter dependency declaration")
		}
		sort.Ints(phase)
		for _, i := range phase {
			visited[i] = true
			remaining--
			for _, j := range dependents[i] {
				indegree[j]--
			}
		}
		phases = append(phases, phase)
	}
	return phases, nil
}

func (e *Engine) markStatsDirty() {
	e.statsMu.Lock()
	e.statsDirty = true
	e.statsMu.Unlock()
}

// GetStats proxies the store's stats, memoized until the next Sync call.
func (e *Engine) GetStats(ctx context.Context) (store.Stats, error) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	if !e.statsDirty && e.statsCache != nil {
		return *e.statsCache, nil
	}

	stats, err := e.store.GetStats(ctx)
	if err != nil {
		return store.Stats{}, err
	}
	e.statsCache = &stats
	e.statsDirty = false
	return stats, nil
}
