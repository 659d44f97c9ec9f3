// Package monitor implements the Monitoring Loop (spec §4.H): a scheduled
// sync worker and an event-ingestion worker, both governed by one
// start/stop lifecycle, feeding a pluggable set of alert rules and
// dispatch destinations.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/topolane/topolane/internal/cloud"
	"github.com/topolane/topolane/internal/engine"
	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/metrics"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/monitor/rules"
	"github.com/topolane/topolane/internal/store"
)

var logger = logging.GetLogger("monitor")

const defaultMaxAlertsPerCycle = 50

// Option configures a Monitor at construction time.
type Option func(*Monitor)

// WithSyncInterval overrides the scheduled-sync tick period.
func WithSyncInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.syncInterval = d
		}
	}
}

// WithEventPollInterval overrides the event-ingestion tick period.
func WithEventPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.eventPollInterval = d
		}
	}
}

// WithAlertCooldown overrides the per-rule suppression window.
func WithAlertCooldown(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.cooldown = newCooldownTracker(d)
		}
	}
}

// WithMaxAlertsPerCycle caps how many alerts one cycle dispatches.
func WithMaxAlertsPerCycle(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.maxAlertsPerCycle = n
		}
	}
}

// WithRules replaces the default built-in rule set.
func WithRules(rs []rules.Rule) Option {
	return func(m *Monitor) { m.rules = rs }
}

// WithDestination registers an alert dispatch destination.
func WithDestination(d Destination) Option {
	return func(m *Monitor) { m.destinations = append(m.destinations, d) }
}

// WithEventSource registers an event-ingestion source.
func WithEventSource(src cloud.EventSourceAdapter) Option {
	return func(m *Monitor) { m.eventSources = append(m.eventSources, src) }
}

// WithProviders scopes the scheduled sync to a fixed set of providers
// instead of every adapter the engine has registered.
func WithProviders(providers []models.Provider) Option {
	return func(m *Monitor) { m.providers = providers }
}

// WithMetrics attaches a Metrics instance the monitor reports sync
// duration, graph size, change counts, and alert counts to.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mx }
}

// Monitor runs the scheduled sync worker and the event-ingestion worker.
type Monitor struct {
	engine *engine.Engine
	store  store.Store

	syncInterval      time.Duration
	eventPollInterval time.Duration
	maxAlertsPerCycle int
	providers         []models.Provider

	rules        []rules.Rule
	destinations []Destination
	cooldown     *cooldownTracker

	eventSources []cloud.EventSourceAdapter
	lastPollMu   sync.Mutex
	lastPollAt   map[string]int64

	metrics *metrics.Metrics

	statsMu       sync.Mutex
	previousStats store.Stats

	syncRunning int32 // atomic backpressure flag for the sync worker

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New returns a Monitor over eng/st with the spec's default built-in rule
// set (20% cost-anomaly threshold), a console destination, a 15-minute
// cooldown, and 5-minute sync / 1-minute event-poll intervals.
func New(eng *engine.Engine, st store.Store, opts ...Option) *Monitor {
	m := &Monitor{
		engine:            eng,
		store:             st,
		syncInterval:      5 * time.Minute,
		eventPollInterval: time.Minute,
		maxAlertsPerCycle: defaultMaxAlertsPerCycle,
		rules:             rules.BuiltinRules(20.0),
		destinations:      []Destination{NewConsoleDestination()},
		cooldown:          newCooldownTracker(15 * time.Minute),
		lastPollAt:        make(map[string]int64),
		stopCh:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the sync scheduler and event poller as background
// goroutines governed by this Monitor's lifecycle. Start is idempotent
// only in the sense that calling Stop then Start again is not supported;
// construct a new Monitor instead.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(2)
	go m.runSyncLoop(ctx)
	go m.runEventLoop(ctx)
}

// Stop signals both workers to exit and waits for them to finish.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) runSyncLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tickSync(ctx)
		}
	}
}

func (m *Monitor) runEventLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.eventPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.PollEvents(ctx); err != nil {
				logger.ErrorWithFields("event ingestion failed", logging.Field("error", err.Error()))
			}
		}
	}
}

// tickSync applies the backpressure rule (spec §5): if the previous sync
// cycle is still running when the next tick fires, this tick is skipped,
// not queued.
func (m *Monitor) tickSync(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&m.syncRunning, 0, 1) {
		logger.Warn("skipping sync tick: previous cycle still running")
		return
	}
	defer atomic.StoreInt32(&m.syncRunning, 0)

	if _, err := m.RunOneCycle(ctx); err != nil {
		logger.ErrorWithFields("sync cycle failed", logging.Field("error", err.Error()))
	}
}

// RunOneCycle runs a single scheduled-sync cycle synchronously: sync, stats
// capture, rule evaluation, cooldown filtering, cap, dispatch. Exposed for
// tests and for callers that want cycle control without the ticker.
func (m *Monitor) RunOneCycle(ctx context.Context) ([]models.SyncRecord, error) {
	m.statsMu.Lock()
	previousStats := m.previousStats
	m.statsMu.Unlock()

	start := time.Now()
	records, err := m.engine.Sync(ctx, m.providers)
	if err != nil {
		m.recordSyncMetric(start, "error")
		return records, err
	}

	currentStats, err := m.store.GetStats(ctx)
	if err != nil {
		m.recordSyncMetric(start, "error")
		return records, err
	}

	status := "ok"
	var disappeared int
	for _, rec := range records {
		if rec.Status == models.SyncPartial {
			status = "partial"
		}
		disappeared += rec.NodesDisappeared
	}
	m.recordSyncMetric(start, status)
	if m.metrics != nil {
		m.metrics.SetGraphSize(currentStats.TotalNodes, currentStats.TotalEdges)
		if disappeared > 0 {
			m.metrics.RecordDisappeared(disappeared)
		}
	}

	evalCtx := rules.EvalContext{
		Engine:        m.engine,
		Store:         m.store,
		SyncRecords:   records,
		PreviousStats: previousStats,
		CurrentStats:  currentStats,
	}
	alerts := m.evaluateRules(ctx, evalCtx)
	m.dispatch(ctx, alerts)

	m.statsMu.Lock()
	m.previousStats = currentStats
	m.statsMu.Unlock()

	return records, nil
}

func (m *Monitor) recordSyncMetric(start time.Time, status string) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordSync(time.Since(start), status)
}

// evaluateRules runs every enabled rule, swallowing individual rule errors
// so one broken rule never blocks the others (spec §4.H cooldown section).
func (m *Monitor) evaluateRules(ctx context.Context, evalCtx rules.EvalContext) []rules.Alert {
	now := time.Now()
	var fired []rules.Alert
	for _, r := range m.rules {
		if !r.Enabled() {
			continue
		}
		alerts, err := r.Evaluate(ctx, evalCtx)
		if err != nil {
			logger.ErrorWithFields("alert rule evaluation failed", logging.Field("rule", r.ID()), logging.Field("error", err.Error()))
			continue
		}
		if len(alerts) == 0 {
			continue
		}
		if !m.cooldown.allow(r.ID(), now) {
			continue
		}
		for i := range alerts {
			alerts[i].DetectedAt = now
		}
		if m.metrics != nil {
			for _, a := range alerts {
				m.metrics.RecordAlertFired(r.ID(), string(a.Severity))
			}
		}
		fired = append(fired, alerts...)
	}

	sort.SliceStable(fired, func(i, j int) bool { return severityRank(fired[i].Severity) > severityRank(fired[j].Severity) })
	if len(fired) > m.maxAlertsPerCycle {
		logger.Warn("alert cap reached, dropping lowest-severity alerts this cycle")
		fired = fired[:m.maxAlertsPerCycle]
	}
	return fired
}

func severityRank(s rules.Severity) int {
	switch s {
	case rules.SeverityCritical:
		return 3
	case rules.SeverityHigh:
		return 2
	case rules.SeverityMedium:
		return 1
	default:
		return 0
	}
}

func (m *Monitor) dispatch(ctx context.Context, alerts []rules.Alert) {
	if len(alerts) == 0 {
		return
	}
	for i, dest := range m.destinations {
		dctx, cancel := context.WithTimeout(ctx, defaultDispatchTimeout)
		err := dest.Dispatch(dctx, alerts)
		cancel()
		if err != nil {
			logger.ErrorWithFields("alert dispatch failed", logging.Field("error", err.Error()))
		}
		if m.metrics != nil {
			m.metrics.RecordAlertDispatch(destinationLabel(i, dest), err)
		}
	}
}

// destinationLabel gives a Destination a stable metric label. Destination
// has no Name() of its own (spec §6 doesn't require one), so this falls
// back to the concrete type name with the registration index appended to
// disambiguate two destinations of the same kind.
func destinationLabel(index int, dest Destination) string {
	switch dest.(type) {
	case *ConsoleDestination:
		return fmt.Sprintf("console-%d", index)
	case *WebhookDestination:
		return fmt.Sprintf("webhook-%d", index)
	case *CallbackDestination:
		return fmt.Sprintf("callback-%d", index)
	case *SlackDestination:
		return fmt.Sprintf("slack-%d", index)
	default:
		return fmt.Sprintf("destination-%d", index)
	}
}

// PollEvents fetches new events from every registered event source since
// its last successful poll, converts mutation events to Change records,
// and appends them to the store. Read-only events are excluded.
func (m *Monitor) PollEvents(ctx context.Context) error {
	for _, src := range m.eventSources {
		if err := m.pollOne(ctx, src); err != nil {
			logger.ErrorWithFields("event source poll failed", logging.Field("source", src.Type()), logging.Field("error", err.Error()))
		}
	}
	return nil
}

func (m *Monitor) pollOne(ctx context.Context, src cloud.EventSourceAdapter) error {
	key := src.Type() + "::" + string(src.Provider())
	m.lastPollMu.Lock()
	sinceTs := m.lastPollAt[key]
	m.lastPollMu.Unlock()

	events, err := src.FetchEvents(ctx, sinceTs)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var maxTs int64
	changes := make([]models.Change, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp > maxTs {
			maxTs = ev.Timestamp
		}
		if ev.ReadOnly {
			continue
		}
		targetID, err := m.resolveTargetID(ctx, ev)
		if err != nil {
			return err
		}
		changes = append(changes, eventToChange(ev, targetID))
	}

	if len(changes) > 0 {
		if err := m.store.AppendChanges(ctx, changes); err != nil {
			return err
		}
		if m.metrics != nil {
			m.metrics.RecordChanges(len(changes))
		}
	}

	m.lastPollMu.Lock()
	if maxTs > m.lastPollAt[key] {
		m.lastPollAt[key] = maxTs
	}
	m.lastPollMu.Unlock()
	return nil
}

// resolveTargetID maps a CloudEvent's bare nativeId to the store's
// deterministic node id by looking up nodes of the same provider and
// resource type. CloudEvent carries no region, so an event for a resource
// not yet discovered (or disambiguated only by region) falls back to the
// raw resourceId.
func (m *Monitor) resolveTargetID(ctx context.Context, ev cloud.CloudEvent) (string, error) {
	nodes, err := m.store.QueryNodes(ctx, store.NodeFilter{
		Provider:      ev.Provider,
		ResourceTypes: []models.ResourceType{ev.ResourceType},
	})
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		if n.NativeID == ev.ResourceID {
			return n.ID, nil
		}
	}
	return ev.ResourceID, nil
}

// eventToChange maps a CloudEvent to a Change record per spec §4.H's
// event-type substring rule: "create"/"run"/"launch" -> node-created,
// "delete"/"terminate"/"remove" -> node-deleted, else node-updated.
func eventToChange(ev cloud.CloudEvent, targetID string) models.Change {
	initiatorType := models.InitiatorHuman
	if ev.Actor == "" {
		initiatorType = models.InitiatorUnknown
	}

	return models.Change{
		ID:            ev.ID,
		TargetID:      targetID,
		ChangeType:    classifyEventType(ev.EventType),
		DetectedAt:    time.Unix(ev.Timestamp, 0),
		DetectedVia:   models.DetectedEventStream,
		Initiator:     ev.Actor,
		InitiatorType: initiatorType,
		Metadata:      ev.Raw,
	}
}

func classifyEventType(eventType string) models.ChangeType {
	switch {
	case containsAny(eventType, "create", "run", "launch"):
		return models.ChangeNodeCreated
	case containsAny(eventType, "delete", "terminate", "remove"):
		return models.ChangeNodeDeleted
	default:
		return models.ChangeNodeUpdated
	}
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
