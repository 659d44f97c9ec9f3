// Package metrics holds the Prometheus collectors this platform exposes:
// sync duration, node/edge/change counts, drift counts, governor decisions,
// and alert dispatch counts (SPEC_FULL.md's Observability section).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector this platform registers. Construct one with
// NewMetrics and pass it down to the engine, governor, and monitor.
type Metrics struct {
	SyncDuration     prometheus.Histogram
	SyncsTotal       *prometheus.CounterVec
	NodesTotal       prometheus.Gauge
	EdgesTotal       prometheus.Gauge
	ChangesTotal     prometheus.Counter
	DriftedNodes     prometheus.Gauge
	DisappearedTotal prometheus.Counter

	GovernorDecisionsTotal *prometheus.CounterVec
	GovernorPendingTotal   prometheus.Gauge

	AlertsFiredTotal      *prometheus.CounterVec
	AlertsDispatchedTotal *prometheus.CounterVec
	AlertDispatchErrors   *prometheus.CounterVec

	collectors []prometheus.Collector
	registerer prometheus.Registerer
}

// NewMetrics builds every collector and registers them with reg. reg is
// typically prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests, so repeated test runs don't panic on
// duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const namespace = "topolane"

	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_duration_seconds",
		Help:      "Duration of one engine sync cycle across all adapters.",
		Buckets:   prometheus.DefBuckets,
	})
	syncsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "syncs_total",
		Help:      "Total number of sync cycles, labeled by status (ok, partial, error).",
	}, []string{"status"})
	nodesTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "nodes_total",
		Help:      "Current number of nodes in the graph store.",
	})
	edgesTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "edges_total",
		Help:      "Current number of edges in the graph store.",
	})
	changesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "changes_total",
		Help:      "Total number of change records appended.",
	})
	driftedNodes := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "drifted_nodes",
		Help:      "Number of nodes with detected drift as of the last reconcile cycle.",
	})
	disappearedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "disappeared_total",
		Help:      "Total number of nodes confirmed disappeared across all sync cycles.",
	})

	governorDecisionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "governor_decisions_total",
		Help:      "Total number of governor verdicts, labeled by verdict (allow, deny, require-approval).",
	}, []string{"verdict"})
	governorPendingTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "governor_pending_total",
		Help:      "Current number of change requests awaiting approval.",
	})

	alertsFiredTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_fired_total",
		Help:      "Total number of alerts fired, labeled by rule id and severity.",
	}, []string{"rule", "severity"})
	alertsDispatchedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_dispatched_total",
		Help:      "Total number of alerts successfully dispatched, labeled by destination.",
	}, []string{"destination"})
	alertDispatchErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alert_dispatch_errors_total",
		Help:      "Total number of alert dispatch failures, labeled by destination.",
	}, []string{"destination"})

	collectors := []prometheus.Collector{
		syncDuration, syncsTotal, nodesTotal, edgesTotal, changesTotal,
		driftedNodes, disappearedTotal, governorDecisionsTotal, governorPendingTotal,
		alertsFiredTotal, alertsDispatchedTotal, alertDispatchErrors,
	}
	reg.MustRegister(collectors...)

	return &Metrics{
		SyncDuration:           syncDuration,
		SyncsTotal:             syncsTotal,
		NodesTotal:             nodesTotal,
		EdgesTotal:             edgesTotal,
		ChangesTotal:           changesTotal,
		DriftedNodes:           driftedNodes,
		DisappearedTotal:       disappearedTotal,
		GovernorDecisionsTotal: governorDecisionsTotal,
		GovernorPendingTotal:   governorPendingTotal,
		AlertsFiredTotal:       alertsFiredTotal,
		AlertsDispatchedTotal:  alertsDispatchedTotal,
		AlertDispatchErrors:    alertDispatchErrors,
		collectors:             collectors,
		registerer:             reg,
	}
}

// Unregister removes every collector from the registry. Call this before
// constructing a second Metrics against the same registerer (tests that
// build one per case against prometheus.DefaultRegisterer, for instance).
func (m *Metrics) Unregister() {
	if m.registerer == nil {
		return
	}
	for _, c := range m.collectors {
		m.registerer.Unregister(c)
	}
}
