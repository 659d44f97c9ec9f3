package metrics

import "time"

// RecordSync observes one sync cycle's duration and outcome.
func (m *Metrics) RecordSync(duration time.Duration, status string) {
	m.SyncDuration.Observe(duration.Seconds())
	m.SyncsTotal.WithLabelValues(status).Inc()
}

// SetGraphSize updates the current node/edge gauges, typically from a fresh
// store.Stats read after a sync cycle.
func (m *Metrics) SetGraphSize(nodes, edges int) {
	m.NodesTotal.Set(float64(nodes))
	m.EdgesTotal.Set(float64(edges))
}

// RecordChanges increments the change counter by n.
func (m *Metrics) RecordChanges(n int) {
	m.ChangesTotal.Add(float64(n))
}

// SetDriftedNodes records the drifted-node count from the latest drift
// report.
func (m *Metrics) SetDriftedNodes(n int) {
	m.DriftedNodes.Set(float64(n))
}

// RecordDisappeared increments the disappeared-node counter by n.
func (m *Metrics) RecordDisappeared(n int) {
	m.DisappearedTotal.Add(float64(n))
}

// RecordGovernorDecision increments the decision counter for verdict.
func (m *Metrics) RecordGovernorDecision(verdict string) {
	m.GovernorDecisionsTotal.WithLabelValues(verdict).Inc()
}

// SetGovernorPending records the current pending-request count.
func (m *Metrics) SetGovernorPending(n int) {
	m.GovernorPendingTotal.Set(float64(n))
}

// RecordAlertFired increments the fired-alert counter for one rule/severity
// pair.
func (m *Metrics) RecordAlertFired(rule, severity string) {
	m.AlertsFiredTotal.WithLabelValues(rule, severity).Inc()
}

// RecordAlertDispatch increments either the dispatched or the error counter
// for destination, depending on whether the dispatch succeeded.
func (m *Metrics) RecordAlertDispatch(destination string, err error) {
	if err != nil {
		m.AlertDispatchErrors.WithLabelValues(destination).Inc()
		return
	}
	m.AlertsDispatchedTotal.WithLabelValues(destination).Inc()
}
