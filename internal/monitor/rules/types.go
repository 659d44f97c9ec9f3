// Package rules implements the Monitoring Loop's built-in alert rules
// (spec §4.H): orphan, single-point-of-failure, cost-anomaly,
// unauthorized-change, and disappeared. Structurally grounded on the
// teacher's internal/analysis/anomaly sub-detector-per-file layout, one
// file per category, even though the anomalies themselves are cloud
// resource-graph anomalies rather than Kubernetes incident anomalies.
package rules

import (
	"context"
	"time"

	"github.com/topolane/topolane/internal/engine"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

// Category is the closed enum of alert rule categories.
type Category string

const (
	CategoryOrphan               Category = "orphan"
	CategorySPOF                 Category = "spof"
	CategoryCostAnomaly          Category = "cost-anomaly"
	CategoryUnauthorizedChange   Category = "unauthorized-change"
	CategoryDrift                Category = "drift"
	CategoryDisappeared          Category = "disappeared"
	CategoryCustom               Category = "custom"
)

// Severity is the closed enum of alert severities.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is one finding produced by a Rule's Evaluate call. ResourceID names
// the single primary resource an alert concerns (e.g. the hub node of a
// SPOF finding); AffectedNodeIDs carries every resource a grouped finding
// covers, including ResourceID itself where one applies.
type Alert struct {
	RuleID          string
	Name            string
	Category        Category
	Severity        Severity
	Title           string
	Message         string
	ResourceID      string
	AffectedNodeIDs []string
	DetectedAt      time.Time
	Metadata        map[string]any
}

// EvalContext is the input every Rule evaluates against: the engine and
// store for read queries, the sync records produced by the cycle that
// triggered evaluation, and the graph stats snapshots from before and
// after that cycle.
type EvalContext struct {
	Engine        *engine.Engine
	Store         store.Store
	SyncRecords   []models.SyncRecord
	PreviousStats store.Stats
	CurrentStats  store.Stats
}

// Rule is the alert rule contract (spec §4.H): {id, name, category,
// severity, enabled, evaluate(ctx) -> alerts[]}.
type Rule interface {
	ID() string
	Name() string
	Category() Category
	Severity() Severity
	Enabled() bool
	Evaluate(ctx context.Context, evalCtx EvalContext) ([]Alert, error)
}
