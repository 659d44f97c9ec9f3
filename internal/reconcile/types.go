// Package reconcile implements the Reconciliation Engine (spec §4.G): a
// per-cycle pipeline that compares a declared Plan's provisioned resources
// against live cloud state, checks them for policy compliance and cost
// anomalies, synthesizes remediation actions, and optionally executes the
// safe subset of those actions through the Change Governor.
package reconcile

import (
	"context"
	"time"

	"github.com/topolane/topolane/internal/models"
)

// ActionType is the closed enum of remediation action kinds.
type ActionType string

const (
	ActionTypeUpdate   ActionType = "update"
	ActionTypeDelete   ActionType = "delete"
	ActionTypeRecreate ActionType = "recreate"
	ActionTypeScale    ActionType = "scale"
	ActionTypeAlert    ActionType = "alert"
)

// Priority is the closed enum of remediation action urgency.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// DriftType distinguishes a disappeared resource from one whose properties
// diverged from the plan.
type DriftType string

const (
	DriftDeleted       DriftType = "deleted"
	DriftConfiguration DriftType = "configuration"
)

// DriftFieldSeverity classifies how serious a single diverged field is.
type DriftFieldSeverity string

const (
	DriftFieldCritical DriftFieldSeverity = "critical"
	DriftFieldMedium   DriftFieldSeverity = "medium"
)

// criticalDriftFields mirrors the engine package's classification: fields
// whose divergence is always treated as critical regardless of magnitude.
var criticalDriftFields = map[string]bool{
	"encryption":         true,
	"publicAccess":       true,
	"deletionProtection": true,
}

func classifyFieldSeverity(path string) DriftFieldSeverity {
	if criticalDriftFields[path] {
		return DriftFieldCritical
	}
	return DriftFieldMedium
}

// DriftFieldEntry is one diverged property between the plan and live state.
type DriftFieldEntry struct {
	Path     string
	Expected any
	Actual   any
	Severity DriftFieldSeverity
}

// Drift is the per-resource drift-detection result.
type Drift struct {
	PlanLocalID  string
	NativeID     string
	ResourceType models.ResourceType
	Provider     models.Provider
	Type         DriftType
	Entries      []DriftFieldEntry
}

func (d Drift) hasCriticalEntry() bool {
	for _, e := range d.Entries {
		if e.Severity == DriftFieldCritical {
			return true
		}
	}
	return false
}

// ViolationSeverity classifies a compliance violation.
type ViolationSeverity string

const (
	ViolationCritical ViolationSeverity = "critical"
	ViolationHigh     ViolationSeverity = "high"
	ViolationMedium   ViolationSeverity = "medium"
	ViolationLow      ViolationSeverity = "low"
)

// Violation is one policy-engine finding against a planned resource.
type Violation struct {
	PlanLocalID  string
	NativeID     string
	ResourceType models.ResourceType
	Provider     models.Provider
	PolicyName   string
	Message      string
	Severity     ViolationSeverity
}

// PolicyEngine validates a planned resource's properties against whatever
// compliance rules an operator has configured.
type PolicyEngine interface {
	Validate(resourceType models.ResourceType, properties map[string]any) ([]Violation, error)
}

// AnomalyType distinguishes a cost spike from a cost trend.
type AnomalyType string

const (
	AnomalySpike AnomalyType = "spike"
	AnomalyTrend AnomalyType = "trend"
)

// CostAnomaly is one resource whose actual 30-day spend diverged from its
// planned estimate by more than the configured threshold.
type CostAnomaly struct {
	PlanLocalID    string
	NativeID       string
	ResourceType   models.ResourceType
	Provider       models.Provider
	Type           AnomalyType
	PlannedMonthly float64
	ActualMonthly  float64
	DeltaPct       float64
	PossibleCauses []string
}

// RemediationAction is one action synthesized from a drift, violation, or
// cost anomaly during a reconciliation cycle.
type RemediationAction struct {
	ID               string
	PlanLocalID      string
	NativeID         string
	ResourceType     models.ResourceType
	Provider         models.Provider
	Type             ActionType
	Priority         Priority
	AutoExecutable   bool
	ApprovalRequired bool
	Reason           string
	Properties       map[string]any
}

// ActionResult is the outcome of actually executing a RemediationAction.
type ActionResult struct {
	ActionID   string
	Success    bool
	Error      string
	ExecutedAt time.Time
}

// ActionExecutor performs remediation actions for one resource-type family,
// grounded on catherinevee-driftmgr's internal/remediation.ActionExecutor
// (Execute/GetType/Validate).
type ActionExecutor interface {
	Execute(ctx context.Context, action RemediationAction) (ActionResult, error)
	GetType() string
	Validate(action RemediationAction) error
}

// Result is the per-cycle reconciliation report (spec §4.G "Result record").
// AutoRemediationApplied reports whether step 5 ran at all this cycle;
// ExecutedActions carries the individual outcomes for whichever actions it
// applied.
type Result struct {
	ID                     string
	PlanID                 string
	ExecutionID            string
	Timestamp              time.Time
	DriftDetected          bool
	Drifts                 []Drift
	Violations             []Violation
	Anomalies              []CostAnomaly
	RecommendedActions     []RemediationAction
	AutoRemediationApplied bool
	ExecutedActions        []ActionResult
}

// Report is the structured summary published to the alerting sink at the
// end of a cycle.
type Report struct {
	PlanID         string
	ExecutionID    string
	DriftCount     int
	ViolationCount int
	AnomalyCount   int
	Message        string
}

// ReportSink publishes a reconciliation Report. Implementations may back it
// with a topic/queue or simply log in-process.
type ReportSink interface {
	Publish(ctx context.Context, report Report) error
}
