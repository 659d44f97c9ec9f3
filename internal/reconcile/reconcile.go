package reconcile

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/topolane/topolane/internal/cloud"
	"github.com/topolane/topolane/internal/governor"
	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/models"
)

var logger = logging.GetLogger("reconcile")

const defaultCostAnomalyPct = 20.0

// Option configures a Reconciler at construction time.
type Option func(*Reconciler)

// WithPolicyEngine registers the compliance-check policy engine (step 2).
func WithPolicyEngine(pe PolicyEngine) Option {
	return func(r *Reconciler) { r.policyEngine = pe }
}

// WithReportSink registers the alerting-sink report publisher (step 6).
func WithReportSink(sink ReportSink) Option {
	return func(r *Reconciler) { r.reportSink = sink }
}

// WithCostAnomalyThreshold overrides the default 20% cost-anomaly percentage.
func WithCostAnomalyThreshold(pct float64) Option {
	return func(r *Reconciler) {
		if pct > 0 {
			r.costAnomalyPct = pct
		}
	}
}

// WithExecutor registers a built-in ActionExecutor for a resource-type
// family, consulted during auto-remediation.
func WithExecutor(e ActionExecutor) Option {
	return func(r *Reconciler) { r.executors[e.GetType()] = e }
}

// Reconciler runs the per-cycle reconciliation pipeline against a declared
// Plan and its Execution (spec §4.G).
type Reconciler struct {
	adapters       map[models.Provider]cloud.Adapter
	governor       *governor.Governor
	policyEngine   PolicyEngine
	reportSink     ReportSink
	executors      map[string]ActionExecutor
	costAnomalyPct float64
}

// New returns a Reconciler driving adapters (keyed by provider) and routing
// auto-executable actions through gov.
func New(adapters map[models.Provider]cloud.Adapter, gov *governor.Governor, opts ...Option) *Reconciler {
	r := &Reconciler{
		adapters:       adapters,
		governor:       gov,
		executors:      make(map[string]ActionExecutor),
		costAnomalyPct: defaultCostAnomalyPct,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one reconciliation cycle against plan/execution. Per-resource
// failures are isolated: a drift/compliance/cost-anomaly check that errors
// for one resource is logged and the cycle continues to the next resource.
func (r *Reconciler) Run(ctx context.Context, plan models.Plan, execution models.Execution, autoRemediationEnabled bool) (Result, error) {
	result := Result{
		ID:          uuid.New().String(),
		PlanID:      plan.ID,
		ExecutionID: execution.ID,
		Timestamp:   time.Now(),
	}

	for _, planned := range plan.Resources {
		nativeID, ok := execution.CloudIDFor(planned.PlanLocalID)
		if !ok {
			logger.WarnWithFields("plan resource has no provisioned native id, skipping",
				logging.Field("planLocalId", planned.PlanLocalID))
			continue
		}
		adapter, ok := r.adapters[planned.Provider]
		if !ok {
			logger.WarnWithFields("no adapter registered for provider, skipping resource",
				logging.Field("provider", string(planned.Provider)), logging.Field("nativeId", nativeID))
			continue
		}

		if drift, err := r.detectDrift(ctx, adapter, planned, nativeID); err != nil {
			logger.ErrorWithFields("drift detection failed",
				logging.Field("nativeId", nativeID), logging.Field("error", err.Error()))
		} else if drift != nil {
			result.Drifts = append(result.Drifts, *drift)
			result.DriftDetected = true
		}

		if r.policyEngine != nil {
			violations, err := r.policyEngine.Validate(planned.ResourceType, planned.Properties)
			if err != nil {
				logger.ErrorWithFields("compliance check failed",
					logging.Field("nativeId", nativeID), logging.Field("error", err.Error()))
			} else {
				for i := range violations {
					violations[i].PlanLocalID = planned.PlanLocalID
					violations[i].NativeID = nativeID
					violations[i].ResourceType = planned.ResourceType
					violations[i].Provider = planned.Provider
				}
				result.Violations = append(result.Violations, violations...)
			}
		}

		if costAdapter, ok := adapter.(cloud.CostAdapter); ok {
			anomaly, err := r.detectCostAnomaly(ctx, costAdapter, planned, nativeID)
			if err != nil {
				logger.ErrorWithFields("cost anomaly detection failed",
					logging.Field("nativeId", nativeID), logging.Field("error", err.Error()))
			} else if anomaly != nil {
				result.Anomalies = append(result.Anomalies, *anomaly)
			}
		}
	}

	result.RecommendedActions = r.synthesizeActions(result.Drifts, result.Violations, result.Anomalies)

	if autoRemediationEnabled {
		result.AutoRemediationApplied = true
		result.ExecutedActions = r.applyRemediation(ctx, result.RecommendedActions)
	}

	if r.reportSink != nil {
		report := Report{
			PlanID:         plan.ID,
			ExecutionID:    execution.ID,
			DriftCount:     len(result.Drifts),
			ViolationCount: len(result.Violations),
			AnomalyCount:   len(result.Anomalies),
			Message:        fmt.Sprintf("reconciliation cycle %s: %d drifts, %d violations, %d anomalies", result.ID, len(result.Drifts), len(result.Violations), len(result.Anomalies)),
		}
		if err := r.reportSink.Publish(ctx, report); err != nil {
			logger.ErrorWithFields("failed to publish reconciliation report", logging.Field("error", err.Error()))
		}
	}

	return result, nil
}

// detectDrift implements step 1: describe the provisioned resource and
// compare it against the plan's declared properties.
func (r *Reconciler) detectDrift(ctx context.Context, adapter cloud.Adapter, planned models.PlannedResource, nativeID string) (*Drift, error) {
	live, err := adapter.Describe(ctx, nativeID, planned.ResourceType)
	if err != nil {
		return nil, err
	}
	if live == nil {
		return &Drift{
			PlanLocalID:  planned.PlanLocalID,
			NativeID:     nativeID,
			ResourceType: planned.ResourceType,
			Provider:     planned.Provider,
			Type:         DriftDeleted,
		}, nil
	}

	entries := diffProperties(planned.Properties, live)
	if len(entries) == 0 {
		return nil, nil
	}
	return &Drift{
		PlanLocalID:  planned.PlanLocalID,
		NativeID:     nativeID,
		ResourceType: planned.ResourceType,
		Provider:     planned.Provider,
		Type:         DriftConfiguration,
		Entries:      entries,
	}, nil
}

func diffProperties(expected, actual map[string]any) []DriftFieldEntry {
	keys := map[string]bool{}
	for k := range expected {
		keys[k] = true
	}
	for k := range actual {
		keys[k] = true
	}

	var out []DriftFieldEntry
	for k := range keys {
		ev, eok := expected[k]
		av, aok := actual[k]
		if eok && aok && fmt.Sprintf("%v", ev) == fmt.Sprintf("%v", av) {
			continue
		}
		if !eok && !aok {
			continue
		}
		out = append(out, DriftFieldEntry{Path: k, Expected: ev, Actual: av, Severity: classifyFieldSeverity(k)})
	}
	return out
}

// costCauseHeuristics maps a resource type to a set of plausible causes for
// a cost spike, used to populate CostAnomaly.PossibleCauses.
var costCauseHeuristics = map[models.ResourceType][]string{
	models.ResourceCompute:    {"autoscaling beyond planned capacity", "instance type changed outside of plan", "idle instances left running"},
	models.ResourceDatabase:   {"storage growth beyond plan", "read replica added outside of plan", "backup retention increased"},
	models.ResourceStorage:    {"data growth beyond plan", "lifecycle policy missing or misconfigured", "cross-region replication added"},
	models.ResourceNetwork:    {"egress traffic spike", "NAT gateway usage increase", "additional load balancers provisioned"},
	models.ResourceServerless: {"invocation volume spike", "cold-start concurrency increase", "memory allocation increased outside of plan"},
}

// detectCostAnomaly implements step 3: compare actual 30-day spend against
// the plan's estimate.
func (r *Reconciler) detectCostAnomaly(ctx context.Context, costAdapter cloud.CostAdapter, planned models.PlannedResource, nativeID string) (*CostAnomaly, error) {
	if planned.EstimatedCostMonthly == 0 {
		return nil, nil
	}

	actual, err := costAdapter.ActualCostLast30Days(ctx, nativeID, planned.ResourceType)
	if err != nil {
		return nil, err
	}

	deltaPct := (actual - planned.EstimatedCostMonthly) / planned.EstimatedCostMonthly * 100
	if math.Abs(deltaPct) <= r.costAnomalyPct {
		return nil, nil
	}

	anomalyType := AnomalyTrend
	if deltaPct > 0 {
		anomalyType = AnomalySpike
	}

	return &CostAnomaly{
		PlanLocalID:    planned.PlanLocalID,
		NativeID:       nativeID,
		ResourceType:   planned.ResourceType,
		Provider:       planned.Provider,
		Type:           anomalyType,
		PlannedMonthly: planned.EstimatedCostMonthly,
		ActualMonthly:  actual,
		DeltaPct:       deltaPct,
		PossibleCauses: costCauseHeuristics[planned.ResourceType],
	}, nil
}

// synthesizeActions implements step 4's rules: deleted drift -> manual
// recreate; critical-field configuration drift -> auto-executable update;
// critical violations -> approval required; cost anomaly beyond 2x
// threshold -> advisory scale.
func (r *Reconciler) synthesizeActions(drifts []Drift, violations []Violation, anomalies []CostAnomaly) []RemediationAction {
	var actions []RemediationAction

	for _, d := range drifts {
		if d.Type == DriftDeleted {
			actions = append(actions, RemediationAction{
				ID:               uuid.New().String(),
				PlanLocalID:      d.PlanLocalID,
				NativeID:         d.NativeID,
				ResourceType:     d.ResourceType,
				Provider:         d.Provider,
				Type:             ActionTypeRecreate,
				Priority:         PriorityHigh,
				AutoExecutable:   false,
				ApprovalRequired: true,
				Reason:           "resource no longer exists but the plan expects it to",
			})
			continue
		}

		critical := d.hasCriticalEntry()
		props := map[string]any{}
		for _, e := range d.Entries {
			props[e.Path] = e.Expected
		}
		priority := PriorityMedium
		if critical {
			priority = PriorityCritical
		}
		actions = append(actions, RemediationAction{
			ID:               uuid.New().String(),
			PlanLocalID:      d.PlanLocalID,
			NativeID:         d.NativeID,
			ResourceType:     d.ResourceType,
			Provider:         d.Provider,
			Type:             ActionTypeUpdate,
			Priority:         priority,
			AutoExecutable:   critical,
			ApprovalRequired: false,
			Reason:           "live configuration diverged from plan",
			Properties:       props,
		})
	}

	for _, v := range violations {
		actions = append(actions, RemediationAction{
			ID:               uuid.New().String(),
			PlanLocalID:      v.PlanLocalID,
			NativeID:         v.NativeID,
			ResourceType:     v.ResourceType,
			Provider:         v.Provider,
			Type:             ActionTypeAlert,
			Priority:         violationPriority(v.Severity),
			AutoExecutable:   false,
			ApprovalRequired: v.Severity == ViolationCritical,
			Reason:           v.Message,
		})
	}

	for _, a := range anomalies {
		if math.Abs(a.DeltaPct) > r.costAnomalyPct*2 {
			actions = append(actions, RemediationAction{
				ID:               uuid.New().String(),
				PlanLocalID:      a.PlanLocalID,
				NativeID:         a.NativeID,
				ResourceType:     a.ResourceType,
				Provider:         a.Provider,
				Type:             ActionTypeScale,
				Priority:         PriorityMedium,
				AutoExecutable:   false,
				ApprovalRequired: false,
				Reason:           fmt.Sprintf("cost delta %.1f%% exceeds twice the anomaly threshold", a.DeltaPct),
			})
			continue
		}
		actions = append(actions, RemediationAction{
			ID:               uuid.New().String(),
			PlanLocalID:      a.PlanLocalID,
			NativeID:         a.NativeID,
			ResourceType:     a.ResourceType,
			Provider:         a.Provider,
			Type:             ActionTypeAlert,
			Priority:         PriorityLow,
			AutoExecutable:   false,
			ApprovalRequired: false,
			Reason:           fmt.Sprintf("cost delta %.1f%%", a.DeltaPct),
		})
	}

	return actions
}

func violationPriority(sev ViolationSeverity) Priority {
	switch sev {
	case ViolationCritical:
		return PriorityCritical
	case ViolationHigh:
		return PriorityHigh
	case ViolationLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// applyRemediation implements step 5: execute every auto-executable,
// approval-free action through the Change Governor. Scale actions are
// advisory only and are never executed here even if flagged
// auto-executable. Actions with no registered executor for their resource
// type degrade to a recommendation only (the caller already surfaced them
// in RecommendedActions; step 6's report is the alerting sink for these).
func (r *Reconciler) applyRemediation(ctx context.Context, actions []RemediationAction) []ActionResult {
	var results []ActionResult
	for _, action := range actions {
		if !action.AutoExecutable || action.ApprovalRequired {
			continue
		}
		if action.Type == ActionTypeScale || action.Type == ActionTypeAlert {
			continue
		}

		executor, ok := r.executors[string(action.ResourceType)]
		if !ok {
			logger.WarnWithFields("no executor registered for resource type, action recommended only",
				logging.Field("resourceType", string(action.ResourceType)), logging.Field("nativeId", action.NativeID))
			continue
		}

		results = append(results, r.executeThroughGovernor(ctx, executor, action))
	}
	return results
}

func (r *Reconciler) executeThroughGovernor(ctx context.Context, executor ActionExecutor, action RemediationAction) ActionResult {
	result := ActionResult{ActionID: action.ID}

	if r.governor == nil {
		execResult, err := executor.Execute(ctx, action)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		return execResult
	}

	req := models.ChangeRequest{
		TargetResourceID: action.NativeID,
		ResourceType:     action.ResourceType,
		Provider:         action.Provider,
		Action:           remediationToMutationAction(action.Type),
		Properties:       action.Properties,
		Initiator:        "reconciler",
		InitiatorType:    models.InitiatorSystem,
		Description:      action.Reason,
	}

	submission, err := r.governor.Submit(ctx, req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if submission.Verdict != governor.VerdictAllow {
		result.Error = fmt.Sprintf("governor held action: %s", submission.PolicyReason)
		return result
	}

	execResult, execErr := executor.Execute(ctx, action)
	if _, markErr := r.governor.MarkExecuted(ctx, submission.Request.ID, execErr); markErr != nil {
		logger.ErrorWithFields("failed to record remediation execution outcome",
			logging.Field("requestId", submission.Request.ID), logging.Field("error", markErr.Error()))
	}
	if execErr != nil {
		result.Error = execErr.Error()
		return result
	}
	return execResult
}

func remediationToMutationAction(t ActionType) models.MutationAction {
	switch t {
	case ActionTypeUpdate:
		return models.ActionUpdate
	case ActionTypeDelete, ActionTypeRecreate:
		return models.ActionDelete
	case ActionTypeScale:
		return models.ActionScale
	default:
		return models.ActionUpdate
	}
}
