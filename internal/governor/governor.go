// Package governor implements the Change Governor (spec §4.F): every
// mutation bound for an Adapter.Mutate call is scored for risk, evaluated
// against a policy set, and either allowed, denied, or held pending
// approval.
package governor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/topolane/topolane/internal/apierr"
	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/metrics"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

var logger = logging.GetLogger("governor")

var requestValidator = validator.New()

const defaultConfirmationTTL = 30 * time.Minute

// Option configures a Governor at construction time.
type Option func(*Governor)

// WithConfirmationTTL sets how long a pending request waits for approval
// before it expires to rejected.
func WithConfirmationTTL(ttl time.Duration) Option {
	return func(g *Governor) {
		if ttl > 0 {
			g.confirmationTTL = ttl
		}
	}
}

// WithPolicies registers policies evaluated by every Submit call, in order.
func WithPolicies(policies ...Policy) Option {
	return func(g *Governor) {
		g.policies = append(g.policies, policies...)
	}
}

// WithMetrics attaches a Metrics instance the governor reports decision
// counts and pending-queue depth to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Governor) { g.metrics = m }
}

// Governor scores, evaluates, and queues ChangeRequests bound for an
// Adapter.Mutate call.
type Governor struct {
	store store.Store

	mu               sync.Mutex
	requests         map[string]*models.ChangeRequest
	order            []string // request id, insertion order
	confirmationTTL  time.Duration
	policies         []Policy
	policyViolations int
	metrics          *metrics.Metrics
}

// New returns a Governor with no policies registered. Use WithPolicies to
// register one or more at construction time.
func New(st store.Store, opts ...Option) *Governor {
	g := &Governor{
		store:           st,
		requests:        make(map[string]*models.ChangeRequest),
		confirmationTTL: defaultConfirmationTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SubmitResult is the Submit call's outcome: the scored, possibly-queued
// request plus the policy verdict that produced its state.
type SubmitResult struct {
	Request      models.ChangeRequest
	Verdict      Verdict
	PolicyName   string
	PolicyReason string
}

// Submit scores req, evaluates all applicable policies in order, and
// transitions it to approved, rejected, or pending (awaiting approval).
// Deny short-circuits; the first require-approval verdict holds the
// request; absent either, the request is auto-approved.
func (g *Governor) Submit(ctx context.Context, req models.ChangeRequest) (SubmitResult, error) {
	if err := requestValidator.Struct(req); err != nil {
		return SubmitResult{}, apierr.Wrap(apierr.KindInvalidArgument, "invalid change request", err)
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.CreatedAt = time.Now()
	req.Risk = computeRisk(req)
	req.Status = models.RequestPending

	g.mu.Lock()
	policies := append([]Policy{}, g.policies...)
	g.mu.Unlock()

	result := SubmitResult{Request: req, Verdict: VerdictAllow}
	for _, p := range policies {
		if !p.AppliesWhen(req) {
			continue
		}
		v := p.Verdict(req)
		switch v {
		case VerdictDeny:
			g.mu.Lock()
			g.policyViolations++
			g.mu.Unlock()
			req.Status = models.RequestRejected
			if err := g.recordTransition(ctx, req, models.RequestPending, models.RequestRejected); err != nil {
				return SubmitResult{}, err
			}
			g.save(req)
			g.recordDecision(VerdictDeny)
			return SubmitResult{Request: req, Verdict: VerdictDeny, PolicyName: p.Name(), PolicyReason: p.Message(req)}, nil
		case VerdictRequireApproval:
			result = SubmitResult{Request: req, Verdict: VerdictRequireApproval, PolicyName: p.Name(), PolicyReason: p.Message(req)}
			g.save(req)
			g.recordDecision(VerdictRequireApproval)
			return result, nil
		}
	}

	// No policy held or denied the request: auto-approve.
	req.Status = models.RequestApproved
	if err := g.recordTransition(ctx, req, models.RequestPending, models.RequestApproved); err != nil {
		return SubmitResult{}, err
	}
	g.save(req)
	g.recordDecision(VerdictAllow)
	return SubmitResult{Request: req, Verdict: VerdictAllow}, nil
}

// recordDecision updates the decision counter and the pending-queue gauge,
// a no-op when no Metrics was attached.
func (g *Governor) recordDecision(v Verdict) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordGovernorDecision(string(v))
	g.metrics.SetGovernorPending(len(g.GetPendingRequests()))
}

func (g *Governor) save(req models.ChangeRequest) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.requests[req.ID]; !exists {
		g.order = append(g.order, req.ID)
	}
	r := req
	g.requests[req.ID] = &r
}

// Approve transitions a pending request to approved.
func (g *Governor) Approve(ctx context.Context, id, approvedBy string) (models.ChangeRequest, error) {
	return g.transition(ctx, id, models.RequestApproved, approvedBy)
}

// Reject transitions a pending request to rejected.
func (g *Governor) Reject(ctx context.Context, id, rejectedBy string) (models.ChangeRequest, error) {
	return g.transition(ctx, id, models.RequestRejected, rejectedBy)
}

func (g *Governor) transition(ctx context.Context, id string, to models.ChangeRequestStatus, actor string) (models.ChangeRequest, error) {
	g.mu.Lock()
	req, ok := g.requests[id]
	if !ok {
		g.mu.Unlock()
		return models.ChangeRequest{}, apierr.New(apierr.KindNotFound, fmt.Sprintf("change request %q not found", id))
	}
	if req.Status != models.RequestPending {
		g.mu.Unlock()
		return models.ChangeRequest{}, apierr.New(apierr.KindInvalidArgument, fmt.Sprintf("change request %q is not pending (status=%s)", id, req.Status))
	}
	from := req.Status
	req.Status = to
	req.ApprovedBy = actor
	snapshot := *req
	g.mu.Unlock()

	if err := g.recordTransition(ctx, snapshot, from, to); err != nil {
		return models.ChangeRequest{}, err
	}
	if g.metrics != nil {
		g.metrics.SetGovernorPending(len(g.GetPendingRequests()))
	}
	return snapshot, nil
}

// MarkExecuted transitions an approved request to executed or failed,
// called by the reconciliation engine after it invokes Adapter.Mutate.
func (g *Governor) MarkExecuted(ctx context.Context, id string, execErr error) (models.ChangeRequest, error) {
	g.mu.Lock()
	req, ok := g.requests[id]
	if !ok {
		g.mu.Unlock()
		return models.ChangeRequest{}, apierr.New(apierr.KindNotFound, fmt.Sprintf("change request %q not found", id))
	}
	from := req.Status
	to := models.RequestExecuted
	if execErr != nil {
		to = models.RequestFailed
	}
	req.Status = to
	now := time.Now()
	req.ExecutedAt = &now
	snapshot := *req
	g.mu.Unlock()

	if err := g.recordTransition(ctx, snapshot, from, to); err != nil {
		return models.ChangeRequest{}, err
	}
	return snapshot, nil
}

// ExpirePending rejects every pending request older than the configured
// TTL with reason "expired".
func (g *Governor) ExpirePending(ctx context.Context) (int, error) {
	now := time.Now()
	g.mu.Lock()
	var expired []models.ChangeRequest
	for _, id := range g.order {
		req := g.requests[id]
		if req.Status == models.RequestPending && now.Sub(req.CreatedAt) >= g.confirmationTTL {
			req.Status = models.RequestRejected
			expired = append(expired, *req)
		}
	}
	g.mu.Unlock()

	for _, req := range expired {
		if err := g.recordTransitionReason(ctx, req, models.RequestPending, models.RequestRejected, "expired"); err != nil {
			return 0, err
		}
	}
	if len(expired) > 0 && g.metrics != nil {
		g.metrics.SetGovernorPending(len(g.GetPendingRequests()))
	}
	return len(expired), nil
}

func (g *Governor) recordTransition(ctx context.Context, req models.ChangeRequest, from, to models.ChangeRequestStatus) error {
	return g.recordTransitionReason(ctx, req, from, to, "")
}

// recordTransitionReason appends a Change record for the transition, per
// spec §4.F: "all transitions append a Change record with
// initiatorType=system and carry the correlationId."
func (g *Governor) recordTransitionReason(ctx context.Context, req models.ChangeRequest, from, to models.ChangeRequestStatus, reason string) error {
	if g.store == nil {
		return nil
	}
	meta := map[string]any{"requestId": req.ID, "action": string(req.Action)}
	if reason != "" {
		meta["reason"] = reason
	}
	change := models.Change{
		TargetID:      req.TargetResourceID,
		ChangeType:    models.ChangeRequestTransition,
		Field:         "status",
		PreviousValue: string(from),
		NewValue:      string(to),
		DetectedAt:    time.Now(),
		DetectedVia:   models.DetectedManual,
		CorrelationID: req.ID,
		InitiatorType: models.InitiatorSystem,
		Metadata:      meta,
	}
	if err := g.store.AppendChanges(ctx, []models.Change{change}); err != nil {
		logger.ErrorWithFields("failed to append governor transition change", logging.Field("requestId", req.ID), logging.Field("error", err.Error()))
		return err
	}
	return nil
}

// GetAuditTrail returns a newest-first slice of change requests, optionally
// narrowed by target resource id and/or action.
func (g *Governor) GetAuditTrail(targetResourceID string, action models.MutationAction, limit int) []models.ChangeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []models.ChangeRequest
	for i := len(g.order) - 1; i >= 0; i-- {
		req := g.requests[g.order[i]]
		if targetResourceID != "" && req.TargetResourceID != targetResourceID {
			continue
		}
		if action != "" && req.Action != action {
			continue
		}
		out = append(out, *req)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// GetPendingRequests returns all requests currently awaiting approval.
func (g *Governor) GetPendingRequests() []models.ChangeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []models.ChangeRequest
	for _, id := range g.order {
		if req := g.requests[id]; req.Status == models.RequestPending {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetSummary returns aggregate counts across every request the governor has
// ever seen.
func (g *Governor) GetSummary() models.GovernorSummary {
	g.mu.Lock()
	defer g.mu.Unlock()

	summary := models.GovernorSummary{
		ByStatus:    map[models.ChangeRequestStatus]int{},
		ByRiskLevel: map[models.RiskLevel]int{},
	}
	var totalScore int
	for _, id := range g.order {
		req := g.requests[id]
		summary.Total++
		summary.ByStatus[req.Status]++
		summary.ByRiskLevel[req.Risk.Level]++
		totalScore += req.Risk.Score
	}
	if summary.Total > 0 {
		summary.AvgRiskScore = float64(totalScore) / float64(summary.Total)
	}
	summary.PolicyViolationCount = g.policyViolations
	return summary
}
