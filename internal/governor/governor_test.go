package governor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/topolane/topolane/internal/apierr"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store/memory"
)

func baseRequest() models.ChangeRequest {
	return models.ChangeRequest{
		TargetResourceID: "node-1",
		ResourceType:     models.ResourceDatabase,
		Provider:         models.ProviderAWS,
		Action:           models.ActionUpdate,
		Initiator:        "alice",
		InitiatorType:    models.InitiatorHuman,
		Description:      "bump instance size",
	}
}

func TestSubmitAutoApprovesWhenNoPolicyHolds(t *testing.T) {
	g := New(memory.New())

	res, err := g.Submit(t.Context(), baseRequest())
	require.NoError(t, err)
	require.Equal(t, VerdictAllow, res.Verdict)
	require.Equal(t, models.RequestApproved, res.Request.Status)
	require.NotEmpty(t, res.Request.ID)
}

func TestSubmitRejectsMissingRequiredFields(t *testing.T) {
	g := New(memory.New())

	req := baseRequest()
	req.TargetResourceID = ""

	_, err := g.Submit(t.Context(), req)
	require.Error(t, err)

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierr.KindInvalidArgument, apiErr.Kind)
}

func TestSubmitDenyPolicyShortCircuits(t *testing.T) {
	deny := &PredicatePolicy{
		PolicyName: "no-deletes",
		Applies: func(req models.ChangeRequest) bool {
			return req.Action == models.ActionDelete
		},
		Decide:      func(req models.ChangeRequest) Verdict { return VerdictDeny },
		MessageText: "deletes are never auto-approved",
	}
	g := New(memory.New(), WithPolicies(deny))

	req := baseRequest()
	req.Action = models.ActionDelete
	res, err := g.Submit(t.Context(), req)
	require.NoError(t, err)
	require.Equal(t, VerdictDeny, res.Verdict)
	require.Equal(t, "no-deletes", res.PolicyName)
	require.Equal(t, models.RequestRejected, res.Request.Status)
}

func TestSubmitRequireApprovalHoldsPending(t *testing.T) {
	hold := &PredicatePolicy{
		PolicyName:  "production-hold",
		Applies:     func(req models.ChangeRequest) bool { return req.ProductionEnvironment },
		Decide:      func(req models.ChangeRequest) Verdict { return VerdictRequireApproval },
		MessageText: "production changes need a human",
	}
	g := New(memory.New(), WithPolicies(hold))

	req := baseRequest()
	req.ProductionEnvironment = true
	res, err := g.Submit(t.Context(), req)
	require.NoError(t, err)
	require.Equal(t, VerdictRequireApproval, res.Verdict)
	require.Equal(t, models.RequestPending, res.Request.Status)

	pending := g.GetPendingRequests()
	require.Len(t, pending, 1)
	require.Equal(t, res.Request.ID, pending[0].ID)
}

func TestApproveTransitionsPendingRequest(t *testing.T) {
	hold := &PredicatePolicy{
		PolicyName:  "always-hold",
		Applies:     func(req models.ChangeRequest) bool { return true },
		Decide:      func(req models.ChangeRequest) Verdict { return VerdictRequireApproval },
		MessageText: "held",
	}
	g := New(memory.New(), WithPolicies(hold))

	res, err := g.Submit(t.Context(), baseRequest())
	require.NoError(t, err)

	approved, err := g.Approve(t.Context(), res.Request.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, models.RequestApproved, approved.Status)
	require.Equal(t, "bob", approved.ApprovedBy)

	require.Empty(t, g.GetPendingRequests())
}

func TestApproveRejectsUnknownOrNonPendingRequest(t *testing.T) {
	g := New(memory.New())

	_, err := g.Approve(t.Context(), "does-not-exist", "bob")
	require.Error(t, err)

	res, err := g.Submit(t.Context(), baseRequest())
	require.NoError(t, err)
	require.Equal(t, models.RequestApproved, res.Request.Status)

	_, err = g.Approve(t.Context(), res.Request.ID, "bob")
	require.Error(t, err)
}

func TestMarkExecutedSetsExecutedOrFailed(t *testing.T) {
	g := New(memory.New())

	res, err := g.Submit(t.Context(), baseRequest())
	require.NoError(t, err)

	done, err := g.MarkExecuted(t.Context(), res.Request.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.RequestExecuted, done.Status)
	require.NotNil(t, done.ExecutedAt)
}

func TestMarkExecutedRecordsFailure(t *testing.T) {
	g := New(memory.New())

	res, err := g.Submit(t.Context(), baseRequest())
	require.NoError(t, err)

	failed, err := g.MarkExecuted(t.Context(), res.Request.ID, errors.New("mutate failed"))
	require.NoError(t, err)
	require.Equal(t, models.RequestFailed, failed.Status)
	require.NotNil(t, failed.ExecutedAt)
}

func TestExpirePendingRejectsStaleRequests(t *testing.T) {
	hold := &PredicatePolicy{
		PolicyName:  "always-hold",
		Applies:     func(req models.ChangeRequest) bool { return true },
		Decide:      func(req models.ChangeRequest) Verdict { return VerdictRequireApproval },
		MessageText: "held",
	}
	g := New(memory.New(), WithPolicies(hold), WithConfirmationTTL(time.Nanosecond))

	res, err := g.Submit(t.Context(), baseRequest())
	require.NoError(t, err)
	require.Equal(t, models.RequestPending, res.Request.Status)

	n, err := g.ExpirePending(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, g.GetPendingRequests())
}

func TestGetAuditTrailFiltersByTargetAndAction(t *testing.T) {
	g := New(memory.New())

	req1 := baseRequest()
	req1.TargetResourceID = "node-1"
	req1.Action = models.ActionUpdate
	_, err := g.Submit(t.Context(), req1)
	require.NoError(t, err)

	req2 := baseRequest()
	req2.TargetResourceID = "node-2"
	req2.Action = models.ActionDelete
	_, err = g.Submit(t.Context(), req2)
	require.NoError(t, err)

	trail := g.GetAuditTrail("node-1", "", 0)
	require.Len(t, trail, 1)
	require.Equal(t, "node-1", trail[0].TargetResourceID)

	trail = g.GetAuditTrail("", models.ActionDelete, 0)
	require.Len(t, trail, 1)
	require.Equal(t, models.ActionDelete, trail[0].Action)
}

func TestGetSummaryAggregatesByStatusAndRisk(t *testing.T) {
	g := New(memory.New())

	for i := 0; i < 3; i++ {
		_, err := g.Submit(t.Context(), baseRequest())
		require.NoError(t, err)
	}

	summary := g.GetSummary()
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 3, summary.ByStatus[models.RequestApproved])
	require.Greater(t, summary.AvgRiskScore, 0.0)
}

func TestComputeRiskWeightsActionsAndFactors(t *testing.T) {
	req := baseRequest()
	req.Action = models.ActionDelete
	req.ProductionEnvironment = true
	req.TouchesCriticalField = true
	req.InitiatorType = models.InitiatorAgent
	req.AffectedNodeCount = 20

	risk := computeRisk(req)
	// delete(55) + blast(min(40,30)=30) + production(10) + agent-no-correlation(15) + critical(20) = 130 -> capped 100
	require.Equal(t, 100, risk.Score)
	require.Equal(t, models.RiskCritical, risk.Level)
	require.Len(t, risk.Factors, 5)
}

func TestComputeRiskLowForQuietUpdate(t *testing.T) {
	req := baseRequest()
	risk := computeRisk(req)
	require.Equal(t, 20, risk.Score)
	require.Equal(t, models.RiskLow, risk.Level)
}

func TestRiskLevelThresholdBoundaries(t *testing.T) {
	require.Equal(t, models.RiskLow, riskLevel(0))
	require.Equal(t, models.RiskLow, riskLevel(24))
	require.Equal(t, models.RiskMedium, riskLevel(25))
	require.Equal(t, models.RiskMedium, riskLevel(49))
	require.Equal(t, models.RiskHigh, riskLevel(50))
	require.Equal(t, models.RiskHigh, riskLevel(74))
	require.Equal(t, models.RiskCritical, riskLevel(75))
	require.Equal(t, models.RiskCritical, riskLevel(100))
}
