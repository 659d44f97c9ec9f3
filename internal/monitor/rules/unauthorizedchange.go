package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/topolane/topolane/internal/models"
)

// UnauthorizedChangeRule fires for changes recorded this cycle that were
// agent-initiated with no correlationId (meaning no governor request
// authorized them) or that carry no initiator at all.
type UnauthorizedChangeRule struct {
	enabled bool
}

// NewUnauthorizedChangeRule returns the built-in unauthorized-change rule.
func NewUnauthorizedChangeRule() *UnauthorizedChangeRule {
	return &UnauthorizedChangeRule{enabled: true}
}

func (r *UnauthorizedChangeRule) ID() string         { return "unauthorized-change" }
func (r *UnauthorizedChangeRule) Name() string       { return "Unauthorized change" }
func (r *UnauthorizedChangeRule) Category() Category { return CategoryUnauthorizedChange }
func (r *UnauthorizedChangeRule) Severity() Severity { return SeverityCritical }
func (r *UnauthorizedChangeRule) Enabled() bool      { return r.enabled }
func (r *UnauthorizedChangeRule) SetEnabled(v bool)  { r.enabled = v }

func (r *UnauthorizedChangeRule) Evaluate(ctx context.Context, evalCtx EvalContext) ([]Alert, error) {
	since := earliestSyncStart(evalCtx.SyncRecords)
	if since.IsZero() {
		return nil, nil
	}

	changes, err := evalCtx.Store.GetChanges(ctx, models.ChangeFilter{Since: since})
	if err != nil {
		return nil, err
	}

	var alerts []Alert
	for _, c := range changes {
		agentNoCorrelation := c.InitiatorType == models.InitiatorAgent && c.CorrelationID == ""
		noInitiator := c.Initiator == "" && c.InitiatorType != models.InitiatorSystem
		if !agentNoCorrelation && !noInitiator {
			continue
		}

		reason := "agent-initiated change with no correlationId"
		if noInitiator {
			reason = "mutation recorded with no initiator"
		}
		alerts = append(alerts, Alert{
			RuleID:     r.ID(),
			Name:       r.Name(),
			Category:   r.Category(),
			Severity:   r.Severity(),
			Title:      fmt.Sprintf("Unauthorized change to %s", c.TargetID),
			Message:    fmt.Sprintf("%s: %s", reason, c.ChangeType),
			ResourceID: c.TargetID,
			Metadata: map[string]any{
				"changeId":      c.ID,
				"initiatorType": string(c.InitiatorType),
				"changeType":    string(c.ChangeType),
			},
		})
	}
	return alerts, nil
}

func earliestSyncStart(records []models.SyncRecord) time.Time {
	var earliest time.Time
	for _, rec := range records {
		if earliest.IsZero() || rec.StartedAt.Before(earliest) {
			earliest = rec.StartedAt
		}
	}
	return earliest
}

var _ Rule = (*UnauthorizedChangeRule)(nil)
