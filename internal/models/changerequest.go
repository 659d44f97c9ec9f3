package models

import "time"

// MutationAction is the closed enum of actions a ChangeRequest can carry
// through to an Adapter.mutate call.
type MutationAction string

const (
	ActionCreate      MutationAction = "create"
	ActionUpdate      MutationAction = "update"
	ActionDelete      MutationAction = "delete"
	ActionScale       MutationAction = "scale"
	ActionReconfigure MutationAction = "reconfigure"
)

// RiskLevel buckets a numeric risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskAssessment is the governor's scored verdict for a ChangeRequest.
type RiskAssessment struct {
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors"`
}

// ChangeRequestStatus is the closed enum of governor lifecycle states.
type ChangeRequestStatus string

const (
	RequestPending  ChangeRequestStatus = "pending"
	RequestApproved ChangeRequestStatus = "approved"
	RequestRejected ChangeRequestStatus = "rejected"
	RequestExecuted ChangeRequestStatus = "executed"
	RequestFailed   ChangeRequestStatus = "failed"
)

// ChangeRequest is the governor's work item: every mutation bound for an
// Adapter.mutate call flows through one of these.
type ChangeRequest struct {
	ID               string              `json:"id" db:"id"`
	TargetResourceID string              `json:"targetResourceId" db:"target_id" validate:"required"`
	ResourceType     ResourceType        `json:"resourceType" db:"resource_type" validate:"required"`
	Provider         Provider            `json:"provider" db:"provider" validate:"required"`
	Action           MutationAction      `json:"action" db:"action" validate:"required"`
	Properties       map[string]any      `json:"properties,omitempty" db:"-"`
	Initiator        string              `json:"initiator" db:"initiator" validate:"required"`
	InitiatorType    InitiatorType       `json:"initiatorType" db:"initiator_type" validate:"required"`
	CorrelationID    string              `json:"correlationId,omitempty" db:"correlation_id"`
	Description      string              `json:"description" db:"description"`
	Risk             RiskAssessment      `json:"risk" db:"-"`
	Status           ChangeRequestStatus `json:"status" db:"status"`
	CreatedAt        time.Time           `json:"createdAt" db:"created_at"`
	ApprovedBy       string              `json:"approvedBy,omitempty" db:"approved_by"`
	ExecutedAt       *time.Time          `json:"executedAt,omitempty" db:"executed_at"`

	// ProductionEnvironment and AffectedNodeCount feed the risk model; they
	// are supplied by the caller submitting the request (e.g. the
	// reconciliation engine) rather than derived by the governor itself.
	ProductionEnvironment bool `json:"productionEnvironment" db:"-"`
	AffectedNodeCount     int  `json:"affectedNodeCount" db:"-"`
	TouchesCriticalField  bool `json:"touchesCriticalField" db:"-"`
}

// GovernorSummary is the getSummary() result shape.
type GovernorSummary struct {
	Total                int                         `json:"total"`
	ByStatus             map[ChangeRequestStatus]int `json:"byStatus"`
	ByRiskLevel          map[RiskLevel]int           `json:"byRiskLevel"`
	AvgRiskScore         float64                     `json:"avgRiskScore"`
	PolicyViolationCount int                         `json:"policyViolationCount"`
}
