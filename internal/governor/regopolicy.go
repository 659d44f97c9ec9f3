package governor

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/models"
)

// RegoPolicy evaluates a compiled Rego query against a ChangeRequest,
// letting operators author policies as .rego bundles instead of Go
// closures. The query's result is read as one object with the keys "applies"
// (boolean) and "verdict" (one of "allow", "deny", "require-approval");
// an optional "message" string key is used as the policy's Message().
type RegoPolicy struct {
	name  string
	query rego.PreparedEvalQuery
}

// NewRegoPolicy compiles src (a single Rego module) under the given query
// path (e.g. "data.topolane.governor.decision") into a RegoPolicy named
// name.
func NewRegoPolicy(ctx context.Context, name, queryPath, moduleName, src string) (*RegoPolicy, error) {
	pq, err := rego.New(
		rego.Query(queryPath),
		rego.Module(moduleName, src),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("governor: compile rego policy %q: %w", name, err)
	}
	return &RegoPolicy{name: name, query: pq}, nil
}

func (p *RegoPolicy) Name() string { return p.name }

type regoDecision struct {
	Applies bool   `json:"applies"`
	Verdict string `json:"verdict"`
	Message string `json:"message"`
}

func (p *RegoPolicy) evaluate(req models.ChangeRequest) (regoDecision, error) {
	input := map[string]any{
		"action":                req.Action,
		"resourceType":          req.ResourceType,
		"provider":              req.Provider,
		"initiatorType":         req.InitiatorType,
		"correlationId":         req.CorrelationID,
		"productionEnvironment": req.ProductionEnvironment,
		"affectedNodeCount":     req.AffectedNodeCount,
		"touchesCriticalField":  req.TouchesCriticalField,
		"riskScore":             req.Risk.Score,
		"riskLevel":             string(req.Risk.Level),
	}

	rs, err := p.query.Eval(context.Background(), rego.EvalInput(input))
	if err != nil {
		return regoDecision{}, fmt.Errorf("governor: evaluate rego policy %q: %w", p.name, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return regoDecision{}, nil
	}

	result, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return regoDecision{}, fmt.Errorf("governor: rego policy %q returned unexpected shape", p.name)
	}

	var d regoDecision
	if applies, ok := result["applies"].(bool); ok {
		d.Applies = applies
	}
	if verdict, ok := result["verdict"].(string); ok {
		d.Verdict = verdict
	}
	if message, ok := result["message"].(string); ok {
		d.Message = message
	}
	return d, nil
}

func (p *RegoPolicy) AppliesWhen(req models.ChangeRequest) bool {
	d, err := p.evaluate(req)
	if err != nil {
		logger.ErrorWithFields("rego policy evaluation failed",
			logging.Field("policy", p.name),
			logging.Field("error", err.Error()))
		return false
	}
	return d.Applies
}

func (p *RegoPolicy) Verdict(req models.ChangeRequest) Verdict {
	d, err := p.evaluate(req)
	if err != nil {
		return VerdictRequireApproval
	}
	switch d.Verdict {
	case string(VerdictAllow):
		return VerdictAllow
	case string(VerdictDeny):
		return VerdictDeny
	default:
		return VerdictRequireApproval
	}
}

func (p *RegoPolicy) Message(req models.ChangeRequest) string {
	d, err := p.evaluate(req)
	if err != nil {
		return err.Error()
	}
	return d.Message
}

var _ Policy = (*RegoPolicy)(nil)
