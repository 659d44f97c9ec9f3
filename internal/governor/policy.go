package governor

import "github.com/topolane/topolane/internal/models"

// Verdict is a policy's decision for one ChangeRequest.
type Verdict string

const (
	VerdictAllow            Verdict = "allow"
	VerdictDeny             Verdict = "deny"
	VerdictRequireApproval  Verdict = "require-approval"
)

// Policy is a predicate evaluated against every ChangeRequest the governor
// sees. AppliesWhen narrows which requests a policy has an opinion on;
// Verdict is only called when AppliesWhen returns true.
type Policy interface {
	Name() string
	AppliesWhen(req models.ChangeRequest) bool
	Verdict(req models.ChangeRequest) Verdict
	Message(req models.ChangeRequest) string
}

// PredicatePolicy is a Policy built from three plain Go closures, matching
// spec's {appliesWhen, verdict, message} shape directly.
type PredicatePolicy struct {
	PolicyName  string
	Applies     func(req models.ChangeRequest) bool
	Decide      func(req models.ChangeRequest) Verdict
	MessageText string
}

func (p *PredicatePolicy) Name() string { return p.PolicyName }

func (p *PredicatePolicy) AppliesWhen(req models.ChangeRequest) bool {
	return p.Applies(req)
}

func (p *PredicatePolicy) Verdict(req models.ChangeRequest) Verdict {
	return p.Decide(req)
}

func (p *PredicatePolicy) Message(req models.ChangeRequest) string {
	return p.MessageText
}

var _ Policy = (*PredicatePolicy)(nil)
