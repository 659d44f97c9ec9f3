package governor

import (
	"fmt"

	"github.com/topolane/topolane/internal/models"
)

var actionWeights = map[models.MutationAction]int{
	models.ActionCreate:      10,
	models.ActionUpdate:      20,
	models.ActionScale:       15,
	models.ActionReconfigure: 25,
	models.ActionDelete:      55,
}

// computeRisk scores req on [0,100] as the weighted sum from spec §4.F:
// action weight + blast-radius size (capped at 30) + production flag +
// agent-without-correlation + critical-field touch.
func computeRisk(req models.ChangeRequest) models.RiskAssessment {
	var score int
	var factors []string

	if w, ok := actionWeights[req.Action]; ok {
		score += w
		factors = append(factors, fmt.Sprintf("action:%s(+%d)", req.Action, w))
	}

	if blast := req.AffectedNodeCount * 2; blast > 0 {
		capped := blast
		if capped > 30 {
			capped = 30
		}
		score += capped
		factors = append(factors, fmt.Sprintf("blast-radius:%d(+%d)", req.AffectedNodeCount, capped))
	}

	if req.ProductionEnvironment {
		score += 10
		factors = append(factors, "production(+10)")
	}

	if req.InitiatorType == models.InitiatorAgent && req.CorrelationID == "" {
		score += 15
		factors = append(factors, "agent-without-correlation(+15)")
	}

	if req.TouchesCriticalField {
		score += 20
		factors = append(factors, "critical-field(+20)")
	}

	if score > 100 {
		score = 100
	}

	return models.RiskAssessment{
		Score:   score,
		Level:   riskLevel(score),
		Factors: factors,
	}
}

func riskLevel(score int) models.RiskLevel {
	switch {
	case score < 25:
		return models.RiskLow
	case score < 50:
		return models.RiskMedium
	case score < 75:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}
