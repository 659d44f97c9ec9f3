package rules

// BuiltinRules returns one instance of each rule spec §4.H mandates:
// orphan, spof, cost-anomaly, unauthorized-change, disappeared. Callers may
// disable individual rules via their SetEnabled method before registering.
func BuiltinRules(costAnomalyThresholdPct float64) []Rule {
	return []Rule{
		NewOrphanRule(),
		NewSPOFRule(),
		NewCostAnomalyRuleWithThreshold(costAnomalyThresholdPct),
		NewUnauthorizedChangeRule(),
		NewDisappearedRule(),
	}
}
