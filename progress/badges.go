package progress

import "github.com/agriapp/server/model"

// BadgeRule grants Badge once the completion percentage reaches
// MinPercentage and, when RequiredTag is set, the plan carries that tag.
type BadgeRule struct {
	Badge         string
	MinPercentage float64
	RequiredTag   string
}

// Applies reports whether the rule's condition holds.
func (r BadgeRule) Applies(percentage float64, plan *model.PlantingPlan) bool {
	if percentage < r.MinPercentage {
		return false
	}
	return r.RequiredTag == "" || plan.HasTag(r.RequiredTag)
}

// DefaultBadgeRules is evaluated in order on every refresh.
var DefaultBadgeRules = []BadgeRule{
	{Badge: model.BadgeCompletionMaster, MinPercentage: 100},
	{Badge: model.BadgeHalfwayHero, MinPercentage: 50},
	{Badge: model.BadgeCoffeeGrower, MinPercentage: 100, RequiredTag: "coffee"},
}

// EvaluateBadges returns the badges the rules grant that are not yet in
// awarded, in rule order. A badge named by several rules is granted once.
func EvaluateBadges(rules []BadgeRule, percentage float64, plan *model.PlantingPlan, awarded []string) []string {
	have := make(map[string]struct{}, len(awarded)+len(rules))
	for _, b := range awarded {
		have[b] = struct{}{}
	}
	var granted []string
	for _, r := range rules {
		if _, ok := have[r.Badge]; ok {
			continue
		}
		if !r.Applies(percentage, plan) {
			continue
		}
		have[r.Badge] = struct{}{}
		granted = append(granted, r.Badge)
	}
	return granted
}
