package progress

import "github.com/agriapp/server/model"

// Percentage returns 100*k/n, where n is the number of plan milestones and
// k the number of distinct completed entries naming one of them. Entries for
// ids the plan does not define are kept on the record but not counted.
func Percentage(completed []model.CompletedMilestone, plan *model.PlantingPlan) float64 {
	n := len(plan.Milestones)
	if n == 0 {
		return 0
	}
	defined := plan.MilestoneIDs()
	seen := make(map[string]struct{}, len(completed))
	for _, c := range completed {
		if _, ok := defined[c.MilestoneID]; !ok {
			continue
		}
		seen[c.MilestoneID] = struct{}{}
	}
	return 100 * float64(len(seen)) / float64(n)
}

// AddMilestone returns a copy of rec with entry appended. The bool is false,
// and rec is returned unchanged, when the milestone is already completed.
func AddMilestone(rec model.PlantProgress, entry model.CompletedMilestone) (model.PlantProgress, bool) {
	if rec.HasMilestone(entry.MilestoneID) {
		return rec, false
	}
	out := rec.Clone()
	out.CompletedMilestones = append(out.CompletedMilestones, entry)
	return out, true
}

// Recompute derives the percentage of rec against plan and applies rules
// to the updated value. It returns a new record and the newly granted
// badges; rec itself is never modified.
func Recompute(rec model.PlantProgress, plan *model.PlantingPlan, rules []BadgeRule) (model.PlantProgress, []string) {
	out := rec.Clone()
	out.ProgressPercentage = Percentage(out.CompletedMilestones, plan)
	granted := EvaluateBadges(rules, out.ProgressPercentage, plan, out.AwardedBadges)
	out.AwardedBadges = append(out.AwardedBadges, granted...)
	return out, granted
}

// dedupeMilestones keeps the first entry for each milestone id.
func dedupeMilestones(entries []model.CompletedMilestone) []model.CompletedMilestone {
	seen := make(map[string]struct{}, len(entries))
	out := make([]model.CompletedMilestone, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.MilestoneID]; ok {
			continue
		}
		seen[e.MilestoneID] = struct{}{}
		out = append(out, e)
	}
	return out
}

// mergeBadges returns have followed by every badge of add not already present.
func mergeBadges(have, add []string) []string {
	seen := make(map[string]struct{}, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, list := range [][]string{have, add} {
		for _, b := range list {
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			out = append(out, b)
		}
	}
	return out
}
