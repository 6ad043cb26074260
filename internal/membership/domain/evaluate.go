package domain

import (
	"sort"

	activitydomain "github.com/smallbiznis/fidelio/internal/activity/domain"
	tierdomain "github.com/smallbiznis/fidelio/internal/tier/domain"
)

// EvaluateTier picks the highest-rank active tier whose order and spend
// thresholds are both cleared by the snapshot, falling back to the default
// tier when none qualify. Pure function: same snapshot and tiers always
// produce the same answer, so re-running an evaluation never flaps.
func EvaluateTier(snapshot activitydomain.Snapshot, tiers []tierdomain.Tier) (tierdomain.Tier, bool) {
	sorted := make([]tierdomain.Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.IsActive {
			sorted = append(sorted, t)
		}
	}
	if len(sorted) == 0 {
		return tierdomain.Tier{}, false
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rank > sorted[j].Rank })

	for _, t := range sorted {
		if t.Satisfies(snapshot.OrderCount, snapshot.SpendTotal) {
			return t, true
		}
	}
	for _, t := range sorted {
		if t.IsDefault {
			return t, true
		}
	}
	// No default configured; the lowest rank is the closest thing to one.
	return sorted[len(sorted)-1], true
}
