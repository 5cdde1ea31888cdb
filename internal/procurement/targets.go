package procurement

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// LatestRegionTargets keeps one target per region; the most recent date wins and a later
// entry wins a date tie.
func LatestRegionTargets(targets []RegionTarget) []RegionTarget {
	index := make(map[string]int, len(targets))
	var out []RegionTarget
	for _, t := range targets {
		key := entityKey(t.KanwilID, RegionLabel(t.Kanwil))
		if i, ok := index[key]; ok {
			if !t.Date.Before(out[i].Date) {
				out[i] = t
			}
			continue
		}
		index[key] = len(out)
		out = append(out, t)
	}
	return out
}

// LatestBranchTargets keeps one target per branch with the same rule as
// LatestRegionTargets.
func LatestBranchTargets(targets []BranchTarget) []BranchTarget {
	index := make(map[string]int, len(targets))
	var out []BranchTarget
	for _, t := range targets {
		key := entityKey(t.KancabID, normalizeName(t.Kancab))
		if i, ok := index[key]; ok {
			if !t.Date.Before(out[i].Date) {
				out[i] = t
			}
			continue
		}
		index[key] = len(out)
		out = append(out, t)
	}
	return out
}

// SumRegionTargets totals the latest targets of the selected regions (all regions when
// none are selected). It returns nil when no target applies.
func SumRegionTargets(targets []RegionTarget, selected []string) *decimal.Decimal {
	var total *decimal.Decimal
	for _, t := range LatestRegionTargets(targets) {
		if t.Target == nil {
			continue
		}
		if len(selected) > 0 && !MatchesAnyRegion(selected, t.Kanwil) {
			continue
		}
		if total == nil {
			total = DecimalPtr(decimal.Zero)
		}
		total = DecimalPtr(total.Add(*t.Target))
	}
	return total
}

func entityKey(id *int64, name string) string {
	if id != nil {
		return "id:" + strconv.FormatInt(*id, 10)
	}
	return "name:" + name
}
