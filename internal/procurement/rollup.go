package procurement

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Labels used for synthetic rows.
const (
	LabelSubtotalSentra  = "TOTAL SENTRA PRODUKSI"
	LabelSubtotalLainnya = "TOTAL KANWIL LAINNYA"
	LabelGrandTotal      = "TOTAL SELURUH INDONESIA"
	LabelBranchTotal     = "TOTAL KANWIL"
)

var minusOne = decimal.NewFromInt(-1)

// TwoTier is the region summary split into two fixed groups.
type TwoTier struct {
	GroupA    []AggregateRow `json:"group_a"`
	GroupB    []AggregateRow `json:"group_b"`
	SubtotalA AggregateRow   `json:"subtotal_a"`
	SubtotalB AggregateRow   `json:"subtotal_b"`
	Grand     AggregateRow   `json:"grand"`
}

// ComposeTwoTier orders each fixed group by attainment and totals it. Entities missing
// from rows are emitted as zero rows without a target.
func ComposeTwoTier(groupA, groupB []string, rows []AggregateRow) TwoTier {
	byEntity := make(map[string]AggregateRow, len(rows))
	for _, row := range rows {
		byEntity[row.Entity] = row
	}

	a := rankByAttainment(pick(groupA, byEntity))
	b := rankByAttainment(pick(groupB, byEntity))
	subA := combine(LabelSubtotalSentra, a...)
	subB := combine(LabelSubtotalLainnya, b...)
	return TwoTier{
		GroupA:    a,
		GroupB:    b,
		SubtotalA: subA,
		SubtotalB: subB,
		Grand:     combine(LabelGrandTotal, subA, subB),
	}
}

// ComposeRegionSummary aggregates records per registered region (substring BERAS
// variant) and composes the sentra/lainnya two-tier table.
func ComposeRegionSummary(rows []TransactionRecord, targets []RegionTarget) TwoTier {
	sentra := Labels(SentraProduksi)
	lainnya := Labels(Lainnya)
	entities := append(append([]string(nil), sentra...), lainnya...)
	aggregated := Aggregate(rows, ByRegionLabel, RegionTargetMap(targets),
		WithEntities(entities),
		WithMatcher(ContainsRice),
	)
	return ComposeTwoTier(sentra, lainnya, aggregated)
}

// RegionTargetMap keys the most recent targets by registry label.
func RegionTargetMap(targets []RegionTarget) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, t := range LatestRegionTargets(targets) {
		if t.Target == nil {
			continue
		}
		key := RegionLabel(t.Kanwil)
		out[key] = out[key].Add(*t.Target)
	}
	return out
}

func pick(entities []string, byEntity map[string]AggregateRow) []AggregateRow {
	out := make([]AggregateRow, 0, len(entities))
	for _, entity := range entities {
		row, ok := byEntity[entity]
		if !ok {
			row = AggregateRow{Entity: entity}
		}
		out = append(out, row)
	}
	return out
}

func rankByAttainment(rows []AggregateRow) []AggregateRow {
	sort.SliceStable(rows, func(i, j int) bool {
		return sortKey(rows[i]).GreaterThan(sortKey(rows[j]))
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// sortKey orders missing attainment below every numeric value.
func sortKey(row AggregateRow) decimal.Decimal {
	if row.Attainment == nil {
		return minusOne
	}
	return *row.Attainment
}

// combine sums rows into a total whose target is zero rather than absent.
func combine(label string, parts ...AggregateRow) AggregateRow {
	total := AggregateRow{Entity: label, Target: DecimalPtr(decimal.Zero)}
	for _, part := range parts {
		total = accumulate(total, part)
	}
	total.Attainment = Attainment(total.Equivalent, total.Target)
	return total
}

func accumulate(total, row AggregateRow) AggregateRow {
	if row.Target != nil {
		total.Target = DecimalPtr(total.Target.Add(*row.Target))
	}
	total.Rice = total.Rice.Add(row.Rice)
	total.GKG = total.GKG.Add(row.GKG)
	total.GKP = total.GKP.Add(row.GKP)
	total.Equivalent = total.Equivalent.Add(row.Equivalent)
	return total
}

// BranchTable is the flat branch-level table with its total row.
type BranchTable struct {
	Rows  []AggregateRow `json:"rows"`
	Total AggregateRow   `json:"total"`
}

// ComposeBranchTable keeps branches with realized volume or a target, orders them by
// attainment (missing last) then rice equivalent, and appends the total row.
func ComposeBranchTable(rows []AggregateRow) BranchTable {
	kept := make([]AggregateRow, 0, len(rows))
	for _, row := range rows {
		if row.HasData() {
			kept = append(kept, row)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		ai, aj := kept[i].Attainment, kept[j].Attainment
		switch {
		case ai != nil && aj == nil:
			return true
		case ai == nil && aj != nil:
			return false
		case ai != nil && aj != nil && !ai.Equal(*aj):
			return ai.GreaterThan(*aj)
		}
		return kept[i].Equivalent.GreaterThan(kept[j].Equivalent)
	})

	total := AggregateRow{Entity: LabelBranchTotal}
	for i := range kept {
		kept[i].Rank = i + 1
		row := kept[i]
		if row.Target != nil {
			if total.Target == nil {
				total.Target = DecimalPtr(decimal.Zero)
			}
			total.Target = DecimalPtr(total.Target.Add(*row.Target))
		}
		total.Rice = total.Rice.Add(row.Rice)
		total.GKG = total.GKG.Add(row.GKG)
		total.GKP = total.GKP.Add(row.GKP)
		total.Equivalent = total.Equivalent.Add(row.Equivalent)
	}
	total.Attainment = Attainment(total.Equivalent, total.Target)
	return BranchTable{Rows: kept, Total: total}
}

// BranchTableForRegion builds the branch table of one region from raw records.
// Branches come from the records in name order, rice is the exact BERAS MEDIUM/PREMIUM
// set, and targets match by exact then normalized name. Records without a branch name
// are left out.
func BranchTableForRegion(rows []TransactionRecord, targets []BranchTarget, kanwil string) BranchTable {
	region, registered := FindRegion(kanwil)
	scoped := make([]TransactionRecord, 0, len(rows))
	seen := make(map[string]struct{})
	branches := []string{}
	for _, r := range rows {
		if registered && region.Matches(r.Kanwil) || !registered && normalizeName(r.Kanwil) == normalizeName(kanwil) {
			scoped = append(scoped, r)
			name := ByKancab(r)
			if _, ok := seen[name]; !ok && name != "" {
				seen[name] = struct{}{}
				branches = append(branches, name)
			}
		}
	}
	sort.Strings(branches)
	aggregated := Aggregate(scoped, ByKancab, BranchTargetMap(targets),
		WithEntities(branches),
		WithMatcher(ExactRice),
		WithTargetResolver(NormalizedTarget),
	)
	return ComposeBranchTable(aggregated)
}

// BranchTargetMap keys the most recent branch targets by branch name.
func BranchTargetMap(targets []BranchTarget) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, t := range LatestBranchTargets(targets) {
		if t.Target == nil {
			continue
		}
		out[t.Kancab] = *t.Target
	}
	return out
}
