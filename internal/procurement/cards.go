package procurement

import "github.com/shopspring/decimal"

// MetricCards summarises the headline numbers of the dashboard, in tons.
type MetricCards struct {
	RealizedToday decimal.Decimal  `json:"realized_today"`
	RealizedRange decimal.Decimal  `json:"realized_range"`
	Target        *decimal.Decimal `json:"target"`
	Remaining     *decimal.Decimal `json:"remaining"`
	Attainment    *decimal.Decimal `json:"attainment"`
}

// ComputeMetricCards derives the cards from records already scoped to the filter range.
// Today is the filter's end date.
func ComputeMetricCards(rows []TransactionRecord, targets []RegionTarget, f Filter) MetricCards {
	var today []TransactionRecord
	if !f.End.IsZero() {
		for _, r := range rows {
			if r.TanggalPenerimaan != nil && r.TanggalPenerimaan.Equal(f.End) {
				today = append(today, r)
			}
		}
	}
	cards := MetricCards{
		RealizedToday: ComputeEquivalent(today),
		RealizedRange: ComputeEquivalent(rows),
		Target:        SumRegionTargets(targets, f.Kanwil),
	}
	if cards.Target != nil {
		cards.Remaining = DecimalPtr(cards.Target.Sub(cards.RealizedRange))
	}
	cards.Attainment = Attainment(cards.RealizedRange, cards.Target)
	return cards
}
