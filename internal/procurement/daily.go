package procurement

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// maxTrendDays bounds the zero-filled trend window.
const maxTrendDays = 366 * 5

// TrendPoint is one day of realized volume.
type TrendPoint struct {
	Date Date `json:"date"`
	Components
}

// DailyTrend returns one point per day in [start, end], zero-filled, using the exact
// rice set for bucket a.
func DailyTrend(rows []TransactionRecord, start, end Date) []TrendPoint {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil
	}
	byDay := make(map[string][]TransactionRecord)
	for _, r := range rows {
		if r.TanggalPenerimaan == nil || !r.TanggalPenerimaan.Within(start, end) {
			continue
		}
		key := r.TanggalPenerimaan.String()
		byDay[key] = append(byDay[key], r)
	}
	var points []TrendPoint
	for day, n := start, 0; !day.After(end) && n < maxTrendDays; day, n = day.AddDays(1), n+1 {
		points = append(points, TrendPoint{Date: day, Components: Breakdown(byDay[day.String()], ExactRice)})
	}
	return points
}

// LastSevenDays is the trend of the seven days ending at end.
func LastSevenDays(rows []TransactionRecord, end Date) []TrendPoint {
	return DailyTrend(rows, end.AddDays(-6), end)
}

// ProgressRow is one region in the daily progress table. Beras/gabah columns are nil
// when the region has no purchase-order quantity for that commodity.
type ProgressRow struct {
	Rank                int              `json:"rank,omitempty"`
	Kanwil              string           `json:"kanwil"`
	TargetBeras         *decimal.Decimal `json:"target_beras"`
	TargetGabah         *decimal.Decimal `json:"target_gabah"`
	UntilYesterdayBeras *decimal.Decimal `json:"until_yesterday_beras"`
	UntilYesterdayGabah *decimal.Decimal `json:"until_yesterday_gabah"`
	TodayBeras          *decimal.Decimal `json:"today_beras"`
	TodayGabah          *decimal.Decimal `json:"today_gabah"`
	ToDateBeras         *decimal.Decimal `json:"to_date_beras"`
	ToDateGabah         *decimal.Decimal `json:"to_date_gabah"`
	AttainmentBeras     *decimal.Decimal `json:"attainment_beras"`
	AttainmentGabah     *decimal.Decimal `json:"attainment_gabah"`
}

// ProgressTable is the per-region daily progress against purchase-order quantity.
type ProgressTable struct {
	Yesterday Date          `json:"yesterday"`
	Today     Date          `json:"today"`
	Rows      []ProgressRow `json:"rows"`
	Total     ProgressRow   `json:"total"`
}

// DailyProgress builds the progress table for day. Targets are purchase-order
// quantities; the "until yesterday" column covers receipts dated strictly before the
// day preceding day, matching the operational report. An empty kanwil list means every
// region present in rows.
func DailyProgress(rows []TransactionRecord, day Date, kanwils []string) ProgressTable {
	yesterday := day.AddDays(-1)
	if len(kanwils) == 0 {
		seen := make(map[string]struct{})
		for _, r := range rows {
			name := strings.TrimSpace(r.Kanwil)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				kanwils = append(kanwils, name)
			}
		}
	}
	names := append([]string(nil), kanwils...)
	sort.Strings(names)

	table := ProgressTable{Yesterday: yesterday, Today: day}
	for _, name := range names {
		var scoped []TransactionRecord
		for _, r := range rows {
			if strings.TrimSpace(r.Kanwil) == strings.TrimSpace(name) {
				scoped = append(scoped, r)
			}
		}
		table.Rows = append(table.Rows, progressRow(name, scoped, yesterday, day))
	}

	sort.SliceStable(table.Rows, func(i, j int) bool {
		ti, tj := table.Rows[i].TargetBeras, table.Rows[j].TargetBeras
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		}
		return ti.GreaterThan(*tj)
	})
	for i := range table.Rows {
		table.Rows[i].Rank = i + 1
	}
	table.Total = progressTotal(table.Rows)
	return table
}

func progressRow(name string, rows []TransactionRecord, yesterday, day Date) ProgressRow {
	var poBeras, poGabah decimal.Decimal
	var beforeBeras, beforeGabah, todayBeras, todayGabah, toDateBeras, toDateGabah decimal.Decimal
	for _, r := range rows {
		beras := ExactRice.Matches(r.Commodity())
		gabah := r.Commodity() == CommodityGrain
		if !beras && !gabah {
			continue
		}
		qty := r.Quantity()
		if beras {
			poBeras = poBeras.Add(r.OrderedQuantity())
		} else {
			poGabah = poGabah.Add(r.OrderedQuantity())
		}
		if r.TanggalPenerimaan == nil {
			continue
		}
		received := *r.TanggalPenerimaan
		if received.Before(yesterday) {
			if beras {
				beforeBeras = beforeBeras.Add(qty)
			} else {
				beforeGabah = beforeGabah.Add(qty)
			}
		}
		if received.Equal(day) {
			if beras {
				todayBeras = todayBeras.Add(qty)
			} else {
				todayGabah = todayGabah.Add(qty)
			}
		}
		if !received.After(day) {
			if beras {
				toDateBeras = toDateBeras.Add(qty)
			} else {
				toDateGabah = toDateGabah.Add(qty)
			}
		}
	}

	row := ProgressRow{Kanwil: name}
	if target := toTons(poBeras); target.IsPositive() {
		row.TargetBeras = DecimalPtr(target)
		row.UntilYesterdayBeras = DecimalPtr(toTons(beforeBeras))
		row.TodayBeras = DecimalPtr(toTons(todayBeras))
		row.ToDateBeras = DecimalPtr(toTons(toDateBeras))
		row.AttainmentBeras = Attainment(*row.ToDateBeras, row.TargetBeras)
	}
	if target := toTons(poGabah); target.IsPositive() {
		row.TargetGabah = DecimalPtr(target)
		row.UntilYesterdayGabah = DecimalPtr(toTons(beforeGabah))
		row.TodayGabah = DecimalPtr(toTons(todayGabah))
		row.ToDateGabah = DecimalPtr(toTons(toDateGabah))
		row.AttainmentGabah = Attainment(*row.ToDateGabah, row.TargetGabah)
	}
	return row
}

func progressTotal(rows []ProgressRow) ProgressRow {
	var sums [8]decimal.Decimal
	for _, row := range rows {
		for i, v := range []*decimal.Decimal{
			row.TargetBeras, row.TargetGabah,
			row.UntilYesterdayBeras, row.UntilYesterdayGabah,
			row.TodayBeras, row.TodayGabah,
			row.ToDateBeras, row.ToDateGabah,
		} {
			if v != nil {
				sums[i] = sums[i].Add(*v)
			}
		}
	}
	total := ProgressRow{
		Kanwil:              "TOTAL",
		TargetBeras:         positiveOrNil(sums[0]),
		TargetGabah:         positiveOrNil(sums[1]),
		UntilYesterdayBeras: positiveOrNil(sums[2]),
		UntilYesterdayGabah: positiveOrNil(sums[3]),
		TodayBeras:          positiveOrNil(sums[4]),
		TodayGabah:          positiveOrNil(sums[5]),
		ToDateBeras:         positiveOrNil(sums[6]),
		ToDateGabah:         positiveOrNil(sums[7]),
	}
	total.AttainmentBeras = Attainment(sums[6], total.TargetBeras)
	total.AttainmentGabah = Attainment(sums[7], total.TargetGabah)
	return total
}

func positiveOrNil(d decimal.Decimal) *decimal.Decimal {
	if !d.IsPositive() {
		return nil
	}
	return DecimalPtr(d)
}
