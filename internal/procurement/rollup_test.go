package procurement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func row(entity string, target *decimal.Decimal, d string) AggregateRow {
	r := AggregateRow{Entity: entity, Target: target, Rice: dec(d), Equivalent: dec(d)}
	r.Attainment = Attainment(r.Equivalent, r.Target)
	return r
}

func TestAggregateReturnsRowPerEntity(t *testing.T) {
	rows := []TransactionRecord{
		{Kancab: "A", Komoditi: StringPtr("BERAS MEDIUM"), QtyInOut: DecimalPtr(dec("120000"))},
		{Kancab: "B", Komoditi: StringPtr("JAGUNG"), QtyInOut: DecimalPtr(dec("5000"))},
	}
	out := Aggregate(rows, ByKancab, map[string]decimal.Decimal{"A": dec("100")},
		WithEntities([]string{"A", "B", "C"}))
	require.Len(t, out, 3)
	requireDecimal(t, "120", out[0].Equivalent)
	requireDecimal(t, "120", *out[0].Attainment)
	require.Nil(t, out[1].Target)
	require.Nil(t, out[1].Attainment)
	require.True(t, out[1].Equivalent.IsZero())
	require.Equal(t, "C", out[2].Entity)
}

func TestAggregateZeroTargetHasNoAttainment(t *testing.T) {
	rows := []TransactionRecord{{Kancab: "A", Komoditi: StringPtr("BERAS MEDIUM"), QtyInOut: DecimalPtr(dec("1000"))}}
	out := Aggregate(rows, ByKancab, map[string]decimal.Decimal{"A": decimal.Zero})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Target)
	require.Nil(t, out[0].Attainment)
}

func TestComposeTwoTierScenario(t *testing.T) {
	rows := []AggregateRow{
		row("B", DecimalPtr(dec("50")), "10"),
		row("A", DecimalPtr(dec("100")), "120"),
	}
	result := ComposeTwoTier([]string{"B", "A"}, nil, rows)
	require.Len(t, result.GroupA, 2)
	require.Equal(t, "A", result.GroupA[0].Entity)
	require.Equal(t, 1, result.GroupA[0].Rank)
	require.Equal(t, "B", result.GroupA[1].Entity)
	require.Equal(t, 2, result.GroupA[1].Rank)
	requireDecimal(t, "150", *result.SubtotalA.Target)
	requireDecimal(t, "130", result.SubtotalA.Equivalent)
	requireDecimal(t, "86.7", result.SubtotalA.Attainment.Round(1))
	require.Nil(t, result.SubtotalB.Attainment)
}

func TestComposeTwoTierStableOnTiesAndMissingLast(t *testing.T) {
	rows := []AggregateRow{
		row("X", nil, "5"),
		row("Y", DecimalPtr(dec("10")), "5"),
		row("Z", DecimalPtr(dec("20")), "10"),
	}
	result := ComposeTwoTier([]string{"X", "Y", "Z", "W"}, nil, rows)
	var order []string
	for _, r := range result.GroupA {
		order = append(order, r.Entity)
	}
	require.Equal(t, []string{"Y", "Z", "X", "W"}, order)
}

func TestGrandTotalEqualsSubtotals(t *testing.T) {
	rows := []AggregateRow{
		row("A", DecimalPtr(dec("100")), "33.333"),
		row("B", nil, "12.5"),
		row("C", DecimalPtr(dec("7")), "0.635"),
		row("D", DecimalPtr(dec("0")), "1.0675"),
	}
	result := ComposeTwoTier([]string{"A", "B"}, []string{"C", "D"}, rows)
	sum := result.SubtotalA.Equivalent.Add(result.SubtotalB.Equivalent)
	require.True(t, sum.Equal(result.Grand.Equivalent))
	require.True(t, result.SubtotalA.Target.Add(*result.SubtotalB.Target).Equal(*result.Grand.Target))
}

func TestComposeRegionSummaryMatchesStoredNames(t *testing.T) {
	rows := []TransactionRecord{
		{Kanwil: "16 - 08001 - KANTOR WILAYAH LAMPUNG", Komoditi: StringPtr("BERAS KHUSUS"), QtyInOut: DecimalPtr(dec("2000"))},
		{Kanwil: "3 - 22001 - KANTOR WILAYAH BALI", Komoditi: StringPtr("GABAH"), Spesifikasi: StringPtr("GKG"), QtyInOut: DecimalPtr(dec("1000"))},
	}
	targets := []RegionTarget{
		{Kanwil: "16 - 08001 - KANTOR WILAYAH LAMPUNG", Target: DecimalPtr(dec("4")), Date: MustDate("2025-01-01")},
		{Kanwil: "16 - 08001 - KANTOR WILAYAH LAMPUNG", Target: DecimalPtr(dec("8")), Date: MustDate("2025-02-01")},
	}
	summary := ComposeRegionSummary(rows, targets)
	require.Len(t, summary.GroupA, len(SentraProduksi))
	require.Len(t, summary.GroupB, len(Lainnya))
	top := summary.GroupA[0]
	require.Equal(t, "08001 - KANTOR WILAYAH LAMPUNG", top.Entity)
	requireDecimal(t, "8", *top.Target)
	requireDecimal(t, "25", *top.Attainment)
	requireDecimal(t, "0.635", summary.SubtotalB.Equivalent)
	requireDecimal(t, "2.635", summary.Grand.Equivalent)
}

func TestComposeBranchTableInclusionRule(t *testing.T) {
	rows := []AggregateRow{
		row("KOSONG", nil, "0"),
		row("TARGET SAJA", DecimalPtr(dec("500")), "0"),
		row("TANPA TARGET", nil, "3"),
		row("TINGGI", DecimalPtr(dec("10")), "9"),
		row("RENDAH", DecimalPtr(dec("10")), "1"),
	}
	table := ComposeBranchTable(rows)
	var order []string
	for _, r := range table.Rows {
		order = append(order, r.Entity)
	}
	require.Equal(t, []string{"TINGGI", "RENDAH", "TARGET SAJA", "TANPA TARGET"}, order)
	requireDecimal(t, "0", *table.Rows[2].Attainment)
	require.Equal(t, LabelBranchTotal, table.Total.Entity)
	requireDecimal(t, "520", *table.Total.Target)
	requireDecimal(t, "13", table.Total.Equivalent)
	require.Equal(t, 4, table.Rows[3].Rank)
}

func TestComposeBranchTableTieBreaksOnEquivalent(t *testing.T) {
	rows := []AggregateRow{
		row("KECIL", nil, "1"),
		row("BESAR", nil, "4"),
	}
	table := ComposeBranchTable(rows)
	require.Equal(t, "BESAR", table.Rows[0].Entity)
	require.Nil(t, table.Total.Target)
	require.Nil(t, table.Total.Attainment)
}

func TestBranchTableForRegionResolvesNormalizedTargets(t *testing.T) {
	rows := []TransactionRecord{
		{Kanwil: "16 - 08001 - KANTOR WILAYAH LAMPUNG", Kancab: "Kancab Metro", Komoditi: StringPtr("BERAS MEDIUM"), QtyInOut: DecimalPtr(dec("1000"))},
		{Kanwil: "5 - 13001 - KANTOR WILAYAH JATIM", Kancab: "Kancab Surabaya", Komoditi: StringPtr("BERAS MEDIUM"), QtyInOut: DecimalPtr(dec("1000"))},
	}
	targets := []BranchTarget{{Kancab: " KANCAB METRO ", Target: DecimalPtr(dec("2"))}}
	table := BranchTableForRegion(rows, targets, "08001 - KANTOR WILAYAH LAMPUNG")
	require.Len(t, table.Rows, 1)
	require.Equal(t, "Kancab Metro", table.Rows[0].Entity)
	requireDecimal(t, "50", *table.Rows[0].Attainment)
}

func TestBranchTableCountsOnlyExactRice(t *testing.T) {
	lampung := "16 - 08001 - KANTOR WILAYAH LAMPUNG"
	rows := []TransactionRecord{
		{Kanwil: lampung, Kancab: "Kancab Metro", Komoditi: StringPtr("BERAS KHUSUS"), QtyInOut: DecimalPtr(dec("1000"))},
	}

	summary := ComposeRegionSummary(rows, nil)
	var found bool
	for _, r := range summary.GroupA {
		if r.Entity == SentraProduksi[0].Label() {
			found = true
			requireDecimal(t, "1", r.Rice)
		}
	}
	require.True(t, found)

	table := BranchTableForRegion(rows, nil, "08001 - KANTOR WILAYAH LAMPUNG")
	require.Empty(t, table.Rows)
	require.True(t, table.Total.Rice.IsZero())
	require.True(t, table.Total.Equivalent.IsZero())
}

func TestBranchTableTiesFollowBranchName(t *testing.T) {
	lampung := "16 - 08001 - KANTOR WILAYAH LAMPUNG"
	var rows []TransactionRecord
	for _, kancab := range []string{"Kancab Tulang Bawang", "Kancab Metro", "", "Kancab Lampung Selatan"} {
		rows = append(rows, TransactionRecord{Kanwil: lampung, Kancab: kancab, Komoditi: StringPtr("BERAS MEDIUM"), QtyInOut: DecimalPtr(dec("1000"))})
	}
	table := BranchTableForRegion(rows, nil, "08001 - KANTOR WILAYAH LAMPUNG")
	require.Len(t, table.Rows, 3)
	require.Equal(t, "Kancab Lampung Selatan", table.Rows[0].Entity)
	require.Equal(t, "Kancab Metro", table.Rows[1].Entity)
	require.Equal(t, "Kancab Tulang Bawang", table.Rows[2].Entity)
}

func TestNormalizedTargetIsDeterministic(t *testing.T) {
	targets := map[string]decimal.Decimal{
		"KANCAB METRO ": dec("5"),
		" kancab metro": dec("7"),
		"Kancab Bandar": dec("9"),
	}
	for i := 0; i < 50; i++ {
		v, ok := NormalizedTarget(targets)("Kancab Metro")
		require.True(t, ok)
		requireDecimal(t, "7", v)
	}
	v, ok := NormalizedTarget(targets)("Kancab Bandar")
	require.True(t, ok)
	requireDecimal(t, "9", v)
	_, ok = NormalizedTarget(targets)("Kancab Liwa")
	require.False(t, ok)
}
