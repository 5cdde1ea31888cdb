package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/bulog/serapan/internal/procurement"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func sampleSummary() procurement.TwoTier {
	a := procurement.AggregateRow{Rank: 1, Entity: "08001 - KANTOR WILAYAH LAMPUNG", Target: dec("100"), Rice: decimal.NewFromInt(120), Equivalent: decimal.NewFromInt(120), Attainment: dec("120")}
	b := procurement.AggregateRow{Rank: 1, Entity: "22001 - KANTOR WILAYAH BALI", GKG: decimal.NewFromInt(1), Equivalent: decimal.RequireFromString("0.635")}
	return procurement.TwoTier{
		GroupA:    []procurement.AggregateRow{a},
		GroupB:    []procurement.AggregateRow{b},
		SubtotalA: procurement.AggregateRow{Entity: procurement.LabelSubtotalSentra, Target: dec("100"), Equivalent: decimal.NewFromInt(120), Attainment: dec("120")},
		SubtotalB: procurement.AggregateRow{Entity: procurement.LabelSubtotalLainnya, Equivalent: decimal.RequireFromString("0.635")},
		Grand:     procurement.AggregateRow{Entity: procurement.LabelGrandTotal, Target: dec("100"), Equivalent: decimal.RequireFromString("1234.5678"), Attainment: dec("86.66666")},
	}
}

func readCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("csv read error: %v", err)
	}
	return records
}

func TestWriteRegionSummaryCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteRegionSummaryCSV(buf, sampleSummary()); err != nil {
		t.Fatalf("summary csv error: %v", err)
	}
	records := readCSV(t, buf)
	if len(records) != 6 {
		t.Fatalf("expected header + 5 rows, got %d", len(records))
	}
	if records[2][1] != procurement.LabelSubtotalSentra {
		t.Fatalf("expected sentra subtotal on line 3, got %q", records[2][1])
	}
	if records[3][2] != "-" || records[3][7] != "-" {
		t.Fatalf("expected missing target and attainment as '-', got %v", records[3])
	}
	if records[5][7] != "86.7" {
		t.Fatalf("expected rounded attainment 86.7, got %q", records[5][7])
	}
	if records[1][0] != "1" || records[2][0] != "" {
		t.Fatalf("unexpected rank column %q %q", records[1][0], records[2][0])
	}
}

func TestWriteProgressCSV(t *testing.T) {
	table := procurement.ProgressTable{
		Yesterday: procurement.MustDate("2025-03-09"),
		Today:     procurement.MustDate("2025-03-10"),
		Rows:      []procurement.ProgressRow{{Rank: 1, Kanwil: "JATIM", TargetBeras: dec("10"), ToDateBeras: dec("6"), AttainmentBeras: dec("60")}},
		Total:     procurement.ProgressRow{Kanwil: "TOTAL", TargetBeras: dec("10")},
	}
	buf := &bytes.Buffer{}
	if err := WriteProgressCSV(buf, table); err != nil {
		t.Fatalf("progress csv error: %v", err)
	}
	records := readCSV(t, buf)
	if len(records) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(records))
	}
	if records[0][4] != "Beras s.d. 2025-03-09" {
		t.Fatalf("unexpected header %q", records[0][4])
	}
	if records[1][3] != "-" || records[1][8] != "6.000" {
		t.Fatalf("unexpected row %v", records[1])
	}
}

func TestWriteTrendCSV(t *testing.T) {
	points := procurement.DailyTrend(nil, procurement.MustDate("2025-03-01"), procurement.MustDate("2025-03-03"))
	buf := &bytes.Buffer{}
	if err := WriteTrendCSV(buf, points); err != nil {
		t.Fatalf("trend csv error: %v", err)
	}
	records := readCSV(t, buf)
	if len(records) != 4 || records[3][0] != "2025-03-03" || records[3][4] != "0.000" {
		t.Fatalf("unexpected trend %v", records)
	}
}

func TestWriteBranchTableCSV(t *testing.T) {
	table := procurement.ComposeBranchTable([]procurement.AggregateRow{
		{Entity: "Kancab Metro", Target: dec("2"), Equivalent: decimal.NewFromInt(1), Attainment: dec("50")},
	})
	buf := &bytes.Buffer{}
	if err := WriteBranchTableCSV(buf, table); err != nil {
		t.Fatalf("branch csv error: %v", err)
	}
	records := readCSV(t, buf)
	if records[0][1] != "Kancab" || records[2][1] != procurement.LabelBranchTotal {
		t.Fatalf("unexpected branch csv %v", records)
	}
}

func TestWriteRegionSummaryXLSX(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteRegionSummaryXLSX(buf, sampleSummary()); err != nil {
		t.Fatalf("xlsx error: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(sheetRegions)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	var labels []string
	for _, row := range rows {
		if len(row) > 1 {
			labels = append(labels, row[1])
		}
	}
	want := []string{
		"KANWIL SENTRA PRODUKSI", "Kanwil", "08001 - KANTOR WILAYAH LAMPUNG", procurement.LabelSubtotalSentra,
		"KANWIL LAINNYA", "Kanwil", "22001 - KANTOR WILAYAH BALI", procurement.LabelSubtotalLainnya,
		procurement.LabelGrandTotal, "Setara beras nasional 1.234,57 ton",
	}
	if len(labels) != len(want) {
		t.Fatalf("expected %d labelled rows got %d: %v", len(want), len(labels), labels)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("row %d: expected %q got %q", i, want[i], labels[i])
		}
	}
}

func TestWriteBranchTableXLSX(t *testing.T) {
	table := procurement.BranchTable{Total: procurement.AggregateRow{Entity: procurement.LabelBranchTotal}}
	buf := &bytes.Buffer{}
	if err := WriteBranchTableXLSX(buf, "08001 - KANTOR WILAYAH LAMPUNG", table); err != nil {
		t.Fatalf("xlsx error: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer func() { _ = f.Close() }()
	value, err := f.GetCellValue(sheetBranches, "B3")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if value != procurement.LabelBranchTotal {
		t.Fatalf("expected total row, got %q", value)
	}
}

func TestFormatting(t *testing.T) {
	if got := FormatTon(decimal.RequireFromString("1234.567")); got != "1.234,57" {
		t.Fatalf("unexpected ton format %q", got)
	}
	if got := FormatPercent(dec("86.66")); got != "86,7%" {
		t.Fatalf("unexpected percent format %q", got)
	}
	if got := FormatPercent(nil); got != "-" {
		t.Fatalf("expected '-', got %q", got)
	}
}
