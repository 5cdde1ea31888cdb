// Package export renders dashboard tables as CSV and XLSX downloads.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/bulog/serapan/internal/procurement"
)

var summaryHeader = []string{"No", "Kanwil", "Target (Ton)", "Beras (Ton)", "GKG (Ton)", "GKP (Ton)", "Setara Beras (Ton)", "Capaian (%)"}

func aggregateRecord(rank string, row procurement.AggregateRow) []string {
	return []string{
		rank,
		row.Entity,
		optionalTons(row.Target),
		tons(row.Rice),
		tons(row.GKG),
		tons(row.GKP),
		tons(row.Equivalent),
		percent(row.Attainment),
	}
}

func rankLabel(rank int) string {
	if rank <= 0 {
		return ""
	}
	return strconv.Itoa(rank)
}

// WriteRegionSummaryCSV serialises the two-tier region summary: sentra rows, their
// subtotal, the remaining regions, their subtotal and the national total.
func WriteRegionSummaryCSV(w io.Writer, summary procurement.TwoTier) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(summaryHeader); err != nil {
		return err
	}
	var records [][]string
	for _, row := range summary.GroupA {
		records = append(records, aggregateRecord(rankLabel(row.Rank), row))
	}
	records = append(records, aggregateRecord("", summary.SubtotalA))
	for _, row := range summary.GroupB {
		records = append(records, aggregateRecord(rankLabel(row.Rank), row))
	}
	records = append(records,
		aggregateRecord("", summary.SubtotalB),
		aggregateRecord("", summary.Grand),
	)
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteBranchTableCSV emits the branch table of one kanwil with its total row.
func WriteBranchTableCSV(w io.Writer, table procurement.BranchTable) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	header := append([]string(nil), summaryHeader...)
	header[1] = "Kancab"
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range table.Rows {
		if err := writer.Write(aggregateRecord(rankLabel(row.Rank), row)); err != nil {
			return err
		}
	}
	if err := writer.Write(aggregateRecord("", table.Total)); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteProgressCSV emits the daily progress table.
func WriteProgressCSV(w io.Writer, table procurement.ProgressTable) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	yesterday := "s.d. " + table.Yesterday.String()
	today := table.Today.String()
	header := []string{
		"No", "Kanwil",
		"Target Beras", "Target Gabah",
		"Beras " + yesterday, "Gabah " + yesterday,
		"Beras " + today, "Gabah " + today,
		"Beras s.d. " + today, "Gabah s.d. " + today,
		"Capaian Beras (%)", "Capaian Gabah (%)",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	rows := append(append([]procurement.ProgressRow(nil), table.Rows...), table.Total)
	for _, row := range rows {
		if err := writer.Write([]string{
			rankLabel(row.Rank), row.Kanwil,
			optionalTons(row.TargetBeras), optionalTons(row.TargetGabah),
			optionalTons(row.UntilYesterdayBeras), optionalTons(row.UntilYesterdayGabah),
			optionalTons(row.TodayBeras), optionalTons(row.TodayGabah),
			optionalTons(row.ToDateBeras), optionalTons(row.ToDateGabah),
			percent(row.AttainmentBeras), percent(row.AttainmentGabah),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTrendCSV prints one line per day.
func WriteTrendCSV(w io.Writer, points []procurement.TrendPoint) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Tanggal", "Beras (Ton)", "GKG (Ton)", "GKP (Ton)", "Setara Beras (Ton)"}); err != nil {
		return err
	}
	for _, point := range points {
		if err := writer.Write([]string{
			point.Date.String(),
			tons(point.Rice),
			tons(point.GKG),
			tons(point.GKP),
			tons(point.Equivalent),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
