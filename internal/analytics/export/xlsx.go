package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/bulog/serapan/internal/procurement"
)

const (
	sheetRegions  = "Ringkasan Kanwil"
	sheetBranches = "Kancab"
)

type workbook struct {
	f     *excelize.File
	sheet string
	bold  int
	next  int
}

func newWorkbook(sheet string) (*workbook, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.SetColWidth(sheet, "B", "B", 42); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &workbook{f: f, sheet: sheet, bold: bold, next: 1}, nil
}

func (wb *workbook) row(values []any, emphasize bool) error {
	cell, err := excelize.CoordinatesToCellName(1, wb.next)
	if err != nil {
		return err
	}
	if err := wb.f.SetSheetRow(wb.sheet, cell, &values); err != nil {
		return err
	}
	if emphasize {
		last, err := excelize.CoordinatesToCellName(len(values), wb.next)
		if err != nil {
			return err
		}
		if err := wb.f.SetCellStyle(wb.sheet, cell, last, wb.bold); err != nil {
			return err
		}
	}
	wb.next++
	return nil
}

func (wb *workbook) aggregate(rank int, row procurement.AggregateRow, emphasize bool) error {
	var no any = ""
	if rank > 0 {
		no = rank
	}
	return wb.row([]any{
		no,
		row.Entity,
		cellValue(row.Target),
		row.Rice.InexactFloat64(),
		row.GKG.InexactFloat64(),
		row.GKP.InexactFloat64(),
		row.Equivalent.InexactFloat64(),
		FormatPercent(row.Attainment),
	}, emphasize)
}

func (wb *workbook) header(label string) error {
	values := make([]any, len(summaryHeader))
	for i, h := range summaryHeader {
		values[i] = h
	}
	values[1] = label
	return wb.row(values, true)
}

func (wb *workbook) close() { _ = wb.f.Close() }

func (wb *workbook) write(w io.Writer) error {
	if err := wb.f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

// WriteRegionSummaryXLSX writes the region summary as a workbook with the sentra section,
// the remaining regions and the national total, each section closed by its subtotal.
func WriteRegionSummaryXLSX(w io.Writer, summary procurement.TwoTier) error {
	wb, err := newWorkbook(sheetRegions)
	if err != nil {
		return err
	}
	defer wb.close()
	sections := []struct {
		title    string
		rows     []procurement.AggregateRow
		subtotal procurement.AggregateRow
	}{
		{"KANWIL SENTRA PRODUKSI", summary.GroupA, summary.SubtotalA},
		{"KANWIL LAINNYA", summary.GroupB, summary.SubtotalB},
	}
	for _, section := range sections {
		if err := wb.row([]any{"", section.title}, true); err != nil {
			return err
		}
		if err := wb.header("Kanwil"); err != nil {
			return err
		}
		for _, row := range section.rows {
			if err := wb.aggregate(row.Rank, row, false); err != nil {
				return err
			}
		}
		if err := wb.aggregate(0, section.subtotal, true); err != nil {
			return err
		}
		wb.next++
	}
	if err := wb.aggregate(0, summary.Grand, true); err != nil {
		return err
	}
	caption := fmt.Sprintf("Setara beras nasional %s ton", FormatTon(summary.Grand.Equivalent))
	if err := wb.row([]any{"", caption}, false); err != nil {
		return err
	}
	return wb.write(w)
}

// WriteBranchTableXLSX writes the branch table of kanwil.
func WriteBranchTableXLSX(w io.Writer, kanwil string, table procurement.BranchTable) error {
	wb, err := newWorkbook(sheetBranches)
	if err != nil {
		return err
	}
	defer wb.close()
	if err := wb.row([]any{"", kanwil}, true); err != nil {
		return err
	}
	if err := wb.header("Kancab"); err != nil {
		return err
	}
	for _, row := range table.Rows {
		if err := wb.aggregate(row.Rank, row, false); err != nil {
			return err
		}
	}
	if err := wb.aggregate(0, table.Total, true); err != nil {
		return err
	}
	return wb.write(w)
}
