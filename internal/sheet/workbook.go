// Package sheet reads receiving exports and target workbooks into domain records.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither xlsx nor csv.
	ErrUnsupportedFormat = errors.New("sheet: unsupported file format")
	// ErrEmptyWorkbook is returned when no sheet carries a header row.
	ErrEmptyWorkbook = errors.New("sheet: workbook has no data")
)

// Kind identifies which upload a table belongs to.
type Kind string

const (
	KindRealisasi    Kind = "realisasi"
	KindTargetKanwil Kind = "target_kanwil"
	KindTargetKancab Kind = "target_kancab"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRealisasi, KindTargetKanwil, KindTargetKancab:
		return true
	}
	return false
}

// SheetName is the worksheet name the export uses for the kind.
func (k Kind) SheetName() string {
	switch k {
	case KindTargetKanwil:
		return "Target Kanwil"
	case KindTargetKancab:
		return "Target Kancab"
	default:
		return "Export"
	}
}

// Table is one worksheet: a header row and the data rows below it.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string

	index  map[string]int
	offset int
}

// NewTable builds a table from raw rows; the first non-blank row is the header.
func NewTable(name string, raw [][]string) *Table {
	t := &Table{Name: name}
	for i, row := range raw {
		if blank(row) {
			continue
		}
		t.Header = make([]string, len(row))
		for j, h := range row {
			t.Header[j] = strings.TrimSpace(h)
		}
		t.Rows = raw[i+1:]
		t.offset = i
		break
	}
	t.index = make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		key := strings.ToLower(h)
		if _, dup := t.index[key]; !dup && key != "" {
			t.index[key] = i
		}
	}
	return t
}

// Has reports whether the header contains column (case-insensitive).
func (t *Table) Has(column string) bool {
	_, ok := t.index[strings.ToLower(strings.TrimSpace(column))]
	return ok
}

// Cell returns the trimmed value of column in row, or "" when absent.
func (t *Table) Cell(row []string, column string) string {
	i, ok := t.index[strings.ToLower(strings.TrimSpace(column))]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Workbook is the parsed upload.
type Workbook struct {
	Name   string
	Sheets []*Table
}

// Open parses an uploaded file by its extension. CSV input that is not valid UTF-8 is
// decoded as Windows-1252.
func Open(r io.Reader, name string) (*Workbook, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return openXLSX(r, name)
	case ".csv":
		return openCSV(r, name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

func openXLSX(r io.Reader, name string) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("sheet: open xlsx: %w", err)
	}
	defer f.Close()

	wb := &Workbook{Name: name}
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet: read %q: %w", sheetName, err)
		}
		table := NewTable(sheetName, rows)
		if len(table.Header) == 0 {
			continue
		}
		wb.Sheets = append(wb.Sheets, table)
	}
	if len(wb.Sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	return wb, nil
}

func openCSV(r io.Reader, name string) (*Workbook, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sheet: read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		src = transform.NewReader(src, charmap.Windows1252.NewDecoder())
	}
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("sheet: parse csv: %w", err)
	}
	table := NewTable(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)), rows)
	if len(table.Header) == 0 {
		return nil, ErrEmptyWorkbook
	}
	return &Workbook{Name: name, Sheets: []*Table{table}}, nil
}

// DetectSheet picks the worksheet named for kind, falling back to the first sheet.
func DetectSheet(wb *Workbook, kind Kind) (*Table, error) {
	if wb == nil || len(wb.Sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	want := kind.SheetName()
	for _, t := range wb.Sheets {
		if strings.EqualFold(strings.TrimSpace(t.Name), want) {
			return t, nil
		}
	}
	return wb.Sheets[0], nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
