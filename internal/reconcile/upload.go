package reconcile

import (
	"io"

	"github.com/bulog/serapan/internal/procurement"
	"github.com/bulog/serapan/internal/sheet"
)

// ReadUpload parses a spreadsheet file for table and picks its worksheet.
func ReadUpload(r io.Reader, filename string, table Table, asOf procurement.Date) (Upload, error) {
	wb, err := sheet.Open(r, filename)
	if err != nil {
		return Upload{}, err
	}
	t, err := sheet.DetectSheet(wb, table.Kind())
	if err != nil {
		return Upload{}, err
	}
	return Upload{Table: table, Sheet: t, AsOf: asOf}, nil
}
