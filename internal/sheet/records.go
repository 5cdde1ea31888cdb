package sheet

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bulog/serapan/internal/procurement"
)

// RowError records a cell that could not be parsed. The value is stored as nil and the
// row is kept.
type RowError struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Err    string `json:"error"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d column %q: %s", e.Row, e.Column, e.Err)
}

var junkPrefixes = []string{"date_order_interval", "tgl_penerimaan", "status_picking", "exported data"}

// IsJunkKanwil reports whether a kanwil cell belongs to the export's footer or filter
// banner rather than to a data row.
func IsJunkKanwil(v string) bool {
	v = strings.TrimSpace(v)
	lower := strings.ToLower(v)
	switch lower {
	case "", "total", "applied filters:", "p", "nan", "none", "null":
		return true
	}
	for _, prefix := range junkPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

type rowReader struct {
	table  *Table
	row    []string
	line   int
	errors *[]RowError
}

func (r rowReader) str(col string) *string {
	return Clean(r.table.Cell(r.row, col))
}

func (r rowReader) dec(col string) *decimal.Decimal {
	raw := r.table.Cell(r.row, col)
	v, err := ParseDecimal(raw)
	if err != nil {
		r.fail(col, raw, err)
	}
	return v
}

func (r rowReader) integer(col string) *int64 {
	raw := r.table.Cell(r.row, col)
	v, err := ParseInt(raw)
	if err != nil {
		r.fail(col, raw, err)
	}
	return v
}

func (r rowReader) date(col string) *procurement.Date {
	raw := r.table.Cell(r.row, col)
	v, err := ParseDate(raw)
	if err != nil {
		r.fail(col, raw, err)
	}
	return v
}

func (r rowReader) fail(col, raw string, err error) {
	*r.errors = append(*r.errors, RowError{Row: r.line, Column: col, Value: raw, Err: err.Error()})
}

// Transactions converts a realisasi export into records. Footer and filter rows are
// dropped; unparseable cells become nil and are reported.
func Transactions(t *Table) ([]procurement.TransactionRecord, []RowError) {
	var (
		out  []procurement.TransactionRecord
		errs []RowError
	)
	for i, row := range t.Rows {
		if blank(row) || IsJunkKanwil(t.Cell(row, ColKanwil)) {
			continue
		}
		r := rowReader{table: t, row: row, line: dataLine(t, i), errors: &errs}
		out = append(out, procurement.TransactionRecord{
			Kanwil:                  t.Cell(row, ColKanwil),
			Kancab:                  valueOrEmpty(r.str(ColEntitas)),
			LokasiPersediaan:        r.str(ColLokasiPersediaan),
			IDPemasok:               r.integer(ColIDPemasok),
			NamaPemasok:             r.str(ColNamaPemasok),
			TanggalPO:               r.date(ColTanggalPO),
			NomorPO:                 r.str(ColNomorPO),
			Produk:                  r.str(ColProduk),
			NoJurnal:                r.str(ColNoJurnal),
			NoInOut:                 r.str(ColNoInOut),
			TanggalPenerimaan:       r.date(ColTanggalPenerimaan),
			Komoditi:                r.str(ColKomoditi),
			Spesifikasi:             r.str(ColSpesifikasi),
			TahunStok:               r.integer(ColTahunStok),
			TanggalKirimKeuangan:    r.date(ColTanggalKirimKeuangan),
			JenisTransaksi:          r.str(ColJenisTransaksi),
			AkunAnalitik:            r.str(ColAkunAnalitik),
			JenisPengadaan:          r.str(ColJenisPengadaan),
			Satuan:                  r.str(ColSatuan),
			UomPO:                   r.str(ColUomPO),
			KuantumPOKg:             r.dec(ColKuantumPOKg),
			QtyInOut:                r.dec(ColInOut),
			HargaIncludePPN:         r.dec(ColHargaIncludePPN),
			NominalRealisasiInclPPN: r.dec(ColNominalRealisasiInclPPN),
			Status:                  r.str(ColStatus),
		})
	}
	return out, errs
}

// RegionTargets reads the regional target sheet. Every target is dated asOf, the day
// of the upload.
func RegionTargets(t *Table, asOf procurement.Date) ([]procurement.RegionTarget, []RowError) {
	var (
		out  []procurement.RegionTarget
		errs []RowError
	)
	for i, row := range t.Rows {
		name := Clean(t.Cell(row, ColKanwil))
		if name == nil {
			continue
		}
		r := rowReader{table: t, row: row, line: dataLine(t, i), errors: &errs}
		target := r.dec(ColTargetSetaraBeras)
		if target == nil {
			continue
		}
		out = append(out, procurement.RegionTarget{Kanwil: *name, Target: target, Date: asOf})
	}
	return out, errs
}

// BranchTargets reads the branch target sheet with the same rules as RegionTargets.
func BranchTargets(t *Table, asOf procurement.Date) ([]procurement.BranchTarget, []RowError) {
	var (
		out  []procurement.BranchTarget
		errs []RowError
	)
	for i, row := range t.Rows {
		name := Clean(t.Cell(row, ColKancab))
		if name == nil {
			continue
		}
		r := rowReader{table: t, row: row, line: dataLine(t, i), errors: &errs}
		target := r.dec(ColTargetSetaraBeras)
		if target == nil {
			continue
		}
		out = append(out, procurement.BranchTarget{Kancab: *name, Target: target, Date: asOf})
	}
	return out, errs
}

// dataLine is the 1-based spreadsheet line of data row i.
func dataLine(t *Table, i int) int {
	return t.offset + i + 2
}

func valueOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
