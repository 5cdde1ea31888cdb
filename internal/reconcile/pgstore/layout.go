package pgstore

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/bulog/serapan/internal/procurement"
	"github.com/bulog/serapan/internal/reconcile"
)

var realisasiColumns = []string{
	"kanwil_id", "kancab_id", "lokasi_persediaan", "id_pemasok", "nama_pemasok",
	"tanggal_po", "nomor_po", "produk", "no_jurnal", "no_in_out",
	"tanggal_penerimaan", "komoditi", "spesifikasi", "tahun_stok", "tanggal_kirim_keuangan",
	"jenis_transaksi", "akun_analitik", "jenis_pengadaan", "satuan", "uom_po",
	"kuantum_po_kg", "qty_in_out", "harga_include_ppn", "nominal_realisasi_incl_ppn", "status",
	"row_hash",
}

var (
	targetKanwilColumns = []string{"kanwil_id", "target_setara_beras", "date", "row_hash"}
	targetKancabColumns = []string{"kancab_id", "target_setara_beras", "date", "row_hash"}
)

// layout describes how rows of one storage table map onto reconcile.Row.
type layout struct {
	table   string
	kind    reconcile.Table
	columns []string
}

func layoutOf(table string) (layout, error) {
	base := reconcile.Table(strings.TrimSuffix(table, "_compare"))
	var cols []string
	switch base {
	case reconcile.TableRealisasi:
		cols = realisasiColumns
	case reconcile.TableTargetKanwil:
		cols = targetKanwilColumns
	case reconcile.TableTargetKancab:
		cols = targetKancabColumns
	default:
		return layout{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return layout{table: table, kind: base, columns: cols}, nil
}

func (l layout) selectColumns() []string {
	return append([]string{"id"}, l.columns...)
}

func (l layout) scan(row pgx.Row) (reconcile.Row, error) {
	switch l.kind {
	case reconcile.TableTargetKanwil:
		var (
			t      procurement.RegionTarget
			id     int64
			target pgtype.Numeric
			date   pgtype.Date
		)
		if err := row.Scan(&id, &t.KanwilID, &target, &date, &t.RowHash); err != nil {
			return reconcile.Row{}, err
		}
		t.Target = fromNumeric(target)
		t.Date = fromDate(date)
		return reconcile.Row{ID: id, RegionTarget: &t}, nil
	case reconcile.TableTargetKancab:
		var (
			t      procurement.BranchTarget
			id     int64
			target pgtype.Numeric
			date   pgtype.Date
		)
		if err := row.Scan(&id, &t.KancabID, &target, &date, &t.RowHash); err != nil {
			return reconcile.Row{}, err
		}
		t.Target = fromNumeric(target)
		t.Date = fromDate(date)
		return reconcile.Row{ID: id, BranchTarget: &t}, nil
	default:
		r, err := scanTransaction(row, nil)
		if err != nil {
			return reconcile.Row{}, err
		}
		return reconcile.Row{ID: r.ID, Transaction: &r}, nil
	}
}

// scanTransaction reads id followed by realisasiColumns, then any extra destinations.
func scanTransaction(row pgx.Row, extra []any) (procurement.TransactionRecord, error) {
	var (
		r                                          procurement.TransactionRecord
		tanggalPO, tanggalPenerimaan, tanggalKirim pgtype.Date
		kuantumPO, qty, harga, nominal             pgtype.Numeric
	)
	dest := []any{
		&r.ID, &r.KanwilID, &r.KancabID, &r.LokasiPersediaan, &r.IDPemasok, &r.NamaPemasok,
		&tanggalPO, &r.NomorPO, &r.Produk, &r.NoJurnal, &r.NoInOut,
		&tanggalPenerimaan, &r.Komoditi, &r.Spesifikasi, &r.TahunStok, &tanggalKirim,
		&r.JenisTransaksi, &r.AkunAnalitik, &r.JenisPengadaan, &r.Satuan, &r.UomPO,
		&kuantumPO, &qty, &harga, &nominal, &r.Status,
		&r.RowHash,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return procurement.TransactionRecord{}, err
	}
	r.TanggalPO = datePtr(tanggalPO)
	r.TanggalPenerimaan = datePtr(tanggalPenerimaan)
	r.TanggalKirimKeuangan = datePtr(tanggalKirim)
	r.KuantumPOKg = fromNumeric(kuantumPO)
	r.QtyInOut = fromNumeric(qty)
	r.HargaIncludePPN = fromNumeric(harga)
	r.NominalRealisasiInclPPN = fromNumeric(nominal)
	return r, nil
}

func (l layout) values(row reconcile.Row) ([]any, error) {
	switch l.kind {
	case reconcile.TableTargetKanwil:
		t := row.RegionTarget
		if t == nil {
			return nil, fmt.Errorf("pgstore: %s row without region target", l.table)
		}
		return []any{t.KanwilID, toNumeric(t.Target), toDate(&t.Date), t.RowHash}, nil
	case reconcile.TableTargetKancab:
		t := row.BranchTarget
		if t == nil {
			return nil, fmt.Errorf("pgstore: %s row without branch target", l.table)
		}
		return []any{t.KancabID, toNumeric(t.Target), toDate(&t.Date), t.RowHash}, nil
	default:
		r := row.Transaction
		if r == nil {
			return nil, fmt.Errorf("pgstore: %s row without transaction", l.table)
		}
		return []any{
			r.KanwilID, r.KancabID, r.LokasiPersediaan, r.IDPemasok, r.NamaPemasok,
			toDate(r.TanggalPO), r.NomorPO, r.Produk, r.NoJurnal, r.NoInOut,
			toDate(r.TanggalPenerimaan), r.Komoditi, r.Spesifikasi, r.TahunStok, toDate(r.TanggalKirimKeuangan),
			r.JenisTransaksi, r.AkunAnalitik, r.JenisPengadaan, r.Satuan, r.UomPO,
			toNumeric(r.KuantumPOKg), toNumeric(r.QtyInOut), toNumeric(r.HargaIncludePPN), toNumeric(r.NominalRealisasiInclPPN), r.Status,
			r.RowHash,
		}, nil
	}
}

func toNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) *decimal.Decimal {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return nil
	}
	d := decimal.NewFromBigInt(n.Int, n.Exp)
	return &d
}

func toDate(d *procurement.Date) pgtype.Date {
	if d == nil || d.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time(), Valid: true}
}

func fromDate(d pgtype.Date) procurement.Date {
	if !d.Valid {
		return procurement.Date{}
	}
	return procurement.DateOf(d.Time)
}

func datePtr(d pgtype.Date) *procurement.Date {
	return procurement.DatePtr(fromDate(d))
}
