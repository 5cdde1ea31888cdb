package sheet

import (
	"fmt"
	"strings"
)

// Realisasi export headers.
const (
	ColKanwil                  = "kanwil"
	ColEntitas                 = "Entitas"
	ColLokasiPersediaan        = "Lokasi Persediaan"
	ColIDPemasok               = "No. ID Pemasok"
	ColNamaPemasok             = "Nama Pemasok"
	ColTanggalPO               = "Tanggal PO"
	ColNomorPO                 = "Nomor PO"
	ColProduk                  = "Produk"
	ColNoJurnal                = "No Jurnal"
	ColNoInOut                 = "Nomor IN / OUT"
	ColTanggalPenerimaan       = "Tanggal Penerimaan"
	ColKomoditi                = "Komoditi"
	ColSpesifikasi             = "spesifikasi"
	ColTahunStok               = "Tahun Stok"
	ColTanggalKirimKeuangan    = "Tanggal Kirim Keuangan"
	ColJenisTransaksi          = "Jenis Transaksi"
	ColAkunAnalitik            = "Akun Analitik"
	ColJenisPengadaan          = "Jenis Pengadaan"
	ColSatuan                  = "Satuan"
	ColUomPO                   = "uom_po"
	ColKuantumPOKg             = "Kuantum PO (Kg)"
	ColInOut                   = "In / Out"
	ColHargaIncludePPN         = "Harga Include ppn"
	ColNominalRealisasiInclPPN = "Nominal Realisasi Incl ppn"
	ColStatus                  = "Status"
)

// Target workbook headers.
const (
	ColKancab            = "kancab"
	ColTargetSetaraBeras = "Target Setara Beras"
)

var realisasiColumns = []string{
	ColKanwil, ColEntitas, ColLokasiPersediaan, ColIDPemasok, ColNamaPemasok,
	ColTanggalPO, ColNomorPO, ColProduk, ColNoJurnal, ColNoInOut,
	ColTanggalPenerimaan, ColKomoditi, ColSpesifikasi, ColTahunStok, ColTanggalKirimKeuangan,
	ColJenisTransaksi, ColAkunAnalitik, ColJenisPengadaan, ColSatuan, ColUomPO,
	ColKuantumPOKg, ColInOut, ColHargaIncludePPN, ColNominalRealisasiInclPPN, ColStatus,
}

// RequiredColumns lists the headers an upload of kind must carry, in display order.
func RequiredColumns(kind Kind) []string {
	switch kind {
	case KindTargetKanwil:
		return []string{ColKanwil, ColTargetSetaraBeras}
	case KindTargetKancab:
		return []string{ColKancab, ColTargetSetaraBeras}
	default:
		return append([]string(nil), realisasiColumns...)
	}
}

// MissingColumnsError reports every required header absent from an upload.
type MissingColumnsError struct {
	Kind    Kind
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("sheet: %s upload is missing columns: %s", e.Kind, strings.Join(e.Columns, ", "))
}

// Validate checks that t carries every required column of kind.
func Validate(t *Table, kind Kind) error {
	if t == nil {
		return ErrEmptyWorkbook
	}
	var missing []string
	for _, col := range RequiredColumns(kind) {
		if !t.Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Kind: kind, Columns: missing}
	}
	return nil
}
