// Package fingerprint computes the content digests used to detect duplicate uploads.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bulog/serapan/internal/procurement"
)

// keySeparator joins the identity fields; the unit separator never occurs in spreadsheet text.
const keySeparator = "\x1f"

// nullToken stands in for absent identity fields.
const nullToken = "NULL"

// Record returns the SHA-256 hex digest of the record's business fields. Keys are
// serialized in sorted order, so the digest does not depend on field order, and
// surrogate ids, display names and the stored hash itself are excluded.
func Record(r procurement.TransactionRecord) string {
	return digestJSON(map[string]any{
		"kanwil_id":                  intValue(r.KanwilID),
		"kancab_id":                  intValue(r.KancabID),
		"lokasi_persediaan":          stringValue(r.LokasiPersediaan),
		"id_pemasok":                 intValue(r.IDPemasok),
		"nama_pemasok":               stringValue(r.NamaPemasok),
		"tanggal_po":                 dateValue(r.TanggalPO),
		"nomor_po":                   stringValue(r.NomorPO),
		"produk":                     stringValue(r.Produk),
		"no_jurnal":                  stringValue(r.NoJurnal),
		"no_in_out":                  stringValue(r.NoInOut),
		"tanggal_penerimaan":         dateValue(r.TanggalPenerimaan),
		"komoditi":                   stringValue(r.Komoditi),
		"spesifikasi":                stringValue(r.Spesifikasi),
		"tahun_stok":                 intValue(r.TahunStok),
		"tanggal_kirim_keuangan":     dateValue(r.TanggalKirimKeuangan),
		"jenis_transaksi":            stringValue(r.JenisTransaksi),
		"akun_analitik":              stringValue(r.AkunAnalitik),
		"jenis_pengadaan":            stringValue(r.JenisPengadaan),
		"satuan":                     stringValue(r.Satuan),
		"uom_po":                     stringValue(r.UomPO),
		"kuantum_po_kg":              decimalValue(r.KuantumPOKg),
		"qty_in_out":                 decimalValue(r.QtyInOut),
		"harga_include_ppn":          decimalValue(r.HargaIncludePPN),
		"nominal_realisasi_incl_ppn": decimalValue(r.NominalRealisasiInclPPN),
		"status":                     stringValue(r.Status),
	})
}

// KeyFields returns the narrower identity of a receiving event: purchase order, in/out
// number, receiving date, commodity, specification and the two office ids. Values are
// trimmed and lower-cased before hashing.
func KeyFields(r procurement.TransactionRecord) string {
	parts := []string{
		keyString(r.NomorPO),
		keyString(r.NoInOut),
		keyDate(r.TanggalPenerimaan),
		keyString(r.Komoditi),
		keyString(r.Spesifikasi),
		keyInt(r.KanwilID),
		keyInt(r.KancabID),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, keySeparator)))
	return hex.EncodeToString(sum[:])
}

// RegionTarget digests a regional target. The target date is not part of the identity.
func RegionTarget(t procurement.RegionTarget) string {
	return digestJSON(map[string]any{
		"kanwil_id":           intValue(t.KanwilID),
		"target_setara_beras": decimalValue(t.Target),
	})
}

// BranchTarget digests a branch target. The target date is not part of the identity.
func BranchTarget(t procurement.BranchTarget) string {
	return digestJSON(map[string]any{
		"kancab_id":           intValue(t.KancabID),
		"target_setara_beras": decimalValue(t.Target),
	})
}

// encoding/json writes map keys in sorted order.
func digestJSON(fields map[string]any) string {
	payload, err := json.Marshal(fields)
	if err != nil {
		// Every value is a string, int64 or nil.
		panic("fingerprint: marshal: " + err.Error())
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func stringValue(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func intValue(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func dateValue(v *procurement.Date) any {
	if v == nil || v.IsZero() {
		return nil
	}
	return v.String()
}

func decimalValue(v *decimal.Decimal) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func keyString(v *string) string {
	if v == nil {
		return nullToken
	}
	return strings.ToLower(strings.TrimSpace(*v))
}

func keyInt(v *int64) string {
	if v == nil {
		return nullToken
	}
	return strconv.FormatInt(*v, 10)
}

func keyDate(v *procurement.Date) string {
	if v == nil || v.IsZero() {
		return nullToken
	}
	return v.String()
}
