package procurement

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Commodity identifies the procured good as written in the receiving export.
type Commodity string

const (
	CommodityRicePremium Commodity = "BERAS PREMIUM"
	CommodityRiceMedium  Commodity = "BERAS MEDIUM"
	CommodityGrain       Commodity = "GABAH"
)

// Grain drying-state tags carried in the specification text.
const (
	SpecGKG = "GKG"
	SpecGKP = "GKP"
)

// TransactionRecord is one receiving or procurement event (realisasi).
type TransactionRecord struct {
	ID       int64  `json:"id,omitempty"`
	Kanwil   string `json:"kanwil,omitempty"`
	Kancab   string `json:"kancab,omitempty"`
	KanwilID *int64 `json:"kanwil_id"`
	KancabID *int64 `json:"kancab_id"`

	LokasiPersediaan        *string          `json:"lokasi_persediaan"`
	IDPemasok               *int64           `json:"id_pemasok"`
	NamaPemasok             *string          `json:"nama_pemasok"`
	TanggalPO               *Date            `json:"tanggal_po"`
	NomorPO                 *string          `json:"nomor_po"`
	Produk                  *string          `json:"produk"`
	NoJurnal                *string          `json:"no_jurnal"`
	NoInOut                 *string          `json:"no_in_out"`
	TanggalPenerimaan       *Date            `json:"tanggal_penerimaan"`
	Komoditi                *string          `json:"komoditi"`
	Spesifikasi             *string          `json:"spesifikasi"`
	TahunStok               *int64           `json:"tahun_stok"`
	TanggalKirimKeuangan    *Date            `json:"tanggal_kirim_keuangan"`
	JenisTransaksi          *string          `json:"jenis_transaksi"`
	AkunAnalitik            *string          `json:"akun_analitik"`
	JenisPengadaan          *string          `json:"jenis_pengadaan"`
	Satuan                  *string          `json:"satuan"`
	UomPO                   *string          `json:"uom_po"`
	KuantumPOKg             *decimal.Decimal `json:"kuantum_po_kg"`
	QtyInOut                *decimal.Decimal `json:"qty_in_out"`
	HargaIncludePPN         *decimal.Decimal `json:"harga_include_ppn"`
	NominalRealisasiInclPPN *decimal.Decimal `json:"nominal_realisasi_incl_ppn"`
	Status                  *string          `json:"status"`

	RowHash string `json:"row_hash,omitempty"`
}

// Quantity returns the in/out quantity in kilograms, zero when absent.
func (r TransactionRecord) Quantity() decimal.Decimal {
	if r.QtyInOut == nil {
		return decimal.Zero
	}
	return *r.QtyInOut
}

// OrderedQuantity returns the purchase-order quantity in kilograms, zero when absent.
func (r TransactionRecord) OrderedQuantity() decimal.Decimal {
	if r.KuantumPOKg == nil {
		return decimal.Zero
	}
	return *r.KuantumPOKg
}

// Commodity returns the trimmed, upper-cased commodity.
func (r TransactionRecord) Commodity() Commodity {
	if r.Komoditi == nil {
		return ""
	}
	return Commodity(strings.ToUpper(strings.TrimSpace(*r.Komoditi)))
}

// Specification returns the raw specification text or an empty string.
func (r TransactionRecord) Specification() string {
	if r.Spesifikasi == nil {
		return ""
	}
	return *r.Spesifikasi
}

// RegionTarget is the rice-equivalent target (tons) for a regional office.
type RegionTarget struct {
	KanwilID *int64           `json:"kanwil_id"`
	Kanwil   string           `json:"kanwil,omitempty"`
	Target   *decimal.Decimal `json:"target_setara_beras"`
	Date     Date             `json:"date"`
	RowHash  string           `json:"row_hash,omitempty"`
}

// BranchTarget is the rice-equivalent target (tons) for a branch office.
type BranchTarget struct {
	KancabID *int64           `json:"kancab_id"`
	KanwilID *int64           `json:"kanwil_id,omitempty"`
	Kancab   string           `json:"kancab,omitempty"`
	Target   *decimal.Decimal `json:"target_setara_beras"`
	Date     Date             `json:"date"`
	RowHash  string           `json:"row_hash,omitempty"`
}

var (
	// ErrInvalidFilter indicates an unusable filter (for example an inverted date range).
	ErrInvalidFilter = errors.New("procurement: invalid filter")
	// ErrUnknownRegion indicates a region label outside the fixed registry.
	ErrUnknownRegion = errors.New("procurement: unknown region")
)

// StringPtr returns a pointer to the trimmed value, or nil when it is empty.
func StringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// DecimalPtr returns a pointer to d.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
