package procurement

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Milling-yield factors converting dried grain to rice equivalent.
var (
	FactorGKG = decimal.RequireFromString("0.635")
	FactorGKP = decimal.RequireFromString("0.53375")
)

// RiceMatcher selects which commodities count as rice (bucket a).
type RiceMatcher int

const (
	// ExactRice counts only BERAS MEDIUM and BERAS PREMIUM.
	ExactRice RiceMatcher = iota
	// ContainsRice counts any commodity containing "BERAS"; used by the region
	// summary only.
	ContainsRice
)

// Matches reports whether the commodity falls in the rice bucket.
func (m RiceMatcher) Matches(c Commodity) bool {
	switch m {
	case ContainsRice:
		return strings.Contains(string(c), "BERAS")
	default:
		return c == CommodityRiceMedium || c == CommodityRicePremium
	}
}

// Bucket is the equivalence bucket a record falls into.
type Bucket int

const (
	BucketNone Bucket = iota
	BucketRice
	BucketGKG
	BucketGKP
)

// Classify places a record in at most one bucket. A grain row tagged with both GKG and
// GKP counts as GKG.
func Classify(r TransactionRecord, m RiceMatcher) Bucket {
	c := r.Commodity()
	if m.Matches(c) {
		return BucketRice
	}
	if c != CommodityGrain {
		return BucketNone
	}
	spec := strings.ToUpper(r.Specification())
	switch {
	case strings.Contains(spec, SpecGKG):
		return BucketGKG
	case strings.Contains(spec, SpecGKP):
		return BucketGKP
	default:
		return BucketNone
	}
}

// Components holds the bucket totals and the rice equivalent, all in tons.
type Components struct {
	Rice       decimal.Decimal `json:"rice"`
	GKG        decimal.Decimal `json:"gkg"`
	GKP        decimal.Decimal `json:"gkp"`
	Equivalent decimal.Decimal `json:"equivalent"`
}

// Add sums two component sets.
func (c Components) Add(o Components) Components {
	return Components{
		Rice:       c.Rice.Add(o.Rice),
		GKG:        c.GKG.Add(o.GKG),
		GKP:        c.GKP.Add(o.GKP),
		Equivalent: c.Equivalent.Add(o.Equivalent),
	}
}

// Breakdown computes a, b, c and d = a + 0.635*b + 0.53375*c over rows.
func Breakdown(rows []TransactionRecord, m RiceMatcher) Components {
	var rice, gkg, gkp decimal.Decimal
	for _, r := range rows {
		switch Classify(r, m) {
		case BucketRice:
			rice = rice.Add(r.Quantity())
		case BucketGKG:
			gkg = gkg.Add(r.Quantity())
		case BucketGKP:
			gkp = gkp.Add(r.Quantity())
		}
	}
	return components(toTons(rice), toTons(gkg), toTons(gkp))
}

// ComputeEquivalent returns the rice equivalent in tons using the exact rice set.
func ComputeEquivalent(rows []TransactionRecord) decimal.Decimal {
	return Breakdown(rows, ExactRice).Equivalent
}

// Equivalent applies the conversion formula to bucket totals already in tons.
func Equivalent(rice, gkg, gkp decimal.Decimal) decimal.Decimal {
	return rice.Add(FactorGKG.Mul(gkg)).Add(FactorGKP.Mul(gkp))
}

func components(rice, gkg, gkp decimal.Decimal) Components {
	return Components{Rice: rice, GKG: gkg, GKP: gkp, Equivalent: Equivalent(rice, gkg, gkp)}
}

func toTons(kg decimal.Decimal) decimal.Decimal {
	return kg.Shift(-3)
}
