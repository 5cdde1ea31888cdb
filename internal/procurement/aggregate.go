package procurement

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EntityKeyFn extracts the grouping key of a record.
type EntityKeyFn func(TransactionRecord) string

// ByKanwil groups by the stored regional office name.
func ByKanwil(r TransactionRecord) string { return strings.TrimSpace(r.Kanwil) }

// ByRegionLabel groups by the registry label so stored names with ordinal prefixes
// collapse onto the fixed region lists.
func ByRegionLabel(r TransactionRecord) string { return RegionLabel(r.Kanwil) }

// ByKancab groups by branch name.
func ByKancab(r TransactionRecord) string { return strings.TrimSpace(r.Kancab) }

// ByReceivingDate groups by receiving date (ISO form).
func ByReceivingDate(r TransactionRecord) string {
	if r.TanggalPenerimaan == nil {
		return ""
	}
	return r.TanggalPenerimaan.String()
}

// AggregateRow is one entity's realized volumes against its target.
type AggregateRow struct {
	Rank       int              `json:"rank,omitempty"`
	Entity     string           `json:"entity"`
	Target     *decimal.Decimal `json:"target"`
	Rice       decimal.Decimal  `json:"rice"`
	GKG        decimal.Decimal  `json:"gkg"`
	GKP        decimal.Decimal  `json:"gkp"`
	Equivalent decimal.Decimal  `json:"equivalent"`
	Attainment *decimal.Decimal `json:"attainment"`
}

// HasData reports whether the row has realized volume or a target.
func (r AggregateRow) HasData() bool {
	return !r.Equivalent.IsZero() || r.Target != nil
}

// TargetResolver builds the target lookup used for one aggregation.
type TargetResolver func(targets map[string]decimal.Decimal) func(entity string) (decimal.Decimal, bool)

// ExactTarget resolves by exact key.
func ExactTarget(targets map[string]decimal.Decimal) func(string) (decimal.Decimal, bool) {
	return func(entity string) (decimal.Decimal, bool) {
		v, ok := targets[entity]
		return v, ok
	}
}

// NormalizedTarget tries the exact key first, then a trimmed upper-case comparison.
// When several target names normalize alike, the first in sorted order wins.
func NormalizedTarget(targets map[string]decimal.Decimal) func(string) (decimal.Decimal, bool) {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	index := make(map[string]decimal.Decimal, len(names))
	for _, name := range names {
		key := normalizeName(name)
		if _, dup := index[key]; !dup {
			index[key] = targets[name]
		}
	}
	return func(entity string) (decimal.Decimal, bool) {
		if v, ok := targets[entity]; ok {
			return v, true
		}
		v, ok := index[normalizeName(entity)]
		return v, ok
	}
}

type aggregateConfig struct {
	entities        []string
	includeObserved bool
	matcher         RiceMatcher
	resolve         TargetResolver
}

// AggregateOption customises Aggregate.
type AggregateOption func(*aggregateConfig)

// WithEntities fixes the entity list (and its order) instead of using observed keys.
func WithEntities(entities []string) AggregateOption {
	return func(c *aggregateConfig) { c.entities = entities }
}

// IncludeObserved appends observed keys missing from the fixed list.
func IncludeObserved() AggregateOption {
	return func(c *aggregateConfig) { c.includeObserved = true }
}

// WithMatcher selects the rice bucket variant.
func WithMatcher(m RiceMatcher) AggregateOption {
	return func(c *aggregateConfig) { c.matcher = m }
}

// WithTargetResolver overrides the target lookup.
func WithTargetResolver(fn TargetResolver) AggregateOption {
	return func(c *aggregateConfig) {
		if fn != nil {
			c.resolve = fn
		}
	}
}

// Aggregate groups rows by key and computes one AggregateRow per entity. Rows are not
// sorted and never dropped; entities without records come back all zero.
func Aggregate(rows []TransactionRecord, groupBy EntityKeyFn, targets map[string]decimal.Decimal, opts ...AggregateOption) []AggregateRow {
	cfg := aggregateConfig{matcher: ExactRice, resolve: ExactTarget}
	for _, opt := range opts {
		opt(&cfg)
	}

	grouped := make(map[string][]TransactionRecord)
	var observed []string
	for _, r := range rows {
		key := groupBy(r)
		if _, ok := grouped[key]; !ok {
			observed = append(observed, key)
		}
		grouped[key] = append(grouped[key], r)
	}

	entities := observed
	if cfg.entities != nil {
		entities = append([]string(nil), cfg.entities...)
		if cfg.includeObserved {
			seen := make(map[string]struct{}, len(entities))
			for _, e := range entities {
				seen[e] = struct{}{}
			}
			for _, key := range observed {
				if _, ok := seen[key]; !ok {
					entities = append(entities, key)
				}
			}
		}
	}

	lookup := cfg.resolve(targets)
	out := make([]AggregateRow, 0, len(entities))
	for _, entity := range entities {
		parts := Breakdown(grouped[entity], cfg.matcher)
		row := AggregateRow{
			Entity:     entity,
			Rice:       parts.Rice,
			GKG:        parts.GKG,
			GKP:        parts.GKP,
			Equivalent: parts.Equivalent,
		}
		if target, ok := lookup(entity); ok {
			row.Target = DecimalPtr(target)
		}
		row.Attainment = Attainment(row.Equivalent, row.Target)
		out = append(out, row)
	}
	return out
}

// Attainment returns realized/target*100, or nil when the target is absent or not
// positive.
func Attainment(realized decimal.Decimal, target *decimal.Decimal) *decimal.Decimal {
	if target == nil || !target.IsPositive() {
		return nil
	}
	return DecimalPtr(realized.Div(*target).Mul(hundred))
}

func normalizeName(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
