package procurement

import (
	"fmt"
	"strconv"
	"strings"
)

// Filter scopes dashboard queries.
type Filter struct {
	AkunAnalitik []string `json:"akun_analitik,omitempty"`
	Kanwil       []string `json:"kanwil,omitempty"`
	Start        Date     `json:"start"`
	End          Date     `json:"end"`
}

// Validate rejects inverted ranges.
func (f Filter) Validate() error {
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidFilter, f.End, f.Start)
	}
	return nil
}

// Key renders a stable cache token for the filter.
func (f Filter) Key() string {
	return strings.Join([]string{
		joinToken(f.AkunAnalitik),
		joinToken(f.Kanwil),
		dateToken(f.Start),
		dateToken(f.End),
	}, ":")
}

// Match reports whether the record falls inside the filter.
func (f Filter) Match(r TransactionRecord) bool {
	if !f.Start.IsZero() || !f.End.IsZero() {
		if r.TanggalPenerimaan == nil || !r.TanggalPenerimaan.Within(f.Start, f.End) {
			return false
		}
	}
	if len(f.AkunAnalitik) > 0 {
		if r.AkunAnalitik == nil || !containsFold(f.AkunAnalitik, *r.AkunAnalitik) {
			return false
		}
	}
	if len(f.Kanwil) > 0 && !MatchesAnyRegion(f.Kanwil, r.Kanwil) {
		return false
	}
	return true
}

// Apply returns the records matching f.
func (f Filter) Apply(rows []TransactionRecord) []TransactionRecord {
	out := make([]TransactionRecord, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// MatchesAnyRegion reports whether a stored kanwil name belongs to one of the selected
// kanwil labels, matching registered regions by code and others by name.
func MatchesAnyRegion(selected []string, stored string) bool {
	for _, want := range selected {
		if region, ok := FindRegion(want); ok {
			if region.Matches(stored) {
				return true
			}
			continue
		}
		if normalizeName(want) == normalizeName(stored) {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

func joinToken(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Quote(normalizeName(v))
	}
	return strings.Join(parts, ",")
}

func dateToken(d Date) string {
	if d.IsZero() {
		return "-"
	}
	return d.String()
}
