// Package reconcile merges uploaded spreadsheets into the persistent record store
// without duplicating rows that are already there.
package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/bulog/serapan/internal/fingerprint"
	"github.com/bulog/serapan/internal/procurement"
	"github.com/bulog/serapan/internal/sheet"
)

// Table names a persistent table that accepts uploads.
type Table string

const (
	TableRealisasi    Table = "realisasi"
	TableTargetKanwil Table = "target_kanwil"
	TableTargetKancab Table = "target_kancab"
)

// Tables lists every reconcilable table.
var Tables = []Table{TableRealisasi, TableTargetKanwil, TableTargetKancab}

// ParseTable validates a table name.
func ParseTable(s string) (Table, error) {
	t := Table(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tables {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: table %q", ErrInvalidOptions, s)
}

// CompareTable is the staging table paired with t.
func (t Table) CompareTable() string { return string(t) + "_compare" }

// Kind maps the table to its spreadsheet layout.
func (t Table) Kind() sheet.Kind { return sheet.Kind(t) }

// Mode selects how uploads are merged.
type Mode string

const (
	// ModeAppend inserts only rows not already persisted.
	ModeAppend Mode = "append"
	// ModeReplace discards the table and loads the upload in full.
	ModeReplace Mode = "replace"
)

// Strategy selects how duplicates are detected in append mode.
type Strategy string

const (
	// StrategyLocal diffs full fingerprints in process.
	StrategyLocal Strategy = "local"
	// StrategyKeyFields diffs the narrower identity of a receiving event in process.
	StrategyKeyFields Strategy = "keyfields"
	// StrategyRemote stages the upload and lets the database page through the
	// difference.
	StrategyRemote Strategy = "remote"
)

// Options configure one reconciliation run.
type Options struct {
	Mode           Mode     `json:"mode" validate:"omitempty,oneof=append replace"`
	Strategy       Strategy `json:"strategy" validate:"omitempty,oneof=local keyfields remote"`
	ConfirmReplace bool     `json:"confirm_replace"`

	// RegisterOffices creates offices named in a realisasi upload before resolving
	// ids, when the store supports it.
	RegisterOffices bool `json:"register_offices"`
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeAppend
	}
	if o.Strategy == "" {
		o.Strategy = StrategyLocal
	}
	return o
}

// Upload is a parsed worksheet destined for table.
type Upload struct {
	Table Table
	Sheet *sheet.Table
	// AsOf dates target rows; zero means the day the run starts.
	AsOf procurement.Date
}

// Row is one persisted or staged record. Exactly one payload is set, matching the
// table it belongs to.
type Row struct {
	ID           int64
	Transaction  *procurement.TransactionRecord
	RegionTarget *procurement.RegionTarget
	BranchTarget *procurement.BranchTarget
}

// Hash returns the stored fingerprint of the payload.
func (r Row) Hash() string {
	switch {
	case r.Transaction != nil:
		return r.Transaction.RowHash
	case r.RegionTarget != nil:
		return r.RegionTarget.RowHash
	case r.BranchTarget != nil:
		return r.BranchTarget.RowHash
	}
	return ""
}

// identity returns the duplicate-detection key for the strategy.
func (r Row) identity(s Strategy) string {
	if s == StrategyKeyFields && r.Transaction != nil {
		return fingerprint.KeyFields(*r.Transaction)
	}
	if h := r.Hash(); h != "" {
		return h
	}
	switch {
	case r.Transaction != nil:
		return fingerprint.Record(*r.Transaction)
	case r.RegionTarget != nil:
		return fingerprint.RegionTarget(*r.RegionTarget)
	case r.BranchTarget != nil:
		return fingerprint.BranchTarget(*r.BranchTarget)
	}
	return ""
}

// Range selects persisted rows by keyset: ids greater than AfterID, at most Limit.
type Range struct {
	AfterID int64
	Limit   int
}

// Kanwil is a regional office entity.
type Kanwil struct {
	ID   int64
	Name string
}

// Kancab is a branch office entity.
type Kancab struct {
	ID       int64
	KanwilID int64
	Name     string
}

// Report summarises a run.
type Report struct {
	Uploaded       int              `json:"uploaded"`
	Unique         int              `json:"unique"`
	Inserted       int              `json:"inserted"`
	Duplicates     int              `json:"duplicates"`
	SkippedKanwil  int              `json:"skipped_kanwil"`
	SkippedKancab  int              `json:"skipped_kancab"`
	SkippedTargets int              `json:"skipped_targets"`
	FailedBatches  int              `json:"failed_batches"`
	FailedRows     int              `json:"failed_rows"`
	RowErrors      []sheet.RowError `json:"row_errors,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
	Elapsed        time.Duration    `json:"elapsed"`
}

// Partial reports whether some batches failed to insert.
func (r Report) Partial() bool { return r.FailedBatches > 0 }

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
