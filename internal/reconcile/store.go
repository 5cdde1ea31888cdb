package reconcile

import "context"

// Store is the record store reconciliation reads from and writes to. Table arguments
// are storage table names, so the same calls address both a main table and its
// compare table.
type Store interface {
	Count(ctx context.Context, table string) (int64, error)
	MinID(ctx context.Context, table string) (int64, error)
	SelectRecords(ctx context.Context, table string, r Range) ([]Row, error)
	SelectByIDs(ctx context.Context, table string, ids []int64) ([]Row, error)
	Insert(ctx context.Context, table string, rows []Row) error
	DeleteAll(ctx context.Context, table string) error
	// TruncateReset empties the table and restarts its id sequence.
	TruncateReset(ctx context.Context, table string) error
	// NotExistsPage returns up to limit compare-table ids above lastID whose rows
	// have no counterpart in table.
	NotExistsPage(ctx context.Context, table Table, lastID int64, limit int) ([]int64, error)
	ListKanwil(ctx context.Context) ([]Kanwil, error)
	ListKancab(ctx context.Context) ([]Kancab, error)
}

// Office names a regional office and optionally one of its branches.
type Office struct {
	Kanwil string
	Kancab string
}

// OfficeRegistrar is implemented by stores that can create offices first seen in an
// upload.
type OfficeRegistrar interface {
	RegisterOffices(ctx context.Context, offices []Office) error
}

// Recorder receives reconciliation counters. *jobmetrics.Metrics satisfies it.
type Recorder interface {
	AddReconcileRows(table, outcome string, n int)
	IncReconcileRetry(table string)
}

type nopRecorder struct{}

func (nopRecorder) AddReconcileRows(string, string, int) {}
func (nopRecorder) IncReconcileRetry(string)             {}
