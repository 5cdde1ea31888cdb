package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrInjected is the default error returned by MemoryStore failure hooks.
var ErrInjected = errors.New("reconcile: injected failure")

// MemoryStore is an in-process Store with per-table id sequences. It backs dry runs
// and tests.
type MemoryStore struct {
	mu      sync.Mutex
	tables  map[string][]Row
	seq     map[string]int64
	kanwils []Kanwil
	kancabs []Kancab

	// FailInsert, when set, is consulted before every insert.
	FailInsert func(table string, rows []Row) error
	// FailPage, when set, is consulted before every comparison page.
	FailPage func(lastID int64) error
	// FailTruncate, when set, is consulted before every truncate.
	FailTruncate func(table string) error
	// Calls counts store calls by method name.
	Calls map[string]int
}

// NewMemoryStore constructs a store that knows the given offices.
func NewMemoryStore(kanwils []Kanwil, kancabs []Kancab) *MemoryStore {
	return &MemoryStore{
		tables:  make(map[string][]Row),
		seq:     make(map[string]int64),
		kanwils: append([]Kanwil(nil), kanwils...),
		kancabs: append([]Kancab(nil), kancabs...),
		Calls:   make(map[string]int),
	}
}

// Rows returns a copy of a table's rows in id order.
func (s *MemoryStore) Rows(table string) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.tables[table]...)
}

// TotalCalls is the number of store calls made so far.
func (s *MemoryStore) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.Calls {
		n += c
	}
	return n
}

func (s *MemoryStore) called(name string) {
	s.Calls[name]++
}

func (s *MemoryStore) Count(_ context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called("Count")
	return int64(len(s.tables[table])), nil
}

func (s *MemoryStore) MinID(_ context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called("MinID")
	rows := s.tables[table]
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].ID, nil
}

func (s *MemoryStore) SelectRecords(_ context.Context, table string, r Range) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called("SelectRecords")
	var out []Row
	for _, row := range s.tables[table] {
		if row.ID <= r.AfterID {
			continue
		}
		out = append(out, row)
		if r.Limit > 0 && len(out) == r.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) SelectByIDs(_ context.Context, table string, ids []int64) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called("SelectByIDs")
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []Row
	for _, row := range s.tables[table] {
		if _, ok := want[row.ID]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, table string, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called("Insert")
	if s.FailInsert != nil {
		if err := s.FailInsert(table, rows); err != nil {
			return err
		}
	}
	for _, row := range rows {
		s.seq[table]++
		row.ID = s.seq[table]
		s.tables[table] = append(s.tables[table], clonePayload(row))
	}
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called("DeleteAll")
	delete(s.tables, table)
	return nil
}

func (s *MemoryStore) TruncateReset(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called("TruncateReset")
	if s.FailTruncate != nil {
		if err := s.FailTruncate(table); err != nil {
			return err
		}
	}
	delete(s.tables, table)
	delete(s.seq, table)
	return nil
}

func (s *MemoryStore) NotExistsPage(_ context.Context, table Table, lastID int64, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called("NotExistsPage")
	if s.FailPage != nil {
		if err := s.FailPage(lastID); err != nil {
			return nil, err
		}
	}
	existing := make(map[string]struct{})
	for _, row := range s.tables[string(table)] {
		existing[row.identity(StrategyRemote)] = struct{}{}
	}
	var ids []int64
	for _, row := range s.tables[table.CompareTable()] {
		if row.ID <= lastID {
			continue
		}
		if _, ok := existing[row.identity(StrategyRemote)]; ok {
			continue
		}
		ids = append(ids, row.ID)
		if len(ids) == limit {
			break
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) ListKanwil(context.Context) ([]Kanwil, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called("ListKanwil")
	return append([]Kanwil(nil), s.kanwils...), nil
}

func (s *MemoryStore) ListKancab(context.Context) ([]Kancab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called("ListKancab")
	return append([]Kancab(nil), s.kancabs...), nil
}

// RegisterOffices adds offices whose names are not yet known.
func (s *MemoryStore) RegisterOffices(_ context.Context, offices []Office) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called("RegisterOffices")
	for _, o := range offices {
		kanwilID := int64(0)
		for _, k := range s.kanwils {
			if normalize(k.Name) == normalize(o.Kanwil) {
				kanwilID = k.ID
				break
			}
		}
		if kanwilID == 0 {
			kanwilID = int64(len(s.kanwils)) + 1000
			s.kanwils = append(s.kanwils, Kanwil{ID: kanwilID, Name: o.Kanwil})
		}
		if o.Kancab == "" {
			continue
		}
		known := false
		for _, k := range s.kancabs {
			if k.KanwilID == kanwilID && normalize(k.Name) == normalize(o.Kancab) {
				known = true
				break
			}
		}
		if !known {
			id := int64(len(s.kancabs)) + 1000
			s.kancabs = append(s.kancabs, Kancab{ID: id, KanwilID: kanwilID, Name: o.Kancab})
		}
	}
	return nil
}

// clonePayload detaches the stored row from the caller's pointers and stamps the id.
func clonePayload(row Row) Row {
	switch {
	case row.Transaction != nil:
		v := *row.Transaction
		v.ID = row.ID
		row.Transaction = &v
	case row.RegionTarget != nil:
		v := *row.RegionTarget
		row.RegionTarget = &v
	case row.BranchTarget != nil:
		v := *row.BranchTarget
		row.BranchTarget = &v
	}
	return row
}
