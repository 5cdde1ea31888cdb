package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bulog/serapan/internal/procurement"
)

func qualified(alias string, columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = alias + "." + c
	}
	return out
}

func transactionsQuery(f procurement.Filter) squirrel.SelectBuilder {
	cols := append([]string{"r.id"}, qualified("r", realisasiColumns)...)
	cols = append(cols, "COALESCE(kw.nama_kanwil, '')", "COALESCE(kc.nama_kancab, '')")
	q := builder().Select(cols...).
		From("realisasi r").
		LeftJoin("kanwil kw ON kw.kanwil_id = r.kanwil_id").
		LeftJoin("kancab kc ON kc.kancab_id = r.kancab_id")
	if !f.Start.IsZero() {
		q = q.Where(squirrel.GtOrEq{"r.tanggal_penerimaan": toDate(&f.Start)})
	}
	if !f.End.IsZero() {
		q = q.Where(squirrel.LtOrEq{"r.tanggal_penerimaan": toDate(&f.End)})
	}
	if len(f.AkunAnalitik) > 0 {
		akun := make([]string, len(f.AkunAnalitik))
		for i, a := range f.AkunAnalitik {
			akun[i] = strings.ToUpper(strings.TrimSpace(a))
		}
		q = q.Where(squirrel.Eq{"upper(trim(r.akun_analitik))": akun})
	}
	return q.OrderBy("r.id")
}

// Transactions loads realisasi rows with office names inside the filter. The date and
// akun filters run in SQL; kanwil selection matches registry labels and runs in Go.
func (s *Store) Transactions(ctx context.Context, f procurement.Filter) ([]procurement.TransactionRecord, error) {
	query, args, err := transactionsQuery(f).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load realisasi: %w", describe(err))
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (procurement.TransactionRecord, error) {
		var kanwil, kancab string
		r, err := scanTransaction(row, []any{&kanwil, &kancab})
		r.Kanwil, r.Kancab = kanwil, kancab
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan realisasi: %w", err)
	}
	return f.Apply(records), nil
}

// RegionTargets loads every region target with its kanwil name, oldest first.
func (s *Store) RegionTargets(ctx context.Context) ([]procurement.RegionTarget, error) {
	query, args, err := builder().
		Select("t.kanwil_id", "t.target_setara_beras", "t.date", "t.row_hash", "COALESCE(k.nama_kanwil, '')").
		From("target_kanwil t").
		LeftJoin("kanwil k ON k.kanwil_id = t.kanwil_id").
		OrderBy("t.date", "t.id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load target_kanwil: %w", describe(err))
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (procurement.RegionTarget, error) {
		var (
			t      procurement.RegionTarget
			target pgtype.Numeric
			date   pgtype.Date
		)
		if err := row.Scan(&t.KanwilID, &target, &date, &t.RowHash, &t.Kanwil); err != nil {
			return t, err
		}
		t.Target = fromNumeric(target)
		t.Date = fromDate(date)
		return t, nil
	})
}

// BranchTargets loads every branch target with its kancab name and parent kanwil.
func (s *Store) BranchTargets(ctx context.Context) ([]procurement.BranchTarget, error) {
	query, args, err := builder().
		Select("t.kancab_id", "k.kanwil_id", "t.target_setara_beras", "t.date", "t.row_hash", "COALESCE(k.nama_kancab, '')").
		From("target_kancab t").
		LeftJoin("kancab k ON k.kancab_id = t.kancab_id").
		OrderBy("t.date", "t.id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load target_kancab: %w", describe(err))
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (procurement.BranchTarget, error) {
		var (
			t      procurement.BranchTarget
			target pgtype.Numeric
			date   pgtype.Date
		)
		if err := row.Scan(&t.KancabID, &t.KanwilID, &target, &date, &t.RowHash, &t.Kancab); err != nil {
			return t, err
		}
		t.Target = fromNumeric(target)
		t.Date = fromDate(date)
		return t, nil
	})
}
