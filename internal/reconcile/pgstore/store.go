// Package pgstore is the PostgreSQL implementation of the reconciliation store and the
// dashboard repository.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bulog/serapan/internal/reconcile"
)

//go:embed schema.sql
var schemaSQL string

// ErrUnknownTable is returned for table names outside the reconcilable set.
var ErrUnknownTable = errors.New("pgstore: unknown table")

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Store implements reconcile.Store on PostgreSQL.
type Store struct {
	db Querier
}

// New constructs a Store.
func New(db Querier) *Store {
	return &Store{db: db}
}

var _ reconcile.Store = (*Store)(nil)

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// EnsureSchema creates tables and comparison functions when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return nil
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	if _, err := layoutOf(table); err != nil {
		return 0, err
	}
	query, args, err := builder().Select("count(*)").From(table).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgstore: count %s: %w", table, err)
	}
	return n, nil
}

// MinID returns the smallest id in table, or zero when it is empty.
func (s *Store) MinID(ctx context.Context, table string) (int64, error) {
	if _, err := layoutOf(table); err != nil {
		return 0, err
	}
	query, args, err := builder().Select("COALESCE(min(id), 0)").From(table).ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("pgstore: min id %s: %w", table, err)
	}
	return id, nil
}

// SelectRecords pages through table by id.
func (s *Store) SelectRecords(ctx context.Context, table string, r reconcile.Range) ([]reconcile.Row, error) {
	l, err := layoutOf(table)
	if err != nil {
		return nil, err
	}
	q := builder().Select(l.selectColumns()...).From(table).
		Where(squirrel.Gt{"id": r.AfterID}).
		OrderBy("id")
	if r.Limit > 0 {
		q = q.Limit(uint64(r.Limit))
	}
	return s.selectRows(ctx, l, q)
}

// SelectByIDs loads the rows with the given ids.
func (s *Store) SelectByIDs(ctx context.Context, table string, ids []int64) ([]reconcile.Row, error) {
	l, err := layoutOf(table)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	q := builder().Select(l.selectColumns()...).From(table).
		Where(squirrel.Eq{"id": ids}).
		OrderBy("id")
	return s.selectRows(ctx, l, q)
}

func (s *Store) selectRows(ctx context.Context, l layout, q squirrel.SelectBuilder) ([]reconcile.Row, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: select %s: %w", l.table, err)
	}
	defer rows.Close()

	var out []reconcile.Row
	for rows.Next() {
		row, err := l.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan %s: %w", l.table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate %s: %w", l.table, err)
	}
	return out, nil
}

// Insert bulk-loads rows with COPY; ids are assigned by the table sequence.
func (s *Store) Insert(ctx context.Context, table string, rows []reconcile.Row) error {
	l, err := layoutOf(table)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return l.values(rows[i])
	})
	if _, err := s.db.CopyFrom(ctx, pgx.Identifier{table}, l.columns, src); err != nil {
		return fmt.Errorf("pgstore: copy into %s: %w", table, describe(err))
	}
	return nil
}

// DeleteAll removes every row without touching the id sequence.
func (s *Store) DeleteAll(ctx context.Context, table string) error {
	if _, err := layoutOf(table); err != nil {
		return err
	}
	query, args, err := builder().Delete(table).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("pgstore: delete %s: %w", table, describe(err))
	}
	return nil
}

// TruncateReset calls reset_table_sequence, which truncates and restarts identity.
func (s *Store) TruncateReset(ctx context.Context, table string) error {
	if _, err := layoutOf(table); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, "SELECT reset_table_sequence($1)", table); err != nil {
		return fmt.Errorf("pgstore: reset %s: %w", table, describe(err))
	}
	return nil
}

// NotExistsPage calls get_<table>_compare_not_exists_page.
func (s *Store) NotExistsPage(ctx context.Context, table reconcile.Table, lastID int64, limit int) ([]int64, error) {
	if _, err := reconcile.ParseTable(string(table)); err != nil {
		return nil, ErrUnknownTable
	}
	query := fmt.Sprintf("SELECT * FROM get_%s_compare_not_exists_page($1, $2)", table)
	rows, err := s.db.Query(ctx, query, lastID, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: compare page %s: %w", table, describe(err))
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("pgstore: compare page %s: %w", table, describe(err))
	}
	return ids, nil
}

// ListKanwil returns every regional office.
func (s *Store) ListKanwil(ctx context.Context) ([]reconcile.Kanwil, error) {
	query, args, err := builder().Select("kanwil_id", "nama_kanwil").From("kanwil").OrderBy("kanwil_id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list kanwil: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (reconcile.Kanwil, error) {
		var k reconcile.Kanwil
		err := row.Scan(&k.ID, &k.Name)
		return k, err
	})
}

// ListKancab returns every branch office.
func (s *Store) ListKancab(ctx context.Context) ([]reconcile.Kancab, error) {
	query, args, err := builder().Select("kancab_id", "kanwil_id", "nama_kancab").From("kancab").OrderBy("kancab_id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list kancab: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (reconcile.Kancab, error) {
		var k reconcile.Kancab
		err := row.Scan(&k.ID, &k.KanwilID, &k.Name)
		return k, err
	})
}

// RegisterOffices inserts offices named in an upload that are not known yet.
func (s *Store) RegisterOffices(ctx context.Context, offices []reconcile.Office) error {
	for _, o := range offices {
		query, args, err := builder().Insert("kanwil").Columns("nama_kanwil").Values(o.Kanwil).
			Suffix("ON CONFLICT (nama_kanwil) DO NOTHING").ToSql()
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("pgstore: register kanwil %q: %w", o.Kanwil, describe(err))
		}
		if o.Kancab == "" {
			continue
		}
		parent := squirrel.Select("kanwil_id").Column(squirrel.Expr("?::text", o.Kancab)).From("kanwil").
			Where(squirrel.Eq{"nama_kanwil": o.Kanwil})
		query, args, err = builder().Insert("kancab").Columns("kanwil_id", "nama_kancab").
			Select(parent).
			Suffix("ON CONFLICT (kanwil_id, nama_kancab) DO NOTHING").ToSql()
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("pgstore: register kancab %q: %w", o.Kancab, describe(err))
		}
	}
	return nil
}

// describe surfaces the server-side detail of Postgres errors.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (%s): %w", pgErr.Message, pgErr.Code, err)
	}
	return err
}
