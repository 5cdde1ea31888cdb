package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/bulog/serapan/internal/procurement"
	"github.com/bulog/serapan/internal/sheet"
)

const (
	kanwilLampung = "16 - 08001 - KANTOR WILAYAH LAMPUNG"
	kanwilJatim   = "5 - 13001 - KANTOR WILAYAH JATIM"
)

type countingRecorder struct {
	rows    map[string]int
	retries int
}

func (r *countingRecorder) AddReconcileRows(_ string, outcome string, n int) {
	if r.rows == nil {
		r.rows = make(map[string]int)
	}
	r.rows[outcome] += n
}

func (r *countingRecorder) IncReconcileRetry(string) { r.retries++ }

func newStore() *MemoryStore {
	return NewMemoryStore(
		[]Kanwil{{ID: 16, Name: kanwilLampung}, {ID: 5, Name: kanwilJatim}},
		[]Kancab{{ID: 160, KanwilID: 16, Name: "Kancab Metro"}, {ID: 50, KanwilID: 5, Name: "Kancab Surabaya"}},
	)
}

func newEngine(store Store, cfg Config, rec Recorder) *Engine {
	cfg.BackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return NewEngine(store, nil, cfg, WithRecorder(rec))
}

type txRow struct {
	kanwil, kancab, po, inout, qty, status string
}

func realisasiUpload(rows ...txRow) Upload {
	header := sheet.RequiredColumns(sheet.KindRealisasi)
	raw := [][]string{header}
	for _, r := range rows {
		values := map[string]string{
			sheet.ColKanwil:            r.kanwil,
			sheet.ColEntitas:           r.kancab,
			sheet.ColNomorPO:           r.po,
			sheet.ColNoInOut:           r.inout,
			sheet.ColTanggalPenerimaan: "2025-03-10",
			sheet.ColKomoditi:          "BERAS MEDIUM",
			sheet.ColInOut:             r.qty,
			sheet.ColStatus:            r.status,
		}
		line := make([]string, len(header))
		for i, col := range header {
			line[i] = values[col]
		}
		raw = append(raw, line)
	}
	return Upload{Table: TableRealisasi, Sheet: sheet.NewTable("Export", raw)}
}

func sampleUpload() Upload {
	return realisasiUpload(
		txRow{kanwilLampung, "Kancab Metro", "PO-1", "IN-1", "1000", "done"},
		txRow{kanwilLampung, "Kancab Metro", "PO-2", "IN-2", "2000", "done"},
		txRow{kanwilJatim, "Kancab Surabaya", "PO-3", "IN-3", "3000", "done"},
		txRow{kanwilLampung, "Kancab Metro", "PO-1", "IN-1", "1000", "done"},
	)
}

func TestAppendLocalIsIdempotent(t *testing.T) {
	store := newStore()
	rec := &countingRecorder{}
	engine := newEngine(store, Config{}, rec)
	ctx := context.Background()

	session, err := engine.Run(ctx, sampleUpload(), Options{})
	require.NoError(t, err)
	require.Equal(t, StateDone, session.State)
	require.Equal(t, 4, session.Report.Uploaded)
	require.Equal(t, 3, session.Report.Unique)
	require.Equal(t, 3, session.Report.Inserted)
	require.Equal(t, 1, session.Report.Duplicates)
	require.Len(t, store.Rows("realisasi"), 3)

	var states []State
	for _, tr := range session.History {
		states = append(states, tr.To)
	}
	require.Equal(t, []State{StateStaged, StateComparing, StateMerging, StateCleanup, StateDone}, states)

	again, err := engine.Run(ctx, sampleUpload(), Options{Strategy: StrategyLocal})
	require.NoError(t, err)
	require.Equal(t, 0, again.Report.Inserted)
	require.Equal(t, 4, again.Report.Duplicates)
	require.Len(t, store.Rows("realisasi"), 3)
	require.Equal(t, 3, rec.rows["inserted"])
}

func TestAppendRemoteMigratesMissingRows(t *testing.T) {
	store := newStore()
	engine := newEngine(store, Config{BatchSize: 2}, nil)
	ctx := context.Background()

	_, err := engine.Run(ctx, realisasiUpload(txRow{kanwilLampung, "Kancab Metro", "PO-1", "IN-1", "1000", "done"}), Options{})
	require.NoError(t, err)

	session, err := engine.Run(ctx, sampleUpload(), Options{Strategy: StrategyRemote})
	require.NoError(t, err)
	require.Equal(t, StateDone, session.State)
	require.Equal(t, 2, session.Report.Inserted)
	require.Equal(t, 2, session.Report.Duplicates)
	require.Len(t, store.Rows("realisasi"), 3)
	require.Empty(t, store.Rows("realisasi_compare"))
	for _, row := range store.Rows("realisasi") {
		require.NotEmpty(t, row.Transaction.RowHash)
	}

	again, err := engine.Run(ctx, sampleUpload(), Options{Strategy: StrategyRemote})
	require.NoError(t, err)
	require.Equal(t, 0, again.Report.Inserted)
	require.Len(t, store.Rows("realisasi"), 3)
}

func TestRemotePagesWithSmallLimit(t *testing.T) {
	store := newStore()
	engine := newEngine(store, Config{PageSize: 1}, nil)
	session, err := engine.Run(context.Background(), sampleUpload(), Options{Strategy: StrategyRemote})
	require.NoError(t, err)
	require.Equal(t, 3, session.Report.Inserted)
	require.GreaterOrEqual(t, store.Calls["NotExistsPage"], 4)
}

func TestReplaceRequiresConfirmation(t *testing.T) {
	store := newStore()
	engine := newEngine(store, Config{}, nil)

	session, err := engine.Run(context.Background(), sampleUpload(), Options{Mode: ModeReplace})
	require.ErrorIs(t, err, ErrReplaceNotConfirmed)
	require.Equal(t, StateFailed, session.State)
	require.Zero(t, store.TotalCalls())
}

func TestReplaceReloadsTable(t *testing.T) {
	store := newStore()
	engine := newEngine(store, Config{}, nil)
	ctx := context.Background()

	_, err := engine.Run(ctx, realisasiUpload(txRow{kanwilJatim, "", "PO-9", "IN-9", "10", "old"}), Options{})
	require.NoError(t, err)

	store.FailTruncate = func(table string) error {
		if table == "realisasi" {
			return ErrInjected
		}
		return nil
	}
	session, err := engine.Run(ctx, sampleUpload(), Options{Mode: ModeReplace, ConfirmReplace: true})
	require.NoError(t, err)
	require.Equal(t, 4, session.Report.Inserted)
	require.Zero(t, session.Report.Duplicates)
	require.Len(t, session.Report.Warnings, 1)
	require.Equal(t, 1, store.Calls["DeleteAll"])

	rows := store.Rows("realisasi")
	require.Len(t, rows, 4)
	for _, row := range rows {
		require.NotEqual(t, "PO-9", *row.Transaction.NomorPO)
	}
}

func TestRemoteRetryExhaustionFails(t *testing.T) {
	store := newStore()
	store.FailPage = func(int64) error { return errors.New("statement timeout") }
	rec := &countingRecorder{}
	engine := newEngine(store, Config{MaxRetries: 3}, rec)

	session, err := engine.Run(context.Background(), sampleUpload(), Options{Strategy: StrategyRemote})
	require.ErrorIs(t, err, ErrCompareExhausted)
	require.Equal(t, StateFailed, session.State)
	require.Equal(t, StateComparing, session.History[len(session.History)-1].From)
	require.Equal(t, 4, store.Calls["NotExistsPage"])
	require.Equal(t, 3, rec.retries)
	require.Empty(t, store.Rows("realisasi"))
	require.Empty(t, store.Rows("realisasi_compare"))
}

func TestRemoteRetryRecovers(t *testing.T) {
	store := newStore()
	failures := 2
	store.FailPage = func(int64) error {
		if failures > 0 {
			failures--
			return errors.New("timeout")
		}
		return nil
	}
	engine := newEngine(store, Config{MaxRetries: 3}, nil)

	session, err := engine.Run(context.Background(), sampleUpload(), Options{Strategy: StrategyRemote})
	require.NoError(t, err)
	require.Equal(t, 3, session.Report.Inserted)
}

func TestFailedBatchIsSkipped(t *testing.T) {
	store := newStore()
	calls := 0
	store.FailInsert = func(table string, rows []Row) error {
		if table != "realisasi" {
			return nil
		}
		calls++
		if calls == 2 {
			return ErrInjected
		}
		return nil
	}
	upload := realisasiUpload(
		txRow{kanwilLampung, "", "PO-1", "IN-1", "1", "a"},
		txRow{kanwilLampung, "", "PO-2", "IN-2", "1", "a"},
		txRow{kanwilLampung, "", "PO-3", "IN-3", "1", "a"},
		txRow{kanwilLampung, "", "PO-4", "IN-4", "1", "a"},
		txRow{kanwilLampung, "", "PO-5", "IN-5", "1", "a"},
	)
	engine := newEngine(store, Config{BatchSize: 2}, nil)

	session, err := engine.Run(context.Background(), upload, Options{})
	require.NoError(t, err)
	require.Equal(t, StateDone, session.State)
	require.True(t, session.Report.Partial())
	require.Equal(t, 1, session.Report.FailedBatches)
	require.Equal(t, 2, session.Report.FailedRows)
	require.Equal(t, 3, session.Report.Inserted)
}

func TestStagingCountsUnresolvedOffices(t *testing.T) {
	store := newStore()
	engine := newEngine(store, Config{}, nil)
	upload := realisasiUpload(
		txRow{"99 - 99001 - KANTOR WILAYAH ENTAH", "Kancab X", "PO-1", "IN-1", "1", "a"},
		txRow{kanwilLampung, "Kancab Hilang", "PO-2", "IN-2", "1", "a"},
		txRow{kanwilLampung, "", "PO-3", "IN-3", "1", "a"},
		txRow{" " + kanwilJatim + " ", "kancab surabaya", "PO-4", "IN-4", "1", "a"},
	)

	session, err := engine.Run(context.Background(), upload, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, session.Report.SkippedKanwil)
	require.Equal(t, 2, session.Report.SkippedKancab)
	require.Equal(t, 4, session.Report.Inserted)

	rows := store.Rows("realisasi")
	require.Nil(t, rows[0].Transaction.KanwilID)
	require.Nil(t, rows[1].Transaction.KancabID)
	require.Equal(t, int64(16), *rows[1].Transaction.KanwilID)
	require.Equal(t, int64(50), *rows[3].Transaction.KancabID)
}

func TestRegisterOfficesResolvesNewNames(t *testing.T) {
	store := newStore()
	engine := newEngine(store, Config{}, nil)
	upload := realisasiUpload(
		txRow{"99 - 99001 - KANTOR WILAYAH BARU", "Kancab Baru", "PO-1", "IN-1", "1", "a"},
		txRow{kanwilLampung, "Kancab Metro", "PO-2", "IN-2", "1", "a"},
	)

	session, err := engine.Run(context.Background(), upload, Options{RegisterOffices: true})
	require.NoError(t, err)
	require.Zero(t, session.Report.SkippedKanwil)
	require.Zero(t, session.Report.SkippedKancab)
	require.Equal(t, 1, store.Calls["RegisterOffices"])

	rows := store.Rows("realisasi")
	require.NotNil(t, rows[0].Transaction.KanwilID)
	require.NotNil(t, rows[0].Transaction.KancabID)
	require.Equal(t, int64(160), *rows[1].Transaction.KancabID)

	kanwils, err := store.ListKanwil(context.Background())
	require.NoError(t, err)
	require.Len(t, kanwils, 3)
}

func TestKeyFieldsStrategyIgnoresNonKeyColumns(t *testing.T) {
	ctx := context.Background()
	first := realisasiUpload(txRow{kanwilLampung, "Kancab Metro", "PO-1", "IN-1", "1000", "draft"})
	second := realisasiUpload(txRow{kanwilLampung, "Kancab Metro", "po-1 ", "IN-1", "1000", "posted"})

	store := newStore()
	engine := newEngine(store, Config{}, nil)
	_, err := engine.Run(ctx, first, Options{})
	require.NoError(t, err)
	session, err := engine.Run(ctx, second, Options{Strategy: StrategyKeyFields})
	require.NoError(t, err)
	require.Equal(t, 0, session.Report.Inserted)
	require.Equal(t, 1, session.Report.Duplicates)

	session, err = engine.Run(ctx, second, Options{Strategy: StrategyLocal})
	require.NoError(t, err)
	require.Equal(t, 1, session.Report.Inserted)
}

func TestRegionTargetsSkipUnresolvedAndIgnoreDate(t *testing.T) {
	store := newStore()
	engine := newEngine(store, Config{}, nil)
	ctx := context.Background()
	raw := [][]string{
		{"kanwil", "Target Setara Beras"},
		{kanwilLampung, "1200"},
		{"KANWIL TIDAK ADA", "50"},
	}
	upload := Upload{Table: TableTargetKanwil, Sheet: sheet.NewTable("Target Kanwil", raw), AsOf: procurement.MustDate("2025-01-01")}

	session, err := engine.Run(ctx, upload, Options{})
	require.NoError(t, err)
	require.Equal(t, 2, session.Report.Uploaded)
	require.Equal(t, 1, session.Report.SkippedTargets)
	require.Equal(t, 1, session.Report.Inserted)

	upload.AsOf = procurement.MustDate("2025-02-01")
	session, err = engine.Run(ctx, upload, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, session.Report.Inserted)
	require.Equal(t, 1, session.Report.Duplicates)

	rows := store.Rows("target_kanwil")
	require.Len(t, rows, 1)
	require.Equal(t, int64(16), *rows[0].RegionTarget.KanwilID)
}

func TestBranchTargetsResolveByName(t *testing.T) {
	store := newStore()
	engine := newEngine(store, Config{}, nil)
	raw := [][]string{
		{"kancab", "Target Setara Beras"},
		{"KANCAB SURABAYA", "300"},
	}
	upload := Upload{Table: TableTargetKancab, Sheet: sheet.NewTable("Target Kancab", raw)}
	session, err := engine.Run(context.Background(), upload, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, session.Report.Inserted)
	row := store.Rows("target_kancab")[0].BranchTarget
	require.Equal(t, int64(50), *row.KancabID)
	require.Equal(t, int64(5), *row.KanwilID)
	require.False(t, row.Date.IsZero())
}

func TestMissingColumnsFailValidation(t *testing.T) {
	store := newStore()
	engine := newEngine(store, Config{}, nil)
	upload := Upload{Table: TableRealisasi, Sheet: sheet.NewTable("Export", [][]string{{"kanwil", "Entitas"}})}

	session, err := engine.Run(context.Background(), upload, Options{})
	var missing *sheet.MissingColumnsError
	require.True(t, errors.As(err, &missing))
	require.Len(t, missing.Columns, 23)
	require.Equal(t, StateFailed, session.State)
	require.Zero(t, store.Calls["Insert"])
}

func TestInvalidOptionsRejected(t *testing.T) {
	engine := newEngine(newStore(), Config{}, nil)
	_, err := engine.Run(context.Background(), sampleUpload(), Options{Strategy: "fuzzy"})
	require.ErrorIs(t, err, ErrInvalidOptions)

	_, err = ParseTable("kanwil")
	require.ErrorIs(t, err, ErrInvalidOptions)
	table, err := ParseTable(" Target_Kancab ")
	require.NoError(t, err)
	require.Equal(t, TableTargetKancab, table)
}

func TestLockRejectsConcurrentSessions(t *testing.T) {
	lock := NewLock()
	release, err := lock.TryAcquire(TableRealisasi)
	require.NoError(t, err)

	_, err = lock.TryAcquire(TableRealisasi)
	require.ErrorIs(t, err, ErrSessionActive)

	other, err := lock.TryAcquire(TableTargetKanwil)
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := lock.TryAcquire(TableRealisasi)
	require.NoError(t, err)
	again()
}

func TestEngineLockRejectsSecondRun(t *testing.T) {
	lock := NewLock()
	store := newStore()
	engine := NewEngine(store, nil, Config{}, WithLock(lock))

	release, err := lock.TryAcquire(TableRealisasi)
	require.NoError(t, err)
	session, err := engine.Run(context.Background(), sampleUpload(), Options{})
	require.ErrorIs(t, err, ErrSessionActive)
	require.Equal(t, StateFailed, session.State)
	require.Zero(t, store.TotalCalls())

	release()
	session, err = engine.Run(context.Background(), sampleUpload(), Options{})
	require.NoError(t, err)
	require.Equal(t, StateDone, session.State)
}

func TestDefaultRetryScheduleDoubles(t *testing.T) {
	b := DefaultConfig().retryPolicy(context.Background())
	b.Reset()
	require.Equal(t, 2*time.Second, b.NextBackOff())
	require.Equal(t, 4*time.Second, b.NextBackOff())
	require.Equal(t, 8*time.Second, b.NextBackOff())
	require.Equal(t, backoff.Stop, b.NextBackOff())
}
