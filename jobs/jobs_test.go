package jobs

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/bulog/serapan/internal/jobs"
	"github.com/bulog/serapan/internal/procurement"
	"github.com/bulog/serapan/internal/reconcile"
	"github.com/bulog/serapan/internal/sheet"
)

const kanwilLampung = "16 - 08001 - KANTOR WILAYAH LAMPUNG"

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func newStore() *reconcile.MemoryStore {
	return reconcile.NewMemoryStore(
		[]reconcile.Kanwil{{ID: 16, Name: kanwilLampung}},
		[]reconcile.Kancab{{ID: 160, KanwilID: 16, Name: "Kancab Metro"}},
	)
}

func writeRealisasi(t *testing.T, dir, name string, pos ...string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()

	header := sheet.RequiredColumns(sheet.KindRealisasi)
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(header))
	for _, po := range pos {
		values := map[string]string{
			sheet.ColKanwil:            kanwilLampung,
			sheet.ColEntitas:           "Kancab Metro",
			sheet.ColNomorPO:           po,
			sheet.ColNoInOut:           "IN-" + po,
			sheet.ColTanggalPenerimaan: "2025-03-10",
			sheet.ColKomoditi:          "BERAS MEDIUM",
			sheet.ColInOut:             "1000",
			sheet.ColStatus:            "done",
		}
		line := make([]string, len(header))
		for i, col := range header {
			line[i] = values[col]
		}
		require.NoError(t, w.Write(line))
	}
	w.Flush()
	require.NoError(t, w.Error())
}

func importTask(t *testing.T, payload ReconcileImportPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskReconcileImport, data)
}

func newImportJob(dir string, engine *reconcile.Engine, inv Invalidator) *ReconcileImportJob {
	return NewReconcileImportJob(engine, inv, dir, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestReconcileImportRunsEngine(t *testing.T) {
	dir := t.TempDir()
	writeRealisasi(t, dir, "maret.csv", "PO-1", "PO-2", "PO-2")
	store := newStore()
	inv := &countingInvalidator{}
	job := newImportJob(dir, reconcile.NewEngine(store, nil, reconcile.Config{}), inv)

	err := job.Handle(context.Background(), importTask(t, ReconcileImportPayload{Path: "maret.csv", Table: "realisasi"}))
	require.NoError(t, err)
	require.Len(t, store.Rows("realisasi"), 2)
	require.Equal(t, 1, inv.calls)

	// Re-running the same file inserts nothing new.
	err = job.Handle(context.Background(), importTask(t, ReconcileImportPayload{Path: "maret.csv", Table: "realisasi"}))
	require.NoError(t, err)
	require.Len(t, store.Rows("realisasi"), 2)
}

func TestReconcileImportSkipsRetry(t *testing.T) {
	dir := t.TempDir()
	writeRealisasi(t, dir, "maret.csv", "PO-1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kosong.csv"), []byte(sheet.ColKanwil+"\n"+kanwilLampung+"\n"), 0o600))

	cases := []struct {
		name    string
		payload ReconcileImportPayload
	}{
		{"unknown table", ReconcileImportPayload{Path: "maret.csv", Table: "stok"}},
		{"unconfirmed replace", ReconcileImportPayload{Path: "maret.csv", Table: "realisasi", Mode: "replace"}},
		{"escaping path", ReconcileImportPayload{Path: "../maret.csv", Table: "realisasi"}},
		{"missing file", ReconcileImportPayload{Path: "april.csv", Table: "realisasi"}},
		{"bad as_of", ReconcileImportPayload{Path: "maret.csv", Table: "target_kanwil", AsOf: "2025-02-30"}},
		{"missing columns", ReconcileImportPayload{Path: "kosong.csv", Table: "realisasi"}},
		{"bad strategy", ReconcileImportPayload{Path: "maret.csv", Table: "realisasi", Strategy: "fuzzy"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore()
			job := newImportJob(dir, reconcile.NewEngine(store, nil, reconcile.Config{}), nil)
			err := job.Handle(context.Background(), importTask(t, tc.payload))
			require.Error(t, err)
			require.True(t, errors.Is(err, asynq.SkipRetry), "expected SkipRetry, got %v", err)
			require.Empty(t, store.Rows("realisasi"))
		})
	}

	job := newImportJob(dir, reconcile.NewEngine(newStore(), nil, reconcile.Config{}), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskReconcileImport, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestReconcileImportRetriesBusyTable(t *testing.T) {
	dir := t.TempDir()
	writeRealisasi(t, dir, "maret.csv", "PO-1")
	lock := reconcile.NewLock()
	release, err := lock.TryAcquire(reconcile.TableRealisasi)
	require.NoError(t, err)
	defer release()

	job := newImportJob(dir, reconcile.NewEngine(newStore(), nil, reconcile.Config{}, reconcile.WithLock(lock)), nil)
	err = job.Handle(context.Background(), importTask(t, ReconcileImportPayload{Path: "maret.csv", Table: "realisasi"}))
	require.ErrorIs(t, err, reconcile.ErrSessionActive)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestReconcileImportLogsFailedSessionCounts(t *testing.T) {
	dir := t.TempDir()
	writeRealisasi(t, dir, "maret.csv", "PO-1", "PO-2")
	store := newStore()
	store.FailPage = func(int64) error { return errors.New("statement timeout") }

	var logs bytes.Buffer
	job := newImportJob(dir, reconcile.NewEngine(store, nil, reconcile.Config{}), nil)
	job.Logger = slog.New(slog.NewJSONHandler(&logs, nil))

	err := job.Handle(context.Background(), importTask(t, ReconcileImportPayload{Path: "maret.csv", Table: "realisasi", Strategy: "remote"}))
	require.ErrorIs(t, err, reconcile.ErrCompareExhausted)
	require.False(t, errors.Is(err, asynq.SkipRetry))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	require.Equal(t, "reconcile import failed", entry["msg"])
	require.Equal(t, "FAILED", entry["state"])
	require.EqualValues(t, 2, entry["uploaded"])
	require.EqualValues(t, 0, entry["inserted"])
}

func TestNewReconcileImportTaskRequiresPath(t *testing.T) {
	_, err := NewReconcileImportTask(ReconcileImportPayload{Table: "realisasi"})
	require.Error(t, err)

	task, err := NewReconcileImportTask(ReconcileImportPayload{Path: "a.csv", Table: "realisasi", Confirm: true})
	require.NoError(t, err)
	require.Equal(t, TaskReconcileImport, task.Type())
}

type recordingWarmer struct {
	filters []procurement.Filter
	err     error
}

func (w *recordingWarmer) Warmup(_ context.Context, filters []procurement.Filter) error {
	w.filters = append(w.filters, filters...)
	return w.err
}

func TestDashboardWarmupUsesMonthToDate(t *testing.T) {
	warmer := &recordingWarmer{}
	job := NewDashboardWarmupJob(warmer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return time.Date(2025, 3, 15, 7, 0, 0, 0, time.UTC) }

	task, err := NewDashboardWarmupTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, warmer.filters, 1)
	require.Equal(t, "2025-03-01", warmer.filters[0].Start.String())
	require.Equal(t, "2025-03-15", warmer.filters[0].End.String())

	task, err = NewDashboardWarmupTask("2025-02-10")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, "2025-02-01", warmer.filters[1].Start.String())

	task, err = NewDashboardWarmupTask("kemarin")
	require.NoError(t, err)
	require.True(t, errors.Is(job.Handle(context.Background(), task), asynq.SkipRetry))
}

func TestDashboardWarmupPropagatesFailure(t *testing.T) {
	boom := errors.New("redis down")
	job := NewDashboardWarmupJob(&recordingWarmer{err: boom}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskDashboardWarmup, nil))
	require.ErrorIs(t, err, boom)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestJobsHealth(t *testing.T) {
	serve := func(inspector QueueInspector) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", NewHandler(inspector, nil).MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rr
	}

	rr := serve(nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Retry: 1}})
	require.Equal(t, http.StatusOK, rr.Code)
	var health queueHealth
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&health))
	require.Equal(t, 4, health.Pending)
	require.Equal(t, 1, health.Retry)

	rr = serve(stubInspector{err: errors.New("no redis")})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
