package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bulog/serapan/internal/jobs"
	"github.com/bulog/serapan/internal/procurement"
	"github.com/bulog/serapan/internal/reconcile"
	"github.com/bulog/serapan/internal/sheet"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Runner executes a reconciliation session.
type Runner interface {
	Run(ctx context.Context, up reconcile.Upload, opts reconcile.Options) (*reconcile.Session, error)
}

// Invalidator drops cached dashboard views.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ReconcileImportJob reconciles spreadsheets placed in ImportDir.
type ReconcileImportJob struct {
	Runner      Runner
	Invalidator Invalidator
	ImportDir   string
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewReconcileImportJob wires dependencies for the import handler.
func NewReconcileImportJob(runner Runner, invalidator Invalidator, importDir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileImportJob {
	return &ReconcileImportJob{
		Runner:      runner,
		Invalidator: invalidator,
		ImportDir:   importDir,
		Logger:      logger,
		Metrics:     metrics,
	}
}

// Handle processes reconcile import tasks. Payload, file and schema problems are not
// retried; storage failures and a busy table are.
func (j *ReconcileImportJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Runner == nil {
		return errors.New("reconcile import: handler not configured")
	}
	var payload ReconcileImportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("reconcile import: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskReconcileImport)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("path", payload.Path), slog.String("table", payload.Table))
	up, opts, err := j.prepare(payload)
	if err != nil {
		logger.Warn("reconcile import rejected", slog.Any("error", err))
		return fmt.Errorf("reconcile import: %v: %w", err, asynq.SkipRetry)
	}

	session, err := j.Runner.Run(ctx, up, opts)
	if err != nil {
		if session != nil {
			logger.Error("reconcile import failed", append(reportAttrs(session), slog.Any("error", err))...)
		}
		if permanent(err) {
			return fmt.Errorf("reconcile import: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("reconcile import: %w", err)
	}
	if session.Report.Partial() {
		logger.Warn("reconcile import partially inserted",
			slog.Int("failed_batches", session.Report.FailedBatches),
			slog.Int("failed_rows", session.Report.FailedRows),
		)
	}
	if j.Invalidator != nil {
		if err := j.Invalidator.Invalidate(ctx); err != nil {
			logger.Warn("invalidate dashboard cache", slog.Any("error", err))
		}
	}
	logger.Info("reconcile import done", reportAttrs(session)...)
	return nil
}

func reportAttrs(session *reconcile.Session) []any {
	r := session.Report
	return []any{
		slog.String("session", session.ID.String()),
		slog.String("state", string(session.State)),
		slog.Int("uploaded", r.Uploaded),
		slog.Int("inserted", r.Inserted),
		slog.Int("duplicates", r.Duplicates),
		slog.Int("skipped_kanwil", r.SkippedKanwil),
		slog.Int("skipped_kancab", r.SkippedKancab),
		slog.Int("skipped_targets", r.SkippedTargets),
		slog.Int("failed_batches", r.FailedBatches),
	}
}

func (j *ReconcileImportJob) prepare(payload ReconcileImportPayload) (reconcile.Upload, reconcile.Options, error) {
	table, err := reconcile.ParseTable(payload.Table)
	if err != nil {
		return reconcile.Upload{}, reconcile.Options{}, err
	}
	opts := reconcile.Options{
		Mode:            reconcile.Mode(payload.Mode),
		Strategy:        reconcile.Strategy(payload.Strategy),
		ConfirmReplace:  payload.Confirm,
		RegisterOffices: payload.RegisterOffices,
	}
	if opts.Mode == reconcile.ModeReplace && !opts.ConfirmReplace {
		return reconcile.Upload{}, reconcile.Options{}, reconcile.ErrReplaceNotConfirmed
	}
	var asOf procurement.Date
	if payload.AsOf != "" {
		if asOf, err = procurement.ParseDate(payload.AsOf); err != nil {
			return reconcile.Upload{}, reconcile.Options{}, err
		}
	}
	if !filepath.IsLocal(payload.Path) {
		return reconcile.Upload{}, reconcile.Options{}, fmt.Errorf("path %q escapes the import directory", payload.Path)
	}

	f, err := os.Open(filepath.Join(j.ImportDir, payload.Path))
	if err != nil {
		return reconcile.Upload{}, reconcile.Options{}, err
	}
	defer f.Close()
	up, err := reconcile.ReadUpload(f, payload.Path, table, asOf)
	if err != nil {
		return reconcile.Upload{}, reconcile.Options{}, err
	}
	return up, opts, nil
}

func permanent(err error) bool {
	var missing *sheet.MissingColumnsError
	return errors.As(err, &missing) ||
		errors.Is(err, reconcile.ErrInvalidOptions) ||
		errors.Is(err, reconcile.ErrReplaceNotConfirmed)
}

func (j *ReconcileImportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconcileImport))
	}
	return slog.Default().With(slog.String("job", TaskReconcileImport))
}

func (j *ReconcileImportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
