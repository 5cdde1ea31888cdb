package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bulog/serapan/internal/procurement"
	"github.com/bulog/serapan/internal/sheet"
)

// Config tunes batching, paging and retries.
type Config struct {
	BatchSize  int
	PageSize   int
	PageDelay  time.Duration
	MaxRetries int
	RetryBase  time.Duration
	// BackOff overrides the per-page retry schedule. Nil doubles from RetryBase.
	BackOff func() backoff.BackOff
}

// DefaultConfig matches the production tuning: batches and pages of 1000, 200ms
// between pages and three retries at 2s, 4s and 8s.
func DefaultConfig() Config {
	return Config{
		BatchSize:  1000,
		PageSize:   1000,
		PageDelay:  200 * time.Millisecond,
		MaxRetries: 3,
		RetryBase:  2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.PageDelay < 0 {
		c.PageDelay = 0
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = def.RetryBase
	}
	return c
}

func (c Config) retryPolicy(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if c.BackOff != nil {
		b = c.BackOff()
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.RetryBase
		exp.Multiplier = 2
		exp.RandomizationFactor = 0
		exp.MaxInterval = c.RetryBase << 10
		exp.MaxElapsedTime = 0
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.MaxRetries)), ctx)
}

// Option customises an Engine.
type Option func(*Engine)

// WithRecorder wires reconciliation counters.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLock serialises runs per table through l.
func WithLock(l *Lock) Option {
	return func(e *Engine) {
		e.lock = l
	}
}

// Engine runs reconciliation sessions against a Store.
type Engine struct {
	store   Store
	logger  *slog.Logger
	metrics Recorder
	cfg     Config
	now     func() time.Time
	lock    *Lock
}

// NewEngine constructs an engine.
func NewEngine(store Store, logger *slog.Logger, cfg Config, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:   store,
		logger:  logger,
		metrics: nopRecorder{},
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run reconciles one upload. The returned session is never nil and carries the
// report and transition history, including for failed runs.
func (e *Engine) Run(ctx context.Context, up Upload, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	started := e.now()
	session := newSession(up.Table, opts, started)
	log := e.logger.With(
		slog.String("session", session.ID.String()),
		slog.String("table", string(up.Table)),
		slog.String("mode", string(opts.Mode)),
		slog.String("strategy", string(opts.Strategy)),
	)

	var err error
	if e.lock != nil {
		release, lockErr := e.lock.TryAcquire(up.Table)
		if lockErr != nil {
			err = lockErr
		} else {
			defer release()
		}
	}
	if err == nil {
		err = e.run(ctx, session, up, opts, log)
	}
	session.Report.Elapsed = e.now().Sub(started)
	if err != nil {
		session.fail(err, e.now())
		log.Error("reconcile failed", slog.String("state", string(lastState(session))), slog.Any("error", err))
		return session, err
	}
	log.Info("reconcile done",
		slog.Int("uploaded", session.Report.Uploaded),
		slog.Int("inserted", session.Report.Inserted),
		slog.Int("duplicates", session.Report.Duplicates),
		slog.Int("failed_batches", session.Report.FailedBatches),
	)
	return session, nil
}

func (e *Engine) run(ctx context.Context, session *Session, up Upload, opts Options, log *slog.Logger) error {
	if err := validateOptions(up, opts); err != nil {
		return err
	}
	if opts.Mode == ModeReplace && !opts.ConfirmReplace {
		return ErrReplaceNotConfirmed
	}
	if err := sheet.Validate(up.Sheet, up.Table.Kind()); err != nil {
		return err
	}

	report := &session.Report
	rows, err := e.stage(ctx, up, opts, report)
	if err != nil {
		return err
	}
	session.advance(StateStaged, e.now())
	log.Info("upload staged",
		slog.Int("rows", len(rows)),
		slog.Int("skipped_kanwil", report.SkippedKanwil),
		slog.Int("skipped_kancab", report.SkippedKancab),
		slog.Int("skipped_targets", report.SkippedTargets),
	)

	table := string(up.Table)
	usedStaging := false
	switch opts.Mode {
	case ModeReplace:
		session.advance(StateMerging, e.now())
		if err := e.replace(ctx, up.Table, rows, report, log); err != nil {
			return err
		}
	default:
		session.advance(StateComparing, e.now())
		if opts.Strategy == StrategyRemote {
			usedStaging = true
			ids, err := e.compareRemote(ctx, up.Table, rows, log)
			if err != nil {
				e.cleanup(ctx, up.Table, report, log)
				return err
			}
			report.Unique = len(ids)
			session.advance(StateMerging, e.now())
			e.migrate(ctx, up.Table, ids, report, log)
		} else {
			unique, err := e.compareLocal(ctx, table, rows, opts.Strategy)
			if err != nil {
				return err
			}
			report.Unique = len(unique)
			session.advance(StateMerging, e.now())
			e.insertBatches(ctx, up.Table, unique, report, log)
		}
		report.Duplicates = len(rows) - report.Unique
		e.metrics.AddReconcileRows(table, "duplicate", report.Duplicates)
	}

	session.advance(StateCleanup, e.now())
	if usedStaging {
		e.cleanup(ctx, up.Table, report, log)
	}
	session.advance(StateDone, e.now())
	return nil
}

func validateOptions(up Upload, opts Options) error {
	if _, err := ParseTable(string(up.Table)); err != nil {
		return err
	}
	switch opts.Mode {
	case ModeAppend, ModeReplace:
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidOptions, opts.Mode)
	}
	switch opts.Strategy {
	case StrategyLocal, StrategyKeyFields, StrategyRemote:
	default:
		return fmt.Errorf("%w: strategy %q", ErrInvalidOptions, opts.Strategy)
	}
	return nil
}

// replace empties the table, falling back to a plain delete when the sequence reset
// is unavailable, then loads every staged row.
func (e *Engine) replace(ctx context.Context, table Table, rows []Row, report *Report, log *slog.Logger) error {
	if err := e.store.TruncateReset(ctx, string(table)); err != nil {
		log.Warn("truncate reset failed, deleting rows", slog.Any("error", err))
		if err := e.store.DeleteAll(ctx, string(table)); err != nil {
			return fmt.Errorf("reconcile: clear %s: %w", table, err)
		}
		report.warn("sequence for %s was not reset", table)
	}
	report.Unique = len(rows)
	e.insertBatches(ctx, table, rows, report, log)
	return nil
}

// insertBatches writes rows in batches. A failed batch is logged, counted and skipped.
func (e *Engine) insertBatches(ctx context.Context, table Table, rows []Row, report *Report, log *slog.Logger) {
	for start := 0; start < len(rows); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(rows))
		batch := rows[start:end]
		if err := e.store.Insert(ctx, string(table), batch); err != nil {
			report.FailedBatches++
			report.FailedRows += len(batch)
			e.metrics.AddReconcileRows(string(table), "failed", len(batch))
			log.Warn("batch insert failed", slog.Int("offset", start), slog.Int("rows", len(batch)), slog.Any("error", err))
			continue
		}
		report.Inserted += len(batch)
		e.metrics.AddReconcileRows(string(table), "inserted", len(batch))
		log.Info("batch inserted", slog.Int("offset", start), slog.Int("rows", len(batch)))
	}
}

// cleanup empties the compare table. Failures only produce a warning.
func (e *Engine) cleanup(ctx context.Context, table Table, report *Report, log *slog.Logger) {
	compare := table.CompareTable()
	err := e.store.TruncateReset(ctx, compare)
	if err == nil {
		return
	}
	log.Warn("compare truncate failed, deleting rows", slog.Any("error", err))
	if err := e.store.DeleteAll(ctx, compare); err != nil {
		log.Warn("compare cleanup failed", slog.Any("error", err))
		report.warn("staging table %s was not cleaned: %v", compare, err)
	}
}

func (e *Engine) asOf(up Upload) procurement.Date {
	if !up.AsOf.IsZero() {
		return up.AsOf
	}
	return procurement.DateOf(e.now())
}

func lastState(s *Session) State {
	if n := len(s.History); n > 0 && s.History[n-1].To == StateFailed {
		return s.History[n-1].From
	}
	return s.State
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
