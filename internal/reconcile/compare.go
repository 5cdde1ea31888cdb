package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// compareLocal returns the staged rows whose identity is neither persisted nor seen
// earlier in the upload.
func (e *Engine) compareLocal(ctx context.Context, table string, staged []Row, strategy Strategy) ([]Row, error) {
	existing := make(map[string]struct{})
	var after int64
	for {
		page, err := e.store.SelectRecords(ctx, table, Range{AfterID: after, Limit: e.cfg.PageSize})
		if err != nil {
			return nil, fmt.Errorf("reconcile: load %s: %w", table, err)
		}
		for _, row := range page {
			existing[row.identity(strategy)] = struct{}{}
			if row.ID > after {
				after = row.ID
			}
		}
		if len(page) < e.cfg.PageSize {
			break
		}
	}

	unique := make([]Row, 0, len(staged))
	for _, row := range staged {
		key := row.identity(strategy)
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		unique = append(unique, row)
	}
	return unique, nil
}

// compareRemote loads the upload into the compare table and pages through the ids the
// database reports as missing from the main table.
func (e *Engine) compareRemote(ctx context.Context, table Table, staged []Row, log *slog.Logger) ([]int64, error) {
	compare := table.CompareTable()
	if err := e.store.TruncateReset(ctx, compare); err != nil {
		if err := e.store.DeleteAll(ctx, compare); err != nil {
			return nil, fmt.Errorf("reconcile: clear %s: %w", compare, err)
		}
	}
	for start := 0; start < len(staged); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(staged))
		if err := e.store.Insert(ctx, compare, staged[start:end]); err != nil {
			return nil, fmt.Errorf("reconcile: stage %s: %w", compare, err)
		}
	}

	total, err := e.store.Count(ctx, compare)
	if err != nil {
		return nil, fmt.Errorf("reconcile: count %s: %w", compare, err)
	}
	if total == 0 {
		return nil, nil
	}
	minID, err := e.store.MinID(ctx, compare)
	if err != nil {
		return nil, fmt.Errorf("reconcile: min id %s: %w", compare, err)
	}

	limit := int64(e.cfg.PageSize)
	lastExpected := minID + total - 1
	ceiling := minID + total + limit*10
	lastID := minID - 1

	var missing []int64
	for {
		page, err := e.fetchPage(ctx, table, lastID, log)
		if err != nil {
			return nil, err
		}
		if len(page) > 0 {
			missing = append(missing, page...)
			for _, id := range page {
				if id > lastID {
					lastID = id
				}
			}
			log.Info("compare page fetched", slog.Int("ids", len(page)), slog.Int64("last_id", lastID))
		} else {
			if lastID >= lastExpected {
				break
			}
			lastID += limit
			if lastID > ceiling {
				log.Warn("compare cursor passed safety ceiling", slog.Int64("last_id", lastID))
				break
			}
		}
		if err := sleepContext(ctx, e.cfg.PageDelay); err != nil {
			return nil, err
		}
	}
	return missing, nil
}

// fetchPage retries a comparison page with exponential backoff.
func (e *Engine) fetchPage(ctx context.Context, table Table, lastID int64, log *slog.Logger) ([]int64, error) {
	var ids []int64
	op := func() error {
		page, err := e.store.NotExistsPage(ctx, table, lastID, e.cfg.PageSize)
		if err != nil {
			if isContextErr(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		ids = page
		return nil
	}
	notify := func(err error, wait time.Duration) {
		e.metrics.IncReconcileRetry(string(table))
		log.Warn("compare page failed, retrying",
			slog.Int64("last_id", lastID),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}
	if err := backoff.RetryNotify(op, e.cfg.retryPolicy(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Err
		}
		return nil, fmt.Errorf("%w: last_id=%d: %v", ErrCompareExhausted, lastID, err)
	}
	return ids, nil
}

// migrate copies the missing compare rows into the main table in batches, dropping the
// compare ids. Rows repeated within the upload are inserted once.
func (e *Engine) migrate(ctx context.Context, table Table, ids []int64, report *Report, log *slog.Logger) {
	compare := table.CompareTable()
	seen := make(map[string]struct{}, len(ids))
	for start := 0; start < len(ids); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(ids))
		batchIDs := ids[start:end]
		rows, err := e.store.SelectByIDs(ctx, compare, batchIDs)
		if err != nil {
			report.FailedBatches++
			report.FailedRows += len(batchIDs)
			e.metrics.AddReconcileRows(string(table), "failed", len(batchIDs))
			log.Warn("compare batch fetch failed", slog.Int64("first_id", batchIDs[0]), slog.Any("error", err))
			continue
		}
		batch := make([]Row, 0, len(rows))
		for _, row := range rows {
			key := row.identity(StrategyRemote)
			if _, dup := seen[key]; dup {
				report.Unique--
				continue
			}
			seen[key] = struct{}{}
			row.ID = 0
			batch = append(batch, row)
		}
		if len(batch) == 0 {
			continue
		}
		e.insertBatches(ctx, table, batch, report, log)
	}
}
