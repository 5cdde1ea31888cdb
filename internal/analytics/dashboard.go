package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bulog/serapan/internal/procurement"
)

// ErrRangeRequired is returned by views that need both ends of the date range.
var ErrRangeRequired = errors.New("analytics: start and end dates required")

func (s *Service) scoped(ctx context.Context, f procurement.Filter) ([]procurement.TransactionRecord, error) {
	rows, err := s.repo.Transactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("analytics: load transactions: %w", err)
	}
	return f.Apply(rows), nil
}

// RegionSummary is the sentra/lainnya two-tier table.
func (s *Service) RegionSummary(ctx context.Context, f procurement.Filter) (procurement.TwoTier, error) {
	if err := f.Validate(); err != nil {
		return procurement.TwoTier{}, err
	}
	return fetch(ctx, s, keyDashboard("regions", f.Key()), func(ctx context.Context) (procurement.TwoTier, error) {
		var (
			rows    []procurement.TransactionRecord
			targets []procurement.RegionTarget
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rows, err = s.scoped(gctx, f)
			return err
		})
		g.Go(func() error {
			var err error
			targets, err = s.repo.RegionTargets(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return procurement.TwoTier{}, err
		}
		return procurement.ComposeRegionSummary(rows, targets), nil
	})
}

// BranchTable is the branch table of one kanwil. It is empty when no kanwil is given.
func (s *Service) BranchTable(ctx context.Context, f procurement.Filter, kanwil string) (procurement.BranchTable, error) {
	if err := f.Validate(); err != nil {
		return procurement.BranchTable{}, err
	}
	if kanwil == "" {
		return procurement.BranchTable{Total: procurement.AggregateRow{Entity: procurement.LabelBranchTotal}}, nil
	}
	return fetch(ctx, s, keyDashboard("branches", f.Key(), kanwil), func(ctx context.Context) (procurement.BranchTable, error) {
		var (
			rows    []procurement.TransactionRecord
			targets []procurement.BranchTarget
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rows, err = s.scoped(gctx, f)
			return err
		})
		g.Go(func() error {
			var err error
			targets, err = s.repo.BranchTargets(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return procurement.BranchTable{}, err
		}
		return procurement.BranchTableForRegion(rows, targets, kanwil), nil
	})
}

// MetricCards are the headline numbers; "today" is the filter's end date.
func (s *Service) MetricCards(ctx context.Context, f procurement.Filter) (procurement.MetricCards, error) {
	if err := f.Validate(); err != nil {
		return procurement.MetricCards{}, err
	}
	return fetch(ctx, s, keyDashboard("cards", f.Key()), func(ctx context.Context) (procurement.MetricCards, error) {
		rows, err := s.scoped(ctx, f)
		if err != nil {
			return procurement.MetricCards{}, err
		}
		targets, err := s.repo.RegionTargets(ctx)
		if err != nil {
			return procurement.MetricCards{}, fmt.Errorf("analytics: load region targets: %w", err)
		}
		return procurement.ComputeMetricCards(rows, targets, f), nil
	})
}

// DailyTrend is the zero-filled per-day series over the filter range.
func (s *Service) DailyTrend(ctx context.Context, f procurement.Filter) ([]procurement.TrendPoint, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.Start.IsZero() || f.End.IsZero() {
		return nil, ErrRangeRequired
	}
	return fetch(ctx, s, keyDashboard("trend", f.Key()), func(ctx context.Context) ([]procurement.TrendPoint, error) {
		rows, err := s.scoped(ctx, f)
		if err != nil {
			return nil, err
		}
		return procurement.DailyTrend(rows, f.Start, f.End), nil
	})
}

// LastSevenDays is the trend of the seven days ending at the filter's end date. The
// filter's start date is ignored.
func (s *Service) LastSevenDays(ctx context.Context, f procurement.Filter) ([]procurement.TrendPoint, error) {
	if f.End.IsZero() {
		return nil, ErrRangeRequired
	}
	f.Start = f.End.AddDays(-6)
	return fetch(ctx, s, keyDashboard("seven_days", f.Key()), func(ctx context.Context) ([]procurement.TrendPoint, error) {
		rows, err := s.scoped(ctx, f)
		if err != nil {
			return nil, err
		}
		return procurement.LastSevenDays(rows, f.End), nil
	})
}

// DailyProgress is the per-kanwil progress table for day. Receipts are not bounded by
// the filter's dates because the table's own columns partition them around day.
func (s *Service) DailyProgress(ctx context.Context, f procurement.Filter, day procurement.Date) (procurement.ProgressTable, error) {
	if day.IsZero() {
		return procurement.ProgressTable{}, ErrRangeRequired
	}
	f.Start, f.End = procurement.Date{}, procurement.Date{}
	return fetch(ctx, s, keyDashboard("progress", f.Key(), day.String()), func(ctx context.Context) (procurement.ProgressTable, error) {
		rows, err := s.scoped(ctx, f)
		if err != nil {
			return procurement.ProgressTable{}, err
		}
		return procurement.DailyProgress(rows, day, nil), nil
	})
}

// Warmup preloads the region summary and metric cards for each filter.
func (s *Service) Warmup(ctx context.Context, filters []procurement.Filter) error {
	for _, f := range filters {
		if _, err := s.RegionSummary(ctx, f); err != nil {
			return fmt.Errorf("analytics: warm region summary: %w", err)
		}
		if _, err := s.MetricCards(ctx, f); err != nil {
			return fmt.Errorf("analytics: warm metric cards: %w", err)
		}
		s.logger.Debug("dashboard warmed", slog.String("filter", f.Key()))
	}
	return nil
}

// MonthToDate is the filter from the first of today's month through today.
func MonthToDate(today procurement.Date) procurement.Filter {
	t := today.Time()
	start := procurement.NewDate(t.Year(), t.Month(), 1)
	return procurement.Filter{Start: start, End: today}
}
