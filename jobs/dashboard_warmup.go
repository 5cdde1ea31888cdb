package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bulog/serapan/internal/analytics"
	jobmetrics "github.com/bulog/serapan/internal/jobs"
	"github.com/bulog/serapan/internal/procurement"
)

// Warmer preloads dashboard views into the cache.
type Warmer interface {
	Warmup(ctx context.Context, filters []procurement.Filter) error
}

// DashboardWarmupJob keeps the month-to-date region summary and cards cached.
type DashboardWarmupJob struct {
	Dashboard Warmer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
	clock     func() time.Time
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(dashboard Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardWarmupJob {
	return &DashboardWarmupJob{
		Dashboard: dashboard,
		Logger:    logger,
		Metrics:   metrics,
		Timeout:   2 * time.Minute,
		clock:     time.Now,
	}
}

// Handle processes dashboard warmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Dashboard == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload DashboardWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("dashboard warmup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	day := procurement.DateOf(j.now())
	if payload.Date != "" {
		parsed, err := procurement.ParseDate(payload.Date)
		if err != nil {
			return fmt.Errorf("dashboard warmup: %v: %w", err, asynq.SkipRetry)
		}
		day = parsed
	}

	tracker := j.metrics().Track(TaskDashboardWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	filter := analytics.MonthToDate(day)
	started := time.Now()
	if err := j.Dashboard.Warmup(ctx, []procurement.Filter{filter}); err != nil {
		j.logger().Error("dashboard warmup", slog.String("filter", filter.Key()), slog.Any("error", err))
		return err
	}
	j.logger().Info("dashboard warmed",
		slog.String("start", filter.Start.String()),
		slog.String("end", filter.End.String()),
		slog.Duration("duration", time.Since(started)),
	)
	return nil
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DashboardWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
