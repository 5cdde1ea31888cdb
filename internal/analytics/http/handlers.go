package analytichttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/bulog/serapan/internal/analytics"
	"github.com/bulog/serapan/internal/analytics/export"
	"github.com/bulog/serapan/internal/platform/httpx"
	"github.com/bulog/serapan/internal/procurement"
)

const requestTimeout = 10 * time.Second

// DashboardService defines the dashboard data contract used by the handler.
type DashboardService interface {
	RegionSummary(ctx context.Context, f procurement.Filter) (procurement.TwoTier, error)
	BranchTable(ctx context.Context, f procurement.Filter, kanwil string) (procurement.BranchTable, error)
	MetricCards(ctx context.Context, f procurement.Filter) (procurement.MetricCards, error)
	DailyTrend(ctx context.Context, f procurement.Filter) ([]procurement.TrendPoint, error)
	LastSevenDays(ctx context.Context, f procurement.Filter) ([]procurement.TrendPoint, error)
	DailyProgress(ctx context.Context, f procurement.Filter, day procurement.Date) (procurement.ProgressTable, error)
}

// Handler serves the dashboard views as JSON and downloads.
type Handler struct {
	logger        *slog.Logger
	service       DashboardService
	validate      *validator.Validate
	csvPool       sync.Pool
	now           func() time.Time
	downloadLimit int
}

// NewHandler constructs the dashboard HTTP handler.
func NewHandler(logger *slog.Logger, service DashboardService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:        logger,
		service:       service,
		validate:      validator.New(),
		now:           time.Now,
		downloadLimit: 10,
	}
	h.csvPool.New = func() any { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// WithDownloadLimit sets the per-client downloads allowed per minute.
func (h *Handler) WithDownloadLimit(perMinute int) {
	if perMinute > 0 {
		h.downloadLimit = perMinute
	}
}

type filterQuery struct {
	Start  string   `validate:"omitempty,datetime=2006-01-02"`
	End    string   `validate:"omitempty,datetime=2006-01-02"`
	Date   string   `validate:"omitempty,datetime=2006-01-02"`
	Akun   []string `validate:"max=20,dive,required,max=64"`
	Kanwil []string `validate:"max=40,dive,required,max=128"`
}

type request struct {
	filter procurement.Filter
	day    procurement.Date
}

func (h *Handler) parseRequest(r *http.Request) (request, error) {
	q := r.URL.Query()
	raw := filterQuery{
		Start:  strings.TrimSpace(q.Get("start")),
		End:    strings.TrimSpace(q.Get("end")),
		Date:   strings.TrimSpace(q.Get("date")),
		Akun:   q["akun"],
		Kanwil: q["kanwil"],
	}
	if err := h.validate.Struct(raw); err != nil {
		return request{}, err
	}

	today := procurement.DateOf(h.now())
	end := today
	if raw.End != "" {
		end = procurement.MustDate(raw.End)
	}
	start := analytics.MonthToDate(end).Start
	if raw.Start != "" {
		start = procurement.MustDate(raw.Start)
	}
	day := end
	if raw.Date != "" {
		day = procurement.MustDate(raw.Date)
	}
	f := procurement.Filter{AkunAnalitik: raw.Akun, Kanwil: raw.Kanwil, Start: start, End: end}
	if err := f.Validate(); err != nil {
		return request{}, err
	}
	return request{filter: f, day: day}, nil
}

func (h *Handler) handleRegions(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func(ctx context.Context, req request) (any, error) {
		return h.service.RegionSummary(ctx, req.filter)
	})
}

func (h *Handler) handleBranches(w http.ResponseWriter, r *http.Request) {
	kanwil := strings.TrimSpace(r.URL.Query().Get("kanwil"))
	h.serveJSON(w, r, func(ctx context.Context, req request) (any, error) {
		return h.service.BranchTable(ctx, req.filter, kanwil)
	})
}

func (h *Handler) handleCards(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func(ctx context.Context, req request) (any, error) {
		return h.service.MetricCards(ctx, req.filter)
	})
}

func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func(ctx context.Context, req request) (any, error) {
		return h.service.DailyTrend(ctx, req.filter)
	})
}

func (h *Handler) handleSevenDays(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func(ctx context.Context, req request) (any, error) {
		return h.service.LastSevenDays(ctx, req.filter)
	})
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func(ctx context.Context, req request) (any, error) {
		return h.service.DailyProgress(ctx, req.filter, req.day)
	})
}

type dashboardData struct {
	Filter    procurement.Filter       `json:"filter"`
	Cards     procurement.MetricCards  `json:"cards"`
	Regions   procurement.TwoTier      `json:"regions"`
	Trend     []procurement.TrendPoint `json:"trend"`
	SevenDays []procurement.TrendPoint `json:"seven_days"`
}

// handleDashboard loads the landing views concurrently.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func(ctx context.Context, req request) (any, error) {
		return h.loadDashboardData(ctx, req.filter)
	})
}

func (h *Handler) loadDashboardData(ctx context.Context, f procurement.Filter) (dashboardData, error) {
	data := dashboardData{Filter: f}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cards, err := h.service.MetricCards(ctx, f)
		if err != nil {
			return err
		}
		data.Cards = cards
		return nil
	})
	g.Go(func() error {
		regions, err := h.service.RegionSummary(ctx, f)
		if err != nil {
			return err
		}
		data.Regions = regions
		return nil
	})
	g.Go(func() error {
		points, err := h.service.DailyTrend(ctx, f)
		if err != nil {
			return err
		}
		data.Trend = points
		return nil
	})
	g.Go(func() error {
		points, err := h.service.LastSevenDays(ctx, f)
		if err != nil {
			return err
		}
		data.SevenDays = points
		return nil
	})

	if err := g.Wait(); err != nil {
		return dashboardData{}, err
	}
	return data, nil
}

func (h *Handler) serveJSON(w http.ResponseWriter, r *http.Request, load func(context.Context, request) (any, error)) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	value, err := load(ctx, req)
	if err != nil {
		h.handleLoadError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, value)
}

func (h *Handler) handleRegionsCSV(w http.ResponseWriter, r *http.Request) {
	h.serveDownload(w, r, "ringkasan-kanwil", "csv", func(ctx context.Context, req request, out io.Writer) error {
		summary, err := h.service.RegionSummary(ctx, req.filter)
		if err != nil {
			return err
		}
		return export.WriteRegionSummaryCSV(out, summary)
	})
}

func (h *Handler) handleRegionsXLSX(w http.ResponseWriter, r *http.Request) {
	h.serveDownload(w, r, "ringkasan-kanwil", "xlsx", func(ctx context.Context, req request, out io.Writer) error {
		summary, err := h.service.RegionSummary(ctx, req.filter)
		if err != nil {
			return err
		}
		return export.WriteRegionSummaryXLSX(out, summary)
	})
}

func (h *Handler) handleBranchesCSV(w http.ResponseWriter, r *http.Request) {
	kanwil := strings.TrimSpace(r.URL.Query().Get("kanwil"))
	h.serveDownload(w, r, "kancab", "csv", func(ctx context.Context, req request, out io.Writer) error {
		table, err := h.service.BranchTable(ctx, req.filter, kanwil)
		if err != nil {
			return err
		}
		return export.WriteBranchTableCSV(out, table)
	})
}

func (h *Handler) handleBranchesXLSX(w http.ResponseWriter, r *http.Request) {
	kanwil := strings.TrimSpace(r.URL.Query().Get("kanwil"))
	h.serveDownload(w, r, "kancab", "xlsx", func(ctx context.Context, req request, out io.Writer) error {
		table, err := h.service.BranchTable(ctx, req.filter, kanwil)
		if err != nil {
			return err
		}
		return export.WriteBranchTableXLSX(out, kanwil, table)
	})
}

func (h *Handler) handleProgressCSV(w http.ResponseWriter, r *http.Request) {
	h.serveDownload(w, r, "progres-harian", "csv", func(ctx context.Context, req request, out io.Writer) error {
		table, err := h.service.DailyProgress(ctx, req.filter, req.day)
		if err != nil {
			return err
		}
		return export.WriteProgressCSV(out, table)
	})
}

var contentTypes = map[string]string{
	"csv":  "text/csv; charset=utf-8",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func (h *Handler) serveDownload(w http.ResponseWriter, r *http.Request, name, ext string, write func(context.Context, request, io.Writer) error) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := write(ctx, req, buf); err != nil {
		h.handleLoadError(w, r, err)
		return
	}

	filename := fmt.Sprintf("%s-%s-%s.%s", name, req.filter.Start, req.filter.End, ext)
	w.Header().Set("Content-Type", contentTypes[ext])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream "+ext, err)
	}
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		fields := make([]string, 0, len(vErrs))
		for _, fe := range vErrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:   "Parameter tidak valid",
			Status:  http.StatusBadRequest,
			Invalid: fields,
		})
		return
	}
	if errors.Is(err, procurement.ErrInvalidFilter) {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	h.handleServerError(w, "parse filters", err)
}

func (h *Handler) handleLoadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, procurement.ErrInvalidFilter), errors.Is(err, analytics.ErrRangeRequired):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, context.DeadlineExceeded):
		h.logError("load dashboard", err, slog.String("path", r.URL.Path))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
	default:
		h.logError("load dashboard", err, slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) handleServerError(w http.ResponseWriter, context string, err error) {
	h.logError(context, err)
	httpx.RespondError(w, err)
}

func (h *Handler) logError(context string, err error, attrs ...any) {
	h.logger.Error(context, append([]any{slog.Any("error", err)}, attrs...)...)
}
