// Package reconcilehttp accepts spreadsheet uploads and reconciles them into storage.
package reconcilehttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/bulog/serapan/internal/platform/httpx"
	"github.com/bulog/serapan/internal/procurement"
	"github.com/bulog/serapan/internal/reconcile"
	"github.com/bulog/serapan/internal/sheet"
)

const defaultMaxBytes = 32 << 20

// Runner executes a reconciliation session.
type Runner interface {
	Run(ctx context.Context, up reconcile.Upload, opts reconcile.Options) (*reconcile.Session, error)
}

// Invalidator drops cached dashboard views after data changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler serves POST /reconcile/{table}.
type Handler struct {
	logger      *slog.Logger
	runner      Runner
	invalidator Invalidator
	validate    *validator.Validate
	maxBytes    int64
	perMinute   int
}

// NewHandler constructs the upload handler. invalidator may be nil.
func NewHandler(logger *slog.Logger, runner Runner, invalidator Invalidator, maxBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Handler{
		logger:      logger,
		runner:      runner,
		invalidator: invalidator,
		validate:    validator.New(),
		maxBytes:    maxBytes,
		perMinute:   6,
	}
}

// MountRoutes registers the upload endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(h.perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
		}),
	)
	r.With(limiter).Post("/reconcile/{table}", h.handleUpload)
}

type uploadForm struct {
	Table           string `validate:"required,oneof=realisasi target_kanwil target_kancab"`
	Mode            string `validate:"omitempty,oneof=append replace"`
	Strategy        string `validate:"omitempty,oneof=local keyfields remote"`
	AsOf            string `validate:"omitempty,datetime=2006-01-02"`
	Confirm         bool
	RegisterOffices bool
}

type response struct {
	Session *reconcile.Session `json:"session"`
	Partial bool               `json:"partial"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, fmt.Errorf("%w: limit %d bytes", httpx.ErrTooLarge, tooLarge.Limit))
			return
		}
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form := uploadForm{
		Table:           chi.URLParam(r, "table"),
		Mode:            strings.ToLower(strings.TrimSpace(r.FormValue("mode"))),
		Strategy:        strings.ToLower(strings.TrimSpace(r.FormValue("strategy"))),
		AsOf:            strings.TrimSpace(r.FormValue("as_of")),
		Confirm:         truthy(r.FormValue("confirm")),
		RegisterOffices: truthy(r.FormValue("register_offices")),
	}
	if err := h.validate.Struct(form); err != nil {
		var vErrs validator.ValidationErrors
		fields := []string{}
		if errors.As(err, &vErrs) {
			for _, fe := range vErrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
		}
		httpx.WriteProblem(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Invalid: fields})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: file: %v", httpx.ErrValidation, err))
		return
	}
	defer file.Close()

	var asOf procurement.Date
	if form.AsOf != "" {
		asOf = procurement.MustDate(form.AsOf)
	}
	table := reconcile.Table(form.Table)
	upload, err := reconcile.ReadUpload(file, header.Filename, table, asOf)
	if err != nil {
		h.respondRunError(w, err, nil)
		return
	}

	opts := reconcile.Options{
		Mode:            reconcile.Mode(form.Mode),
		Strategy:        reconcile.Strategy(form.Strategy),
		ConfirmReplace:  form.Confirm,
		RegisterOffices: form.RegisterOffices,
	}
	session, err := h.runner.Run(r.Context(), upload, opts)
	if err != nil {
		h.logger.Warn("upload rejected",
			slog.String("table", form.Table),
			slog.String("file", header.Filename),
			slog.Any("error", err),
		)
		h.respondRunError(w, err, session)
		return
	}

	if session.State == reconcile.StateDone && h.invalidator != nil {
		if err := h.invalidator.Invalidate(r.Context()); err != nil {
			h.logger.Error("invalidate dashboard cache", slog.Any("error", err))
		}
	}
	status := http.StatusOK
	if session.Report.Partial() {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, response{Session: session, Partial: session.Report.Partial()})
}

// sessionProblem carries the failed session so the client still sees what was
// staged and counted before the failure.
type sessionProblem struct {
	httpx.ProblemDetail
	Session *reconcile.Session `json:"session,omitempty"`
}

func (h *Handler) respondRunError(w http.ResponseWriter, err error, session *reconcile.Session) {
	p := h.problemFor(err)
	if session == nil {
		httpx.WriteProblem(w, p)
		return
	}
	httpx.ProblemBody(w, p.Status, sessionProblem{ProblemDetail: p, Session: session})
}

func (h *Handler) problemFor(err error) httpx.ProblemDetail {
	var missing *sheet.MissingColumnsError
	switch {
	case errors.As(err, &missing):
		return httpx.ProblemDetail{
			Title:   "Missing Columns",
			Status:  http.StatusBadRequest,
			Detail:  err.Error(),
			Invalid: missing.Columns,
		}
	case errors.Is(err, reconcile.ErrSessionActive):
		return httpx.ProblemFor(fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, reconcile.ErrReplaceNotConfirmed):
		return httpx.ProblemFor(fmt.Errorf("%w: %v", httpx.ErrPreconditionFailed, err))
	case errors.Is(err, reconcile.ErrCompareExhausted):
		return httpx.ProblemFor(fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
	case errors.Is(err, reconcile.ErrInvalidOptions),
		errors.Is(err, sheet.ErrUnsupportedFormat),
		errors.Is(err, sheet.ErrEmptyWorkbook):
		return httpx.ProblemFor(fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	default:
		h.logger.Error("reconcile failed", slog.Any("error", err))
		return httpx.ProblemFor(err)
	}
}

func truthy(v string) bool {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "on") || strings.EqualFold(v, "yes") {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}
