package analytichttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/bulog/serapan/internal/platform/httpx"
)

// MountRoutes registers dashboard endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(h.downloadLimit, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
		}),
	)

	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/", h.handleDashboard)
		r.Get("/regions", h.handleRegions)
		r.Get("/branches", h.handleBranches)
		r.Get("/cards", h.handleCards)
		r.Get("/trend", h.handleTrend)
		r.Get("/seven-days", h.handleSevenDays)
		r.Get("/progress", h.handleProgress)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/regions.csv", h.handleRegionsCSV)
			gr.Get("/regions.xlsx", h.handleRegionsXLSX)
			gr.Get("/branches.csv", h.handleBranchesCSV)
			gr.Get("/branches.xlsx", h.handleBranchesXLSX)
			gr.Get("/progress.csv", h.handleProgressCSV)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
