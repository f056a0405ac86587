package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/shared"
)

// Exports are capped per principal; each one can pull MaxExportRows rows of
// protected data.
const (
	exportLimit  = 10
	exportWindow = time.Minute
)

// MountRoutes registers the timeline and its CSV export, relative to /audit.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.With(h.gate.RequireAny(shared.PermAuditView)).Get("/", h.handleTimeline)
	r.With(
		h.gate.RequireAny(shared.PermAuditExport),
		httprate.Limit(exportLimit, exportWindow,
			httprate.WithKeyFuncs(exportKey),
			httprate.WithLimitHandler(tooManyExports),
		),
	).Get("/export.csv", h.handleExport)
}

// exportKey buckets by principal, falling back to the client IP.
func exportKey(r *http.Request) (string, error) {
	if p := auth.PrincipalFromContext(r.Context()); p != nil && p.ID != "" {
		return "user:" + p.ID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func tooManyExports(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Retry-After", "60")
	http.Error(w, "export limit reached, retry in a minute", http.StatusTooManyRequests)
}
