// Package audithttp serves the session audit timeline to compliance staff.
package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/careportal/careportal/internal/audit"
	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/rbac"
	"github.com/careportal/careportal/internal/shared"
	"github.com/careportal/careportal/internal/view"
)

// TimelineService reads the audit trail.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the session audit timeline.
type Handler struct {
	logger    *slog.Logger
	service   TimelineService
	templates *view.Engine
	gate      rbac.Middleware
	clock     clockwork.Clock
	validate  *validator.Validate
}

// NewHandler constructs the audit handler. gate authorizes each route.
func NewHandler(logger *slog.Logger, service TimelineService, templates *view.Engine, gate rbac.Middleware, clock clockwork.Clock) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		gate:      gate,
		clock:     clock,
		validate:  newFilterValidator(),
	}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r.URL.Query())
	if err != nil {
		h.fail(w, "parse audit filters", err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, "load audit timeline", err)
		return
	}
	canExport := h.gate.Evaluator != nil &&
		h.gate.Evaluator.HasAny(auth.PrincipalFromContext(r.Context()), shared.PermAuditExport)
	data := view.TemplateData{
		Title: "Session audit",
		Data:  buildViewModel(filters, result, canExport),
	}
	if err := h.templates.RenderPage(w, r, http.StatusOK, "pages/audit_timeline.html", data); err != nil {
		h.logger.Error("render audit timeline", slog.Any("error", err))
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r.URL.Query())
	if err != nil {
		h.fail(w, "parse audit filters", err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.fail(w, "export audit timeline", err)
		return
	}
	body, err := audit.WriteCSV(rows)
	if err != nil {
		h.fail(w, "encode audit csv", err)
		return
	}
	p := auth.PrincipalFromContext(r.Context())
	h.logger.Info("audit export",
		slog.String("subject", principalID(p)),
		slog.Int("rows", len(rows)),
		slog.String("from", filters.From.Format(dateLayout)),
		slog.String("to", filters.To.Format(dateLayout)),
	)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="session-audit.csv"`)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write audit csv", slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	var invalid validationError
	if errors.As(err, &invalid) {
		http.Error(w, "invalid "+invalid.field, http.StatusBadRequest)
		return
	}
	h.logger.Error(message, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func principalID(p *auth.Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}
