package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/careportal/careportal/internal/view"
)

// Handler renders the role table for administrators.
type Handler struct {
	logger    *slog.Logger
	registry  *Registry
	templates *view.Engine
	gate      func(http.Handler) http.Handler
}

// NewHandler builds Handler instance. gate restricts the routes to principals
// allowed to view the role table.
func NewHandler(logger *slog.Logger, registry *Registry, templates *view.Engine, gate func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, registry: registry, templates: templates, gate: gate}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.gate != nil {
			r.Use(h.gate)
		}
		r.Get("/", h.listRoles)
	})
}

type roleRow struct {
	Name        string
	Label       string
	Description string
	Fallback    string
	Prefixes    []string
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	routes := h.registry.Routes()
	rows := make([]roleRow, 0, len(routes))
	for _, route := range routes {
		rows = append(rows, roleRow{
			Name:        route.Role.String(),
			Label:       route.Role.DisplayName(),
			Description: route.Description,
			Fallback:    route.Fallback,
			Prefixes:    route.Prefixes,
		})
	}
	data := view.TemplateData{Title: "Roles", Data: map[string]any{"Roles": rows}}
	if err := h.templates.RenderPage(w, r, http.StatusOK, "pages/roles.html", data); err != nil {
		h.logger.Error("render roles", slog.Any("error", err))
	}
}
