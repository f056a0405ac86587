// Package dashboard serves the role dashboards and the pages the access core
// needs end to end: shared feature shells, the unauthorized page and the
// public pages.
package dashboard

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/nav"
	"github.com/careportal/careportal/internal/rbac"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/view"
)

// Handler renders dashboards and feature shells.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	registry  *roles.Registry
	menu      *nav.Builder
	rbac      rbac.Middleware
	// skip lists nav hrefs served by dedicated handlers.
	skip map[string]struct{}
}

// NewHandler constructs the dashboard handler. skip names nav entries mounted
// elsewhere.
func NewHandler(logger *slog.Logger, templates *view.Engine, registry *roles.Registry, menu *nav.Builder, mw rbac.Middleware, skip ...string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger, templates: templates, registry: registry, menu: menu, rbac: mw, skip: make(map[string]struct{})}
	for _, href := range append([]string{"/dashboard"}, skip...) {
		h.skip[href] = struct{}{}
	}
	return h
}

// MountRoutes registers dashboard and feature routes on protected router r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.landing)
	r.Get("/unauthorized", h.unauthorized)
	for _, role := range roles.All() {
		r.Get(h.registry.FallbackPath(role), h.roleDashboard(role))
	}
	for _, item := range h.menu.Items() {
		if _, ok := h.skip[item.Href]; ok {
			continue
		}
		page := h.feature(item)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(item.Requirement))
			r.Get(item.Href, page)
			r.Get(item.Href+"/*", page)
		})
	}
}

type tile struct {
	Label string
	Href  string
}

type dashboardData struct {
	RoleLabel     string
	Approved      bool
	EmailVerified bool
	Tiles         []tile
}

func (h *Handler) landing(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	var role roles.Role
	if p != nil {
		role = p.Role
	}
	if target := h.registry.FallbackPath(role); target != "/dashboard" {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	h.render(w, r, "Dashboard", p)
}

func (h *Handler) roleDashboard(role roles.Role) http.HandlerFunc {
	title := role.DisplayName() + " dashboard"
	return func(w http.ResponseWriter, r *http.Request) {
		p := auth.PrincipalFromContext(r.Context())
		if p == nil || !h.registry.Permits(p.Role, r.URL.Path) {
			http.Redirect(w, r, rbac.UnauthorizedPath, http.StatusSeeOther)
			return
		}
		h.render(w, r, title, p)
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, title string, p *auth.Principal) {
	data := dashboardData{RoleLabel: "Guest"}
	if p != nil {
		data.RoleLabel = p.Role.DisplayName()
		data.Approved = p.Approved
		data.EmailVerified = p.EmailVerified
		for _, e := range h.menu.Tiles(p) {
			data.Tiles = append(data.Tiles, tile{Label: e.Label, Href: e.Href})
		}
	}
	if err := h.templates.RenderPage(w, r, http.StatusOK, "pages/dashboard.html", view.TemplateData{Title: title, Data: data}); err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
	}
}

func (h *Handler) feature(item nav.Item) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subpath := strings.TrimPrefix(r.URL.Path, item.Href)
		data := view.TemplateData{
			Title: item.Label,
			Data: map[string]any{
				"Summary": item.Label + " is provided by the clinical services API.",
				"Subpath": strings.TrimPrefix(subpath, "/"),
			},
		}
		if err := h.templates.RenderPage(w, r, http.StatusOK, "pages/feature.html", data); err != nil {
			h.logger.Error("render feature", slog.String("href", item.Href), slog.Any("error", err))
		}
	}
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.RenderPage(w, r, http.StatusForbidden, "pages/unauthorized.html", view.TemplateData{Title: "Access denied"}); err != nil {
		h.logger.Error("render unauthorized", slog.Any("error", err))
	}
}
