package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/platform/httpx"
	"github.com/careportal/careportal/internal/shared"
	"github.com/careportal/careportal/internal/view"
)

// PermissionsHandler lists the effective capabilities of the caller.
type PermissionsHandler struct {
	logger    *slog.Logger
	evaluator *Evaluator
	templates *view.Engine
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, evaluator *Evaluator, templates *view.Engine) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, evaluator: evaluator, templates: templates}
}

// MountRoutes registers the HTML listing, relative to /account/permissions.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

// MountAPIRoutes registers the JSON listing, relative to /api.
func (h *PermissionsHandler) MountAPIRoutes(r chi.Router) {
	r.Get("/session/permissions", h.listPermissionsJSON)
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	label := "Guest"
	if p != nil {
		label = p.Role.DisplayName()
	}
	data := view.TemplateData{
		Title: "My permissions",
		Data: map[string]any{
			"RoleLabel":    label,
			"Capabilities": h.evaluator.Capabilities(p),
		},
	}
	if err := h.templates.RenderPage(w, r, http.StatusOK, "pages/permissions.html", data); err != nil {
		h.logger.Error("render permissions", slog.Any("error", err))
	}
}

type permissionsResponse struct {
	UserID        string   `json:"user_id"`
	Role          string   `json:"role"`
	Approved      bool     `json:"approved"`
	EmailVerified bool     `json:"email_verified"`
	Capabilities  []string `json:"capabilities"`
}

func (h *PermissionsHandler) listPermissionsJSON(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		UserID:        p.ID,
		Role:          p.Role.String(),
		Approved:      p.Approved,
		EmailVerified: p.EmailVerified,
		Capabilities:  h.evaluator.Capabilities(p),
	})
}
