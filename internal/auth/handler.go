package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/careportal/careportal/internal/platform/httpx"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/session"
	"github.com/careportal/careportal/internal/shared"
	"github.com/careportal/careportal/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	artifacts *session.Artifacts
	registry  *roles.Registry
	audit     shared.AuditSink
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, artifacts *session.Artifacts, registry *roles.Registry, audit shared.AuditSink) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if audit == nil {
		audit = shared.NopAuditSink{}
	}
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		artifacts: artifacts,
		registry:  registry,
		audit:     audit,
		validator: validator.New(),
	}
}

// MountRoutes registers page routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// MountAPIRoutes registers JSON session routes, relative to /api.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Post("/session/refresh", h.handleRefresh)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form     loginForm
	Errors   map[string]string
	Redirect string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	data := view.TemplateData{
		Title:  "Sign in",
		Notice: loginNotice(query),
		Data:   loginPageData{Redirect: SanitizeRedirect(query.Get("redirect"))},
	}
	if err := h.templates.RenderPage(w, r, http.StatusOK, "pages/login.html", data); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
	}
}

func loginNotice(query url.Values) *view.Notice {
	switch {
	case query.Get("session") == "expired":
		return &view.Notice{Kind: "warning", Message: "Your session expired. Please sign in again."}
	case query.Get("reason") == "timeout":
		return &view.Notice{Kind: "warning", Message: "You were signed out after a period of inactivity."}
	}
	return nil
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	redirect := SanitizeRedirect(r.PostFormValue("redirect"))

	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				errs[fieldErr.Field()] = fieldMessage(fieldErr)
			}
		}
	}

	if len(errs) == 0 {
		tokens, err := h.service.Login(r.Context(), form.Email, form.Password, ClientMeta{RemoteAddr: r.RemoteAddr, UserAgent: r.UserAgent()})
		if err == nil {
			now := h.service.Clock().Now()
			h.artifacts.Issue(w, CookieCredentials(tokens), now)
			h.record(r, shared.AuditLogin, &tokens.Principal)
			http.Redirect(w, r, h.landing(tokens.Principal.Role, redirect), http.StatusSeeOther)
			return
		}
		if errors.Is(err, shared.ErrInvalidCredentials) {
			errs["general"] = "Invalid email or password"
			h.audit.RecordSessionEvent(r.Context(), shared.SessionEvent{
				Action:     shared.AuditLoginFailed,
				Path:       r.URL.Path,
				RemoteAddr: r.RemoteAddr,
				UserAgent:  r.UserAgent(),
				Meta:       map[string]any{"email": strings.ToLower(form.Email)},
				At:         h.service.Clock().Now().UTC(),
			})
		} else {
			h.logger.Error("login", slog.Any("error", err))
			errs["general"] = "Sign in is unavailable, please try again"
		}
	}

	data := view.TemplateData{
		Title: "Sign in",
		Data:  loginPageData{Form: loginForm{Email: form.Email}, Errors: errs, Redirect: redirect},
	}
	if err := h.templates.RenderPage(w, r, http.StatusBadRequest, "pages/login.html", data); err != nil {
		h.logger.Error("render login invalid", slog.Any("error", err))
	}
}

func fieldMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	}
	return err.Error()
}

// landing picks the post-login destination: the requested target when the
// role may see it, otherwise the role fallback.
func (h *Handler) landing(role roles.Role, redirect string) string {
	fallback := h.registry.FallbackPath(role)
	if redirect == "" {
		return fallback
	}
	path := redirect
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !h.registry.Permits(role, path) {
		return fallback
	}
	return redirect
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	creds := h.artifacts.Read(r)
	principal, _ := h.service.Issuer().Parse(creds.Access)
	if principal != nil {
		if err := h.service.Logout(r.Context(), principal.SessionID); err != nil {
			h.logger.Warn("logout", slog.String("session", principal.SessionID), slog.Any("error", err))
		}
		h.record(r, shared.AuditLogout, principal)
	}
	h.artifacts.ClearAll(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type refreshResponse struct {
	AccessExpiresAt string `json:"access_expires_at"`
	Role            string `json:"role"`
	Fallback        string `json:"fallback"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creds := h.artifacts.Read(r)
	principal, err := h.service.Issuer().Parse(creds.Access)
	if principal == nil || (err != nil && !errors.Is(err, shared.ErrCredentialExpired)) || creds.Refresh == "" {
		h.artifacts.ClearAll(w)
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	clock := h.service.Clock()
	last, err := session.LastSeen(ctx, r, h.artifacts.Marker(), h.service.Sessions(), principal.SessionID)
	if err != nil {
		h.logger.Warn("activity mirror", slog.Any("error", err))
	}
	if !h.artifacts.Marker().Fresh(last, clock.Now()) {
		if err := h.service.Logout(ctx, principal.SessionID); err != nil {
			h.logger.Warn("revoke expired session", slog.Any("error", err))
		}
		h.record(r, shared.AuditSessionExpired, principal)
		h.artifacts.ClearAll(w)
		httpx.RespondError(w, shared.ErrSessionExpired)
		return
	}
	tokens, err := h.service.Refresh(ctx, principal.SessionID, creds.Refresh)
	if err != nil {
		if errors.Is(err, shared.ErrSessionRevoked) {
			h.record(r, shared.AuditSessionRevoked, principal)
		} else {
			h.logger.Error("refresh", slog.Any("error", err))
		}
		h.artifacts.ClearAll(w)
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	h.artifacts.IssueCredentials(w, CookieCredentials(tokens))
	h.record(r, shared.AuditRefresh, &tokens.Principal)
	httpx.JSON(w, http.StatusOK, refreshResponse{
		AccessExpiresAt: tokens.AccessExpiresAt.UTC().Format(time.RFC3339),
		Role:            tokens.Principal.Role.String(),
		Fallback:        h.registry.FallbackPath(tokens.Principal.Role),
	})
}

func (h *Handler) record(r *http.Request, action string, p *Principal) {
	event := shared.SessionEvent{
		Action:     action,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		At:         h.service.Clock().Now().UTC(),
	}
	if p != nil {
		event.UserID = p.ID
		event.Role = p.Role.String()
		event.SessionID = p.SessionID
	}
	h.audit.RecordSessionEvent(r.Context(), event)
}

// CookieCredentials converts tokens into the cookie credential set.
func CookieCredentials(t Tokens) session.Credentials {
	return session.Credentials{
		Access:  t.Access,
		Refresh: t.Refresh,
		Role:    t.Principal.Role.String(),
	}
}

// SanitizeRedirect accepts only local absolute paths and returns "" for
// anything that could leave the site.
func SanitizeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return ""
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	if u.Path == "/login" {
		return ""
	}
	return target
}
