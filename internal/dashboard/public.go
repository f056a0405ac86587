package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/careportal/careportal/internal/view"
)

// PublicPage is a page reachable without signing in.
type PublicPage struct {
	Path  string
	Title string
	Body  string
}

// PublicPages lists the informational pages. The login form is served by the
// auth handler.
func PublicPages() []PublicPage {
	return []PublicPage{
		{Path: "/", Title: "Welcome to CarePortal", Body: "Book appointments, message your care team and review your records in one place."},
		{Path: "/register", Title: "Create an account", Body: "Registration opens through your care provider. Ask your clinic for an invitation link."},
		{Path: "/forgot-password", Title: "Forgot password", Body: "Contact support to receive a password reset link at your registered email address."},
		{Path: "/reset-password", Title: "Reset password", Body: "Follow the link in your reset email to choose a new password."},
		{Path: "/verify-email", Title: "Verify your email", Body: "Open the verification link we sent to confirm your email address."},
		{Path: "/terms", Title: "Terms of service", Body: "Use of CarePortal is subject to the terms agreed with your care provider."},
		{Path: "/privacy", Title: "Privacy notice", Body: "Protected health information is handled under HIPAA. Sessions end automatically after a period of inactivity."},
		{Path: "/about", Title: "About CarePortal", Body: "CarePortal connects patients, caregivers and care teams."},
	}
}

// PublicHandler renders the informational pages.
type PublicHandler struct {
	logger    *slog.Logger
	templates *view.Engine
	pages     []PublicPage
}

// NewPublicHandler constructs a PublicHandler.
func NewPublicHandler(logger *slog.Logger, templates *view.Engine, pages []PublicPage) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{logger: logger, templates: templates, pages: pages}
}

// MountRoutes registers every public page.
func (h *PublicHandler) MountRoutes(r chi.Router) {
	for _, page := range h.pages {
		r.Get(page.Path, h.render(page))
	}
}

func (h *PublicHandler) render(page PublicPage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := view.TemplateData{Title: page.Title, Data: map[string]string{"Body": page.Body}}
		if err := h.templates.RenderPage(w, r, http.StatusOK, "pages/public.html", data); err != nil {
			h.logger.Error("render public page", slog.String("path", page.Path), slog.Any("error", err))
		}
	}
}
