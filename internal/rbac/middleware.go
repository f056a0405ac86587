package rbac

import (
	"log/slog"
	"net/http"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/shared"
)

// UnauthorizedPath is where authorization violations land.
const UnauthorizedPath = "/unauthorized"

// Middleware wires RBAC authorization helpers for HTTP handlers. A refused
// principal is sent to UnauthorizedPath; the guard has already dealt with
// anonymous callers, so this never redirects to login.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
	Audit     shared.AuditSink
}

// Require ensures the current principal satisfies req.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if m.Evaluator.CanAccess(p, req) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, p, req)
		})
	}
}

// RequireAny ensures the current principal holds at least one of the
// capabilities.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if len(normalized) == 0 || m.Evaluator.HasAny(p, normalized...) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, p, Requirement{Capability: normalized[0]})
		})
	}
}

// RequireRoles ensures the current principal has one of the roles.
func (m Middleware) RequireRoles(rs ...roles.Role) func(http.Handler) http.Handler {
	return m.Require(AnyRole(rs...))
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, p *auth.Principal, req Requirement) {
	event := shared.SessionEvent{
		Action:     shared.AuditAccessDenied,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Meta:       map[string]any{"capability": req.Capability},
	}
	if p != nil {
		event.UserID = p.ID
		event.Role = p.Role.String()
		event.SessionID = p.SessionID
	}
	if m.Logger != nil {
		m.Logger.Info("rbac denied", slog.String("path", r.URL.Path), slog.String("role", event.Role), slog.String("capability", req.Capability))
	}
	if m.Audit != nil {
		m.Audit.RecordSessionEvent(r.Context(), event)
	}
	http.Redirect(w, r, UnauthorizedPath, http.StatusSeeOther)
}
