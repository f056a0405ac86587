// Package guard is the edge interceptor every page request passes through. It
// classifies the path, authenticates the request, enforces the idle budget and
// the role namespaces, and is the only writer of the request principal.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/jonboulle/clockwork"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/observability"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/session"
	"github.com/careportal/careportal/internal/shared"
)

// Redirect targets.
const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
)

// Decision labels reported to metrics.
const (
	DecisionAsset          = "asset"
	DecisionPublic         = "public"
	DecisionPublicRedirect = "public_redirect"
	DecisionPublicExpired  = "public_expired"
	DecisionLogin          = "login"
	DecisionExpired        = "expired"
	DecisionUnauthorized   = "unauthorized"
	DecisionAllow          = "allow"
	DecisionAPIDenied      = "api_denied"
	DecisionAPIExpired     = "api_expired"
	DecisionAPIAllow       = "api_allow"
)

// Config wires the guard.
type Config struct {
	Registry  *roles.Registry
	Service   *auth.Service
	Artifacts *session.Artifacts
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Audit     shared.AuditSink
	Metrics   *observability.Metrics
}

// Guard enforces authentication, idle freshness and role namespaces.
type Guard struct {
	registry  *roles.Registry
	service   *auth.Service
	artifacts *session.Artifacts
	clock     clockwork.Clock
	logger    *slog.Logger
	audit     shared.AuditSink
	metrics   *observability.Metrics
}

// New constructs a Guard.
func New(cfg Config) *Guard {
	g := &Guard{
		registry:  cfg.Registry,
		service:   cfg.Service,
		artifacts: cfg.Artifacts,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
	}
	if g.clock == nil {
		g.clock = clockwork.NewRealClock()
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.audit == nil {
		g.audit = shared.NopAuditSink{}
	}
	return g
}

type state int

const (
	stateAnonymous state = iota
	stateIdleExpired
	stateAuthenticated
)

// check is the result of authenticating one request.
type check struct {
	state     state
	principal *auth.Principal
	// stale is set when the request carried artifacts that no longer
	// authenticate anyone and should be cleared.
	stale bool
}

// Middleware guards page requests.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := Classify(r.URL.Path)
		if class == ClassAsset {
			g.decide(r, DecisionAsset)
			next.ServeHTTP(w, r)
			return
		}
		c := g.authenticate(w, r)
		if class == ClassPublic {
			g.public(w, r, next, c)
			return
		}
		g.protected(w, r, next, c)
	})
}

func (g *Guard) public(w http.ResponseWriter, r *http.Request, next http.Handler, c check) {
	switch c.state {
	case stateAuthenticated:
		g.decide(r, DecisionPublicRedirect)
		http.Redirect(w, r, g.fallback(r, c.principal), http.StatusSeeOther)
	case stateIdleExpired:
		g.expire(w, r, c.principal)
		g.decide(r, DecisionPublicExpired)
		next.ServeHTTP(w, r)
	default:
		if c.stale {
			g.artifacts.ClearAll(w)
		}
		g.decide(r, DecisionPublic)
		next.ServeHTTP(w, r)
	}
}

func (g *Guard) protected(w http.ResponseWriter, r *http.Request, next http.Handler, c check) {
	switch c.state {
	case stateAnonymous:
		if c.stale {
			g.artifacts.ClearAll(w)
		}
		g.decide(r, DecisionLogin)
		http.Redirect(w, r, LoginRedirect(r.URL), http.StatusSeeOther)
	case stateIdleExpired:
		g.expire(w, r, c.principal)
		g.decide(r, DecisionExpired)
		http.Redirect(w, r, LoginPath+"?session=expired", http.StatusSeeOther)
	default:
		p := c.principal
		if err := session.Stamp(r.Context(), w, g.artifacts.Marker(), g.service.Sessions(), p.SessionID, g.clock.Now()); err != nil {
			g.logger.Warn("guard stamp activity", slog.String("session", p.SessionID), slog.Any("error", err))
		}
		if !g.registry.Permits(p.Role, r.URL.Path) {
			g.record(r, shared.AuditAccessDenied, p)
			g.decide(r, DecisionUnauthorized)
			http.Redirect(w, r, UnauthorizedPath, http.StatusSeeOther)
			return
		}
		g.decide(r, DecisionAllow)
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), p)))
	}
}

// authenticate resolves the request credentials into a principal. Anything
// that fails to verify counts as anonymous. An access credential that merely
// expired is renewed when the refresh credential is present and the session
// is fresh.
func (g *Guard) authenticate(w http.ResponseWriter, r *http.Request) check {
	ctx := r.Context()
	creds := g.artifacts.Read(r)
	if creds.Empty() {
		return check{state: stateAnonymous}
	}
	p, err := g.service.Issuer().Parse(creds.Access)
	expired := errors.Is(err, shared.ErrCredentialExpired)
	if p == nil || (err != nil && !expired) {
		return check{state: stateAnonymous, stale: true}
	}

	active, err := g.service.Active(ctx, p.SessionID)
	if err != nil {
		g.logger.Error("guard session lookup", slog.String("session", p.SessionID), slog.Any("error", err))
		return check{state: stateAnonymous}
	}
	if !active {
		return check{state: stateAnonymous, stale: true}
	}

	last, err := session.LastSeen(ctx, r, g.artifacts.Marker(), g.service.Sessions(), p.SessionID)
	if err != nil {
		g.logger.Warn("guard activity mirror", slog.String("session", p.SessionID), slog.Any("error", err))
	}
	if !g.artifacts.Marker().Fresh(last, g.clock.Now()) {
		return check{state: stateIdleExpired, principal: p}
	}

	if expired {
		renewed, ok := g.renew(ctx, w, r, p, creds.Refresh)
		if !ok {
			return check{state: stateAnonymous, stale: true}
		}
		p = renewed
	}
	return check{state: stateAuthenticated, principal: p}
}

func (g *Guard) renew(ctx context.Context, w http.ResponseWriter, r *http.Request, p *auth.Principal, refresh string) (*auth.Principal, bool) {
	if refresh == "" {
		return nil, false
	}
	tokens, err := g.service.Refresh(ctx, p.SessionID, refresh)
	if err != nil {
		if errors.Is(err, shared.ErrSessionRevoked) {
			g.record(r, shared.AuditSessionRevoked, p)
		} else {
			g.logger.Warn("guard refresh", slog.String("session", p.SessionID), slog.Any("error", err))
		}
		return nil, false
	}
	g.artifacts.IssueCredentials(w, auth.CookieCredentials(tokens))
	g.record(r, shared.AuditRefresh, &tokens.Principal)
	return &tokens.Principal, true
}

// expire tears an idle session down: every client artifact is cleared and the
// server session revoked. A revoke failure is logged and does not stop the
// local teardown.
func (g *Guard) expire(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	g.artifacts.ClearAll(w)
	if p == nil {
		return
	}
	if err := g.service.Logout(r.Context(), p.SessionID); err != nil {
		g.logger.Warn("guard revoke expired session", slog.String("session", p.SessionID), slog.Any("error", err))
	}
	g.record(r, shared.AuditSessionExpired, p)
}

// fallback picks the landing page for an authenticated principal on a public
// path. The role marker cookie wins when it names a known role.
func (g *Guard) fallback(r *http.Request, p *auth.Principal) string {
	if c, err := r.Cookie(session.RoleCookie); err == nil {
		if role, ok := roles.Parse(c.Value); ok {
			return g.registry.FallbackPath(role)
		}
	}
	return g.registry.FallbackPath(p.Role)
}

func (g *Guard) record(r *http.Request, action string, p *auth.Principal) {
	event := shared.SessionEvent{
		Action:     action,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		At:         g.clock.Now().UTC(),
	}
	if p != nil {
		event.UserID = p.ID
		event.Role = p.Role.String()
		event.SessionID = p.SessionID
	}
	g.audit.RecordSessionEvent(r.Context(), event)
}

func (g *Guard) decide(r *http.Request, decision string) {
	g.metrics.GuardDecision(decision)
	if decision != DecisionAsset && decision != DecisionAllow && decision != DecisionPublic {
		g.logger.Debug("guard decision", slog.String("decision", decision), slog.String("path", r.URL.Path))
	}
}

// LoginRedirect builds the login URL preserving u's path and query as the
// return target.
func LoginRedirect(u *url.URL) string {
	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return LoginPath + "?" + url.Values{"redirect": {target}}.Encode()
}
