package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/dashboard"
	"github.com/careportal/careportal/internal/guard"
	"github.com/careportal/careportal/internal/idle"
	"github.com/careportal/careportal/internal/nav"
	"github.com/careportal/careportal/internal/observability"
	"github.com/careportal/careportal/internal/rbac"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/session"
	"github.com/careportal/careportal/internal/shared"
	"github.com/careportal/careportal/internal/view"
	"github.com/careportal/careportal/jobs"
	_ "github.com/careportal/careportal/testing"
)

const testPassword = "correct-horse"

type memUsers map[string]*auth.User

func (m memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if u, ok := m[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (m memUsers) FindByID(_ context.Context, id int64) (*auth.User, error) {
	for _, u := range m {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &Config{
		AppEnv:             "test",
		AppRequestTimeout:  5 * time.Second,
		IdleTimeout:        15 * time.Minute,
		IdleWarning:        2 * time.Minute,
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    24 * time.Hour,
		RateLimitPerMinute: 1000,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	users := memUsers{
		"pat@careportal.test": {ID: 1, Email: "pat@careportal.test", PasswordHash: string(hash), Role: roles.Patient, IsActive: true, Approved: true, EmailVerified: true},
	}

	clock := clockwork.NewRealClock()
	registry := roles.Default()
	store := session.NewStore(client, cfg.RefreshTokenTTL, cfg.IdleTimeout)
	service := auth.NewService(users, store, auth.NewIssuer("router-secret", cfg.AccessTokenTTL, clock), clock)
	artifacts := session.NewArtifacts(session.NewMarker(cfg.IdleTimeout, false), cfg.RefreshTokenTTL, false)
	metrics := observability.NewMetrics()
	csrf := shared.NewCSRFManager("csrf-secret", false)
	evaluator := rbac.DefaultEvaluator()
	gate := rbac.Middleware{Evaluator: evaluator, Logger: logger}
	menu := nav.NewBuilder(nav.Items(), evaluator, registry)

	templates, err := view.NewEngine(append(Decorators(cfg, csrf), menu.Decorator())...)
	require.NoError(t, err)

	return NewRouter(RouterParams{
		Logger:      logger,
		Config:      cfg,
		CSRFManager: csrf,
		Guard: guard.New(guard.Config{
			Registry:  registry,
			Service:   service,
			Artifacts: artifacts,
			Clock:     clock,
			Logger:    logger,
			Metrics:   metrics,
		}),
		RBAC:               gate,
		Metrics:            metrics,
		AuthHandler:        auth.NewHandler(logger, service, templates, artifacts, registry, nil),
		PublicHandler:      dashboard.NewPublicHandler(logger, templates, dashboard.PublicPages()),
		DashboardHandler:   dashboard.NewHandler(logger, templates, registry, menu, gate, DedicatedPaths...),
		RolesHandler:       roles.NewHandler(logger, registry, templates, gate.RequireAny(shared.PermRolesView)),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, evaluator, templates),
		IdleHandler: idle.NewHandler(idle.HandlerConfig{
			Budget: cfg.IdleTimeout,
			Window: cfg.IdleWarning,
			Store:  store,
			Auth:   service,
			Clock:  clock,
			Logger: logger,
		}),
		JobHandler: jobs.NewHandler(nil, logger),
	})
}

type browser struct {
	t       *testing.T
	handler http.Handler
	jar     map[string]*http.Cookie
}

func newBrowser(t *testing.T, h http.Handler) *browser {
	return &browser{t: t, handler: h, jar: make(map[string]*http.Cookie)}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.jar {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.jar, c.Name)
			continue
		}
		b.jar[c.Name] = c
	}
	return rec
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (b *browser) post(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) csrf() string {
	if c, ok := b.jar[shared.CSRFCookieName]; ok {
		return c.Value
	}
	return ""
}

func (b *browser) login() {
	b.t.Helper()
	require.Equal(b.t, http.StatusOK, b.get("/login").Code)
	res := b.post("/login", url.Values{
		"email":              {"pat@careportal.test"},
		"password":           {testPassword},
		shared.CSRFFormField: {b.csrf()},
	})
	require.Equal(b.t, http.StatusSeeOther, res.Code)
	require.Equal(b.t, "/patient/dashboard", res.Header().Get("Location"))
}

func TestRouterHealthAndStatic(t *testing.T) {
	b := newBrowser(t, newTestRouter(t))

	assert.Equal(t, http.StatusOK, b.get("/healthz").Code)
	res := b.get("/static/js/idle.js")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "public, max-age=3600", res.Header().Get("Cache-Control"))
	assert.Equal(t, http.StatusOK, b.get("/metrics").Code)
}

func TestRouterAnonymousIsSentToLogin(t *testing.T) {
	b := newBrowser(t, newTestRouter(t))

	res := b.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login?redirect=%2Fdashboard", res.Header().Get("Location"))

	assert.Equal(t, http.StatusOK, b.get("/privacy").Code)
	assert.Equal(t, http.StatusUnauthorized, b.get("/api/session/permissions").Code)
}

func TestRouterLoginFlow(t *testing.T) {
	b := newBrowser(t, newTestRouter(t))
	b.login()

	res := b.get("/patient/dashboard")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, idle.WatchPath)
	assert.Contains(t, body, `data-idle-ms="900000"`)
	assert.Contains(t, body, `data-status-path="`+idle.StatusPath+`"`)
	assert.Contains(t, body, `id="idle-signout"`)
	assert.Contains(t, body, "/appointments")

	res = b.get("/api/session/permissions")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"role":"patient"`)

	res = b.get("/login")
	assert.Equal(t, http.StatusSeeOther, res.Code, "signed-in users skip the login page")
}

func TestRouterIdleAgentRecoversDroppedChannel(t *testing.T) {
	b := newBrowser(t, newTestRouter(t))

	res := b.get("/static/js/idle.js")
	require.Equal(t, http.StatusOK, res.Code)
	agent := res.Body.String()
	for _, want := range []string{"socket.onclose", "scheduleReconnect", "armBackstop", "budgetSpent", "handshakeFailed", "dataset.idleMs", `case "config"`, idle.TimeoutRedirect} {
		assert.Contains(t, agent, want)
	}

	b.login()
	require.Equal(t, http.StatusOK, b.get(idle.StatusPath).Code)
	require.Equal(t, http.StatusSeeOther, b.post("/logout", url.Values{shared.CSRFFormField: {b.csrf()}}).Code)
	assert.Equal(t, http.StatusUnauthorized, b.get(idle.StatusPath).Code, "a failed handshake is resolved through the status path")
}

func TestRouterGatesDedicatedPages(t *testing.T) {
	b := newBrowser(t, newTestRouter(t))
	b.login()

	for _, target := range []string{"/jobs/health", "/admin/roles", "/audit"} {
		res := b.get(target)
		assert.Equal(t, http.StatusSeeOther, res.Code, target)
		assert.Equal(t, guard.UnauthorizedPath, res.Header().Get("Location"), target)
	}
}

func TestRouterRequiresCSRFOnUnsafeMethods(t *testing.T) {
	b := newBrowser(t, newTestRouter(t))
	b.login()

	res := b.post("/logout", url.Values{})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = b.post("/logout", url.Values{shared.CSRFFormField: {b.csrf()}})
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login", res.Header().Get("Location"))

	res = b.get("/patient/dashboard")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.True(t, strings.HasPrefix(res.Header().Get("Location"), "/login"))
}
