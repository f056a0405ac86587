package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/session"
	"github.com/careportal/careportal/internal/shared"
	"github.com/careportal/careportal/internal/view"
)

type handlerFixture struct {
	*fixture
	router    chi.Router
	artifacts *session.Artifacts
	sink      *recordingSink
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newFixture(t)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	artifacts := session.NewArtifacts(session.NewMarker(15*time.Minute, false), 7*24*time.Hour, false)
	sink := &recordingSink{}
	handler := auth.NewHandler(nil, f.service, templates, artifacts, roles.Default(), sink)

	r := chi.NewRouter()
	handler.MountRoutes(r)
	r.Route("/api", handler.MountAPIRoutes)
	return &handlerFixture{fixture: f, router: r, artifacts: artifacts, sink: sink}
}

func (h *handlerFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	return res
}

func postLogin(email, password, redirect string) *http.Request {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	form.Set("redirect", redirect)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func cookies(res *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range res.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func withCookies(req *http.Request, res *httptest.ResponseRecorder) *http.Request {
	for _, c := range res.Result().Cookies() {
		if c.MaxAge >= 0 {
			req.AddCookie(c)
		}
	}
	return req
}

func TestLoginPage(t *testing.T) {
	h := newHandlerFixture(t)

	res := h.serve(httptest.NewRequest(http.MethodGet, "/login?redirect=%2Fappointments", nil))
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, `value="/appointments"`)
}

func TestLoginPageNotices(t *testing.T) {
	h := newHandlerFixture(t)

	res := h.serve(httptest.NewRequest(http.MethodGet, "/login?session=expired", nil))
	assert.Contains(t, res.Body.String(), "Your session expired")

	res = h.serve(httptest.NewRequest(http.MethodGet, "/login?reason=timeout", nil))
	assert.Contains(t, res.Body.String(), "period of inactivity")

	res = h.serve(httptest.NewRequest(http.MethodGet, "/login?redirect=https%3A%2F%2Fevil.example", nil))
	assert.NotContains(t, res.Body.String(), "evil.example")
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHandlerFixture(t)

	res := h.serve(postLogin("pat@careportal.test", "wrong-password", ""))
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Invalid email or password")
	assert.NotContains(t, cookies(res), session.AccessCookie)
	assert.Equal(t, []string{shared.AuditLoginFailed}, h.sink.actions())
}

func TestLoginValidation(t *testing.T) {
	h := newHandlerFixture(t)

	res := h.serve(postLogin("not-an-email", "short", ""))
	assert.Equal(t, http.StatusBadRequest, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Enter a valid email address")
	assert.Contains(t, body, "Password must be at least 8 characters")
	assert.Empty(t, h.sink.events)
}

func TestLoginIssuesArtifacts(t *testing.T) {
	h := newHandlerFixture(t)

	res := h.serve(postLogin("pat@careportal.test", testPassword, ""))
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/patient/dashboard", res.Header().Get("Location"))

	set := cookies(res)
	for _, name := range []string{session.AccessCookie, session.RefreshCookie, session.RoleCookie, session.MarkerCookie} {
		require.Contains(t, set, name)
		assert.NotEmpty(t, set[name].Value)
		assert.True(t, set[name].HttpOnly)
	}
	assert.Equal(t, "patient", set[session.RoleCookie].Value)
	assert.Equal(t, 900, set[session.MarkerCookie].MaxAge)
	assert.Equal(t, []string{shared.AuditLogin}, h.sink.actions())
}

func TestLoginHonoursRedirectWithinRole(t *testing.T) {
	h := newHandlerFixture(t)

	res := h.serve(postLogin("pat@careportal.test", testPassword, "/appointments?view=week"))
	assert.Equal(t, "/appointments?view=week", res.Header().Get("Location"))

	res = h.serve(postLogin("pat@careportal.test", testPassword, "/admin/users"))
	assert.Equal(t, "/patient/dashboard", res.Header().Get("Location"), "foreign namespaces fall back to the dashboard")

	res = h.serve(postLogin("pat@careportal.test", testPassword, "//evil.example/x"))
	assert.Equal(t, "/patient/dashboard", res.Header().Get("Location"))
}

func TestLogoutTwice(t *testing.T) {
	h := newHandlerFixture(t)
	login := h.serve(postLogin("doc@careportal.test", testPassword, ""))
	require.Equal(t, http.StatusSeeOther, login.Code)
	access := cookies(login)[session.AccessCookie].Value
	p, err := h.issuer.Parse(access)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		req := withCookies(httptest.NewRequest(http.MethodPost, "/logout", nil), login)
		res := h.serve(req)
		require.Equal(t, http.StatusSeeOther, res.Code)
		assert.Equal(t, "/login", res.Header().Get("Location"))
		set := cookies(res)
		for _, name := range []string{session.AccessCookie, session.RefreshCookie, session.RoleCookie, session.MarkerCookie} {
			require.Contains(t, set, name)
			assert.Empty(t, set[name].Value)
		}
	}

	active, err := h.service.Active(t.Context(), p.SessionID)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestLogoutWithoutCredentials(t *testing.T) {
	h := newHandlerFixture(t)
	res := h.serve(httptest.NewRequest(http.MethodPost, "/logout", nil))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Empty(t, h.sink.events)
}

func TestRefreshEndpoint(t *testing.T) {
	h := newHandlerFixture(t)
	login := h.serve(postLogin("pat@careportal.test", testPassword, ""))
	require.Equal(t, http.StatusSeeOther, login.Code)

	principal, err := h.service.Issuer().Parse(cookies(login)[session.AccessCookie].Value)
	require.NoError(t, err)

	h.clock.Advance(16 * time.Minute)
	// Keep the session fresh while the access credential lapses.
	require.NoError(t, h.store.Touch(context.Background(), principal.SessionID, h.clock.Now()))
	req := httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil)
	withCookies(req, login)

	res := h.serve(req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Contains(t, res.Body.String(), `"fallback":"/patient/dashboard"`)
	set := cookies(res)
	assert.NotEqual(t, cookies(login)[session.RefreshCookie].Value, set[session.RefreshCookie].Value)
	assert.NotContains(t, set, session.MarkerCookie, "renewal does not count as activity")
}

func TestRefreshEndpointRejectsIdleSession(t *testing.T) {
	h := newHandlerFixture(t)
	login := h.serve(postLogin("pat@careportal.test", testPassword, ""))
	require.Equal(t, http.StatusSeeOther, login.Code)

	h.clock.Advance(20 * time.Minute)
	res := h.serve(withCookies(httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil), login))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), "Session Expired")
	assert.Contains(t, h.sink.actions(), shared.AuditSessionExpired)
}

func TestRefreshEndpointWithoutCredentials(t *testing.T) {
	h := newHandlerFixture(t)
	res := h.serve(httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestSanitizeRedirect(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"/appointments":        "/appointments",
		"/records?id=4#notes":  "/records?id=4#notes",
		"https://evil.example": "",
		"//evil.example":       "",
		"/\\evil.example":      "",
		"javascript:alert(1)":  "",
		"/login?redirect=/x":   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, auth.SanitizeRedirect(in), in)
	}
}
