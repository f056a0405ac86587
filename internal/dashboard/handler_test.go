package dashboard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/nav"
	"github.com/careportal/careportal/internal/rbac"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/view"
)

func newRouter(t *testing.T) chi.Router {
	t.Helper()
	registry := roles.Default()
	evaluator := rbac.DefaultEvaluator()
	menu := nav.NewBuilder(nav.Items(), evaluator, registry)
	templates, err := view.NewEngine(menu.Decorator())
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(nil, templates, registry, menu, rbac.Middleware{Evaluator: evaluator}, "/admin/roles", "/audit", "/account/permissions").MountRoutes(r)
	NewPublicHandler(nil, templates, PublicPages()).MountRoutes(r)
	return r
}

func get(r http.Handler, path string, p *auth.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if p != nil {
		req = req.WithContext(auth.ContextWithPrincipal(req.Context(), p))
	}
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return res
}

func TestDashboardRedirectsToRoleFallback(t *testing.T) {
	r := newRouter(t)
	for _, role := range roles.All() {
		res := get(r, "/dashboard", &auth.Principal{Role: role})
		assert.Equal(t, http.StatusSeeOther, res.Code, role)
		assert.Equal(t, roles.Default().FallbackPath(role), res.Header().Get("Location"), role)
	}
}

func TestDashboardForUnknownRoleRendersGenericPage(t *testing.T) {
	r := newRouter(t)
	res := get(r, "/dashboard", &auth.Principal{Role: roles.Role("visitor")})
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Dashboard")
}

func TestRoleDashboardShowsTiles(t *testing.T) {
	r := newRouter(t)
	res := get(r, "/provider/dashboard", &auth.Principal{ID: "2", Role: roles.Provider, Approved: true, EmailVerified: true})
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Provider dashboard")
	assert.Contains(t, body, `href="/patients"`)
	assert.NotContains(t, body, "awaiting approval")
}

func TestRoleDashboardRejectsOtherRoles(t *testing.T) {
	r := newRouter(t)
	res := get(r, "/provider/dashboard", &auth.Principal{Role: roles.Patient})
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, rbac.UnauthorizedPath, res.Header().Get("Location"))
}

func TestRoleDashboardFollowsTheRegistryForSuperadmin(t *testing.T) {
	r := newRouter(t)
	registry := roles.Default()

	for _, role := range roles.All() {
		path := registry.FallbackPath(role)
		res := get(r, path, &auth.Principal{Role: roles.Superadmin})
		if registry.Permits(roles.Superadmin, path) {
			assert.Equal(t, http.StatusOK, res.Code, path)
			continue
		}
		assert.Equal(t, http.StatusSeeOther, res.Code, path)
		assert.Equal(t, rbac.UnauthorizedPath, res.Header().Get("Location"), path)
	}
	assert.Equal(t, http.StatusOK, get(r, "/admin/dashboard", &auth.Principal{Role: roles.Superadmin}).Code)
	assert.Equal(t, http.StatusSeeOther, get(r, "/patient/dashboard", &auth.Principal{Role: roles.Superadmin}).Code)
}

func TestUnapprovedBanner(t *testing.T) {
	r := newRouter(t)
	res := get(r, "/patient/dashboard", &auth.Principal{Role: roles.Patient})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "awaiting approval")
	assert.Contains(t, res.Body.String(), "verify your email")
}

func TestFeaturePagesAreGated(t *testing.T) {
	r := newRouter(t)

	res := get(r, "/records/2026/labs", &auth.Principal{Role: roles.Caregiver, Approved: true})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Medical records")
	assert.Contains(t, res.Body.String(), "2026/labs")

	res = get(r, "/trials", &auth.Principal{Role: roles.Patient})
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, rbac.UnauthorizedPath, res.Header().Get("Location"))
}

func TestUnauthorizedPage(t *testing.T) {
	r := newRouter(t)
	res := get(r, "/unauthorized", &auth.Principal{Role: roles.Patient})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "does not have access")
}

func TestPublicPages(t *testing.T) {
	r := newRouter(t)
	for _, page := range PublicPages() {
		res := get(r, page.Path, nil)
		assert.Equal(t, http.StatusOK, res.Code, page.Path)
		assert.Contains(t, res.Body.String(), page.Title, page.Path)
	}
}
