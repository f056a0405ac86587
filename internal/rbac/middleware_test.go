package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/shared"
)

type captureSink struct {
	events []shared.SessionEvent
}

func (c *captureSink) RecordSessionEvent(_ context.Context, e shared.SessionEvent) {
	c.events = append(c.events, e)
}

func serveWith(mw func(http.Handler) http.Handler, p *auth.Principal) *httptest.ResponseRecorder {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	if p != nil {
		req = req.WithContext(auth.ContextWithPrincipal(req.Context(), p))
	}
	res := httptest.NewRecorder()
	mw(ok).ServeHTTP(res, req)
	return res
}

func TestMiddlewareRequire(t *testing.T) {
	sink := &captureSink{}
	m := Middleware{Evaluator: DefaultEvaluator(), Audit: sink}

	res := serveWith(m.Require(Capability(shared.PermAuditView)), principal(roles.Compliance))
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = serveWith(m.Require(Capability(shared.PermAuditView)), principal(roles.Patient))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, UnauthorizedPath, res.Header().Get("Location"))
	if assert.Len(t, sink.events, 1) {
		assert.Equal(t, shared.AuditAccessDenied, sink.events[0].Action)
		assert.Equal(t, "patient", sink.events[0].Role)
		assert.Equal(t, "/audit", sink.events[0].Path)
	}
}

func TestMiddlewareNeverRedirectsToLogin(t *testing.T) {
	m := Middleware{Evaluator: DefaultEvaluator()}

	res := serveWith(m.RequireAny(shared.PermAuditView), nil)
	assert.Equal(t, UnauthorizedPath, res.Header().Get("Location"))
}

func TestMiddlewareRequireAnyAndRoles(t *testing.T) {
	m := Middleware{Evaluator: DefaultEvaluator()}

	res := serveWith(m.RequireAny(shared.PermUsersManage, shared.PermAuditExport), principal(roles.Compliance))
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = serveWith(m.RequireAny(), principal(roles.Patient))
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = serveWith(m.RequireRoles(roles.Admin, roles.Compliance), principal(roles.Admin))
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = serveWith(m.RequireRoles(roles.Admin), principal(roles.Provider))
	assert.Equal(t, http.StatusSeeOther, res.Code)

	res = serveWith(m.RequireRoles(roles.Admin), principal(roles.Superadmin))
	assert.Equal(t, http.StatusNoContent, res.Code)
}
