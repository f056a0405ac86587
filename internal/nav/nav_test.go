package nav

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/rbac"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/view"
)

func newBuilder() *Builder {
	return NewBuilder(Items(), rbac.DefaultEvaluator(), roles.Default())
}

func hrefs(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Href)
	}
	return out
}

func TestVisibleForPatient(t *testing.T) {
	b := newBuilder()
	p := &auth.Principal{ID: "1", Role: roles.Patient, Approved: true}

	got := hrefs(b.Visible(p, "/appointments/12"))
	assert.Contains(t, got, "/appointments")
	assert.Contains(t, got, "/records")
	assert.Contains(t, got, "/billing")
	assert.NotContains(t, got, "/patients")
	assert.NotContains(t, got, "/audit")
	assert.NotContains(t, got, "/admin/roles")

	for _, e := range b.Visible(p, "/appointments/12") {
		assert.Equal(t, e.Href == "/appointments", e.Active, e.Href)
	}
}

func TestUnapprovedAccountsSeeLess(t *testing.T) {
	b := newBuilder()
	p := &auth.Principal{ID: "2", Role: roles.Provider}

	got := hrefs(b.Visible(p, ""))
	assert.Contains(t, got, "/appointments")
	assert.NotContains(t, got, "/records")
	assert.NotContains(t, got, "/patients")

	p.Approved = true
	got = hrefs(b.Visible(p, ""))
	assert.Contains(t, got, "/patients")
}

func TestNamespacesHideForeignLinks(t *testing.T) {
	b := newBuilder()

	admin := hrefs(b.Visible(&auth.Principal{Role: roles.Admin, Approved: true}, ""))
	assert.Contains(t, admin, "/admin/roles")
	assert.NotContains(t, admin, "/audit", "admin holds audit.view but /audit belongs to compliance")

	compliance := hrefs(b.Visible(&auth.Principal{Role: roles.Compliance, Approved: true}, ""))
	assert.Contains(t, compliance, "/audit")
	assert.NotContains(t, compliance, "/users")
}

func TestAnonymousSeesNothing(t *testing.T) {
	b := newBuilder()
	for _, e := range b.Resolve(nil, "/") {
		assert.False(t, e.Show, e.Href)
	}
}

func TestTilesExcludeMenuOnlyEntries(t *testing.T) {
	b := newBuilder()
	tiles := hrefs(b.Tiles(&auth.Principal{Role: roles.Researcher, Approved: true}))
	assert.Equal(t, []string{"/messages", "/research", "/trials"}, tiles)
}

func TestDecorator(t *testing.T) {
	b := newBuilder()
	decorate := b.Decorator()

	req := httptest.NewRequest(http.MethodGet, "/trials", nil)
	data := view.TemplateData{CurrentPath: "/trials"}
	decorate(httptest.NewRecorder(), req, &data)
	assert.Empty(t, data.Nav)

	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), &auth.Principal{Role: roles.Pharmco, Approved: true}))
	decorate(httptest.NewRecorder(), req, &data)
	require.NotEmpty(t, data.Nav)
	var active []string
	for _, link := range data.Nav {
		if link.Active {
			active = append(active, link.Href)
		}
	}
	assert.Equal(t, []string{"/trials"}, active)
}

func TestFind(t *testing.T) {
	b := newBuilder()
	item, ok := b.Find("/audit")
	require.True(t, ok)
	assert.Equal(t, "Audit trail", item.Label)
	_, ok = b.Find("/nowhere")
	assert.False(t, ok)
}
