package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFEnsureTokenIssuesCookieOnce(t *testing.T) {
	m := NewCSRFManager("csrfsecret", false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	token := m.EnsureToken(rec, req)
	require.NotEmpty(t, token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CSRFCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	again := httptest.NewRequest(http.MethodGet, "/login", nil)
	again.AddCookie(cookies[0])
	rec2 := httptest.NewRecorder()
	assert.Equal(t, token, m.EnsureToken(rec2, again))
	assert.Empty(t, rec2.Result().Cookies())
}

func TestCSRFVerifyToken(t *testing.T) {
	m := NewCSRFManager("csrfsecret", false)
	token := m.generateToken()

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})

	assert.NoError(t, m.VerifyToken(req, token))
	assert.ErrorIs(t, m.VerifyToken(req, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(req, token+"x"), ErrCSRFTokenMismatch)

	bare := httptest.NewRequest(http.MethodPost, "/logout", nil)
	assert.ErrorIs(t, m.VerifyToken(bare, token), ErrCSRFTokenMissing)
}

func TestCSRFRejectsForeignSignature(t *testing.T) {
	forger := NewCSRFManager("other", false)
	m := NewCSRFManager("csrfsecret", false)
	forged := forger.generateToken()

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: forged})
	assert.ErrorIs(t, m.VerifyToken(req, forged), ErrCSRFTokenMismatch)
}
