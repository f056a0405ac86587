package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/shared"
)

func TestLoginOpensSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tokens, err := f.service.Login(ctx, "PAT@careportal.test", testPassword, auth.ClientMeta{RemoteAddr: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.Access)
	assert.NotEmpty(t, tokens.Refresh)
	assert.Equal(t, roles.Patient, tokens.Principal.Role)

	active, err := f.service.Active(ctx, tokens.Principal.SessionID)
	require.NoError(t, err)
	assert.True(t, active)

	_, ok, err := f.store.LastActivity(ctx, tokens.Principal.SessionID)
	require.NoError(t, err)
	assert.True(t, ok, "login stamps the activity mirror")

	p, err := f.issuer.Parse(tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, tokens.Principal.SessionID, p.SessionID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Login(ctx, "pat@careportal.test", "wrong-password", auth.ClientMeta{})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = f.service.Login(ctx, "nobody@careportal.test", testPassword, auth.ClientMeta{})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = f.service.Login(ctx, "gone@careportal.test", testPassword, auth.ClientMeta{})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials, "inactive accounts cannot sign in")
}

func TestRefreshRotatesAndDetectsReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens, err := f.service.Login(ctx, "doc@careportal.test", testPassword, auth.ClientMeta{})
	require.NoError(t, err)
	sid := tokens.Principal.SessionID

	renewed, err := f.service.Refresh(ctx, sid, tokens.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.Refresh, renewed.Refresh)
	assert.Equal(t, sid, renewed.Principal.SessionID)

	_, err = f.service.Refresh(ctx, sid, tokens.Refresh)
	assert.ErrorIs(t, err, shared.ErrSessionRevoked)

	_, err = f.service.Refresh(ctx, sid, renewed.Refresh)
	assert.ErrorIs(t, err, shared.ErrSessionRevoked, "replay revokes the whole session")
}

func TestRefreshRevokesDeactivatedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens, err := f.service.Login(ctx, "pat@careportal.test", testPassword, auth.ClientMeta{})
	require.NoError(t, err)

	f.repo.users["pat@careportal.test"].IsActive = false
	_, err = f.service.Refresh(ctx, tokens.Principal.SessionID, tokens.Refresh)
	assert.ErrorIs(t, err, shared.ErrSessionRevoked)

	active, err := f.service.Active(ctx, tokens.Principal.SessionID)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens, err := f.service.Login(ctx, "pat@careportal.test", testPassword, auth.ClientMeta{})
	require.NoError(t, err)
	sid := tokens.Principal.SessionID

	require.NoError(t, f.service.Logout(ctx, sid))
	require.NoError(t, f.service.Logout(ctx, sid))

	active, err := f.service.Active(ctx, sid)
	require.NoError(t, err)
	assert.False(t, active)
	_, ok, err := f.store.LastActivity(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ok)
}
