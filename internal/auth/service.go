package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/careportal/careportal/internal/session"
	"github.com/careportal/careportal/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	sessions *session.Store
	issuer   *Issuer
	clock    clockwork.Clock
	refresh  singleflight.Group
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions *session.Store, issuer *Issuer, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{repo: repo, sessions: sessions, issuer: issuer, clock: clock}
}

// Issuer exposes the access credential issuer.
func (s *Service) Issuer() *Issuer {
	return s.issuer
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive || !user.Role.Valid() {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the user and opens a new server-side session.
func (s *Service) Login(ctx context.Context, email, password string, meta ClientMeta) (Tokens, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := NewRefreshToken()
	if err != nil {
		return Tokens{}, err
	}
	now := s.clock.Now().UTC()
	rec := session.Record{
		ID:          session.NewID(),
		UserID:      strconv.FormatInt(user.ID, 10),
		Role:        user.Role.String(),
		RefreshHash: session.HashRefresh(refresh),
		RemoteAddr:  meta.RemoteAddr,
		UserAgent:   meta.UserAgent,
		CreatedAt:   now,
		RefreshedAt: now,
	}
	if err := s.sessions.Create(ctx, rec); err != nil {
		return Tokens{}, err
	}
	if err := s.sessions.Touch(ctx, rec.ID, now); err != nil {
		return Tokens{}, err
	}
	return s.tokensFor(user, rec.ID, refresh)
}

// Refresh rotates the refresh credential of session sid and issues a new
// access credential. Concurrent refreshes of the same credential share one
// rotation so parallel requests from one browser do not trip replay
// detection.
func (s *Service) Refresh(ctx context.Context, sid, refresh string) (Tokens, error) {
	if sid == "" || refresh == "" {
		return Tokens{}, shared.ErrUnauthenticated
	}
	key := sid + ":" + session.HashRefresh(refresh)
	ch := s.refresh.DoChan(key, func() (interface{}, error) {
		return s.rotate(context.WithoutCancel(ctx), sid, refresh)
	})
	select {
	case <-ctx.Done():
		return Tokens{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Tokens{}, res.Err
		}
		return res.Val.(Tokens), nil
	}
}

func (s *Service) rotate(ctx context.Context, sid, refresh string) (Tokens, error) {
	next, err := NewRefreshToken()
	if err != nil {
		return Tokens{}, err
	}
	rec, err := s.sessions.Rotate(ctx, sid, refresh, next, s.clock.Now())
	if err != nil {
		return Tokens{}, err
	}
	userID, err := strconv.ParseInt(rec.UserID, 10, 64)
	if err != nil {
		return Tokens{}, fmt.Errorf("auth: session %s user id: %w", sid, err)
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil || !user.IsActive {
		if revokeErr := s.sessions.Revoke(ctx, sid); revokeErr != nil {
			return Tokens{}, revokeErr
		}
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return Tokens{}, err
		}
		return Tokens{}, shared.ErrSessionRevoked
	}
	return s.tokensFor(user, sid, next)
}

// Logout revokes session sid. Revoking an unknown or already revoked session
// succeeds.
func (s *Service) Logout(ctx context.Context, sid string) error {
	return s.sessions.Revoke(ctx, sid)
}

// Sessions exposes the server-side session store.
func (s *Service) Sessions() *session.Store {
	return s.sessions
}

// Clock returns the service clock.
func (s *Service) Clock() clockwork.Clock {
	return s.clock
}

// Active reports whether session sid is still open.
func (s *Service) Active(ctx context.Context, sid string) (bool, error) {
	return s.sessions.Active(ctx, sid)
}

func (s *Service) tokensFor(user *User, sid, refresh string) (Tokens, error) {
	principal := PrincipalFor(user, sid)
	access, expiresAt, err := s.issuer.Issue(principal)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		Access:          access,
		AccessExpiresAt: expiresAt,
		Refresh:         refresh,
		Principal:       principal,
	}, nil
}
