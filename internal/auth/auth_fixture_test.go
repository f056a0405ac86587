package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/session"
	"github.com/careportal/careportal/internal/shared"
	_ "github.com/careportal/careportal/testing"
)

const testPassword = "correct-horse"

type stubRepo struct {
	users map[string]*auth.User
}

func newStubRepo(t *testing.T, users ...*auth.User) *stubRepo {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubRepo{users: make(map[string]*auth.User)}
	for _, u := range users {
		if u.PasswordHash == "" {
			u.PasswordHash = string(hashed)
		}
		repo.users[strings.ToLower(u.Email)] = u
	}
	return repo
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

type recordingSink struct {
	events []shared.SessionEvent
}

func (r *recordingSink) RecordSessionEvent(_ context.Context, event shared.SessionEvent) {
	r.events = append(r.events, event)
}

func (r *recordingSink) actions() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	clock   *clockwork.FakeClock
	redis   *miniredis.Miniredis
	store   *session.Store
	issuer  *auth.Issuer
	service *auth.Service
	repo    *stubRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := clockwork.NewFakeClockAt(time.Now())
	store := session.NewStore(client, 7*24*time.Hour, 15*time.Minute)
	issuer := auth.NewIssuer("test-secret", 15*time.Minute, clock)
	repo := newStubRepo(t,
		&auth.User{ID: 1, Email: "pat@careportal.test", Role: roles.Patient, IsActive: true, Approved: true, EmailVerified: true},
		&auth.User{ID: 2, Email: "doc@careportal.test", Role: roles.Provider, IsActive: true, Approved: true},
		&auth.User{ID: 3, Email: "gone@careportal.test", Role: roles.Patient, IsActive: false},
	)
	return &fixture{
		clock:   clock,
		redis:   mr,
		store:   store,
		issuer:  issuer,
		service: auth.NewService(repo, store, issuer, clock),
		repo:    repo,
	}
}
