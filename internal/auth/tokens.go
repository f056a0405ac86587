package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/shared"
)

// Claims is the payload of an access credential.
type Claims struct {
	Email         string   `json:"email,omitempty"`
	Role          string   `json:"role"`
	SessionID     string   `json:"sid"`
	Approved      bool     `json:"approved"`
	EmailVerified bool     `json:"email_verified"`
	Permissions   []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies access credentials.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

const issuerName = "careportal"

// NewIssuer constructs an Issuer signing with HS256.
func NewIssuer(secret string, ttl time.Duration, clock clockwork.Clock) *Issuer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: clock}
}

// TTL returns the access credential lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs an access credential for p.
func (i *Issuer) Issue(p Principal) (string, time.Time, error) {
	now := i.clock.Now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		Email:         p.Email,
		Role:          p.Role.String(),
		SessionID:     p.SessionID,
		Approved:      p.Approved,
		EmailVerified: p.EmailVerified,
		Permissions:   p.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies an access credential. A correctly signed credential past its
// expiry yields the decoded principal together with
// shared.ErrCredentialExpired so callers can attempt a refresh. Anything else
// that fails verification yields shared.ErrMalformedCredential.
func (i *Issuer) Parse(raw string) (*Principal, error) {
	if raw == "" {
		return nil, shared.ErrUnauthenticated
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	switch {
	case err == nil && token.Valid:
	case errors.Is(err, jwt.ErrTokenExpired):
		p, perr := claims.principal()
		if perr != nil {
			return nil, perr
		}
		return p, shared.ErrCredentialExpired
	default:
		return nil, shared.ErrMalformedCredential
	}
	return claims.principal()
}

func (c *Claims) principal() (*Principal, error) {
	role, ok := roles.Parse(c.Role)
	if !ok || c.Subject == "" || c.SessionID == "" {
		return nil, shared.ErrMalformedCredential
	}
	return &Principal{
		ID:            c.Subject,
		Email:         c.Email,
		Role:          role,
		Approved:      c.Approved,
		EmailVerified: c.EmailVerified,
		Permissions:   c.Permissions,
		SessionID:     c.SessionID,
	}, nil
}

// NewRefreshToken returns an opaque random refresh credential.
func NewRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
