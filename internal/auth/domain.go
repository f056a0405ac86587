package auth

import (
	"strconv"
	"time"

	"github.com/careportal/careportal/internal/roles"
)

// User represents a portal account.
type User struct {
	ID            int64
	Email         string
	PasswordHash  string
	Role          roles.Role
	IsActive      bool
	Approved      bool
	EmailVerified bool
	Permissions   []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID            string
	Email         string
	Role          roles.Role
	Approved      bool
	EmailVerified bool
	Permissions   []string
	SessionID     string
}

// PrincipalFor derives the request principal of u bound to session sid.
func PrincipalFor(u *User, sid string) Principal {
	perms := make([]string, len(u.Permissions))
	copy(perms, u.Permissions)
	return Principal{
		ID:            strconv.FormatInt(u.ID, 10),
		Email:         u.Email,
		Role:          u.Role,
		Approved:      u.Approved,
		EmailVerified: u.EmailVerified,
		Permissions:   perms,
		SessionID:     sid,
	}
}

// ClientMeta describes the client opening a session.
type ClientMeta struct {
	RemoteAddr string
	UserAgent  string
}

// Tokens is the credential set handed to a client after login or refresh.
type Tokens struct {
	Access          string
	AccessExpiresAt time.Time
	Refresh         string
	Principal       Principal
}
