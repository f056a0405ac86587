package session

import (
	"net/http"
	"time"
)

// Credential cookie names.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
	RoleCookie    = "user_role"
)

// Credentials is the set of client-side auth artifacts.
type Credentials struct {
	Access  string
	Refresh string
	Role    string
}

// Empty reports whether no credential is present.
func (c Credentials) Empty() bool {
	return c.Access == "" && c.Refresh == ""
}

// Artifacts writes and clears the credential cookies. Access and refresh
// credentials are always written and cleared together so the client is never
// left half authenticated.
type Artifacts struct {
	marker   *Marker
	lifetime time.Duration
	secure   bool
}

// NewArtifacts constructs Artifacts. lifetime bounds the credential cookies
// and normally equals the refresh credential lifetime.
func NewArtifacts(marker *Marker, lifetime time.Duration, secure bool) *Artifacts {
	return &Artifacts{marker: marker, lifetime: lifetime, secure: secure}
}

// Marker exposes the activity marker codec.
func (a *Artifacts) Marker() *Marker {
	return a.marker
}

// Read extracts the credentials carried by r.
func (a *Artifacts) Read(r *http.Request) Credentials {
	var creds Credentials
	if c, err := r.Cookie(AccessCookie); err == nil {
		creds.Access = c.Value
	}
	if c, err := r.Cookie(RefreshCookie); err == nil {
		creds.Refresh = c.Value
	}
	if c, err := r.Cookie(RoleCookie); err == nil {
		creds.Role = c.Value
	}
	return creds
}

// Issue writes the credentials and stamps the activity marker with now.
func (a *Artifacts) Issue(w http.ResponseWriter, creds Credentials, now time.Time) {
	a.IssueCredentials(w, creds)
	if a.marker != nil {
		a.marker.Write(w, now)
	}
}

// IssueCredentials writes the credential cookies and leaves the activity
// marker alone. Renewal is not user activity.
func (a *Artifacts) IssueCredentials(w http.ResponseWriter, creds Credentials) {
	maxAge := int(a.lifetime / time.Second)
	for _, c := range []struct{ name, value string }{
		{AccessCookie, creds.Access},
		{RefreshCookie, creds.Refresh},
		{RoleCookie, creds.Role},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    c.value,
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: true,
			Secure:   a.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// ClearAll expires the access, refresh and role cookies plus the activity marker.
func (a *Artifacts) ClearAll(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie, RoleCookie} {
		http.SetCookie(w, expiredCookie(name, a.secure))
	}
	if a.marker != nil {
		a.marker.Clear(w)
	} else {
		http.SetCookie(w, expiredCookie(MarkerCookie, a.secure))
	}
}
