// Package session owns the persisted artifacts of an authenticated browser
// session: the activity marker, the credential cookies and the server-side
// session records they point to.
package session

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MarkerCookie stores the last observed user activity as epoch milliseconds.
const MarkerCookie = "last_activity"

// Marker reads and writes the activity marker cookie. The cookie expires on
// its own after the idle budget so a stale session cannot outlive it even if
// no code runs.
type Marker struct {
	budget time.Duration
	secure bool
}

// NewMarker constructs a Marker for the given idle budget.
func NewMarker(budget time.Duration, secure bool) *Marker {
	return &Marker{budget: budget, secure: secure}
}

// Budget returns the idle budget.
func (m *Marker) Budget() time.Duration {
	return m.budget
}

// Read returns the marker timestamp carried by r.
func (m *Marker) Read(r *http.Request) (time.Time, bool) {
	cookie, err := r.Cookie(MarkerCookie)
	if err != nil {
		return time.Time{}, false
	}
	return ParseMarker(cookie.Value)
}

// Write stores at as the latest activity.
func (m *Marker) Write(w http.ResponseWriter, at time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     MarkerCookie,
		Value:    FormatMarker(at),
		Path:     "/",
		MaxAge:   int(m.budget / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear removes the marker.
func (m *Marker) Clear(w http.ResponseWriter) {
	http.SetCookie(w, expiredCookie(MarkerCookie, m.secure))
}

// Fresh reports whether last is within budget of now.
func (m *Marker) Fresh(last, now time.Time) bool {
	return Fresh(last, now, m.budget)
}

// Fresh reports whether the time elapsed between last and now does not
// exceed budget.
func Fresh(last, now time.Time, budget time.Duration) bool {
	if last.IsZero() {
		return false
	}
	return now.Sub(last) <= budget
}

// FormatMarker encodes at as epoch milliseconds.
func FormatMarker(at time.Time) string {
	return strconv.FormatInt(at.UnixMilli(), 10)
}

// ParseMarker decodes an epoch-millisecond marker value.
func ParseMarker(value string) (time.Time, bool) {
	ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Latest returns the most recent of the given timestamps.
func Latest(times ...time.Time) time.Time {
	var latest time.Time
	for _, t := range times {
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}

func expiredCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
