package session

import (
	"context"
	"net/http"
	"time"
)

// LastSeen returns the last recorded activity of session sid. The server
// mirror decides: once it has lapsed the session is idle and the zero time is
// returned, whatever the marker cookie on r claims. The cookie only stands in
// when the mirror cannot be read, and the lookup error is returned with it.
func LastSeen(ctx context.Context, r *http.Request, marker *Marker, store *Store, sid string) (time.Time, error) {
	if store == nil {
		cookie, _ := marker.Read(r)
		return cookie, nil
	}
	mirror, ok, err := store.LastActivity(ctx, sid)
	if err != nil {
		cookie, _ := marker.Read(r)
		return cookie, err
	}
	if !ok {
		return time.Time{}, nil
	}
	return mirror, nil
}

// Stamp records at as the latest activity of session sid in both the marker
// cookie and the server mirror.
func Stamp(ctx context.Context, w http.ResponseWriter, marker *Marker, store *Store, sid string, at time.Time) error {
	marker.Write(w, at)
	if store == nil {
		return nil
	}
	return store.Touch(ctx, sid, at)
}
