package guard

import (
	"net/http"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/platform/httpx"
	"github.com/careportal/careportal/internal/shared"
)

// API guards JSON and websocket endpoints under /api/. It authenticates like
// Middleware but answers with RFC7807 problems instead of redirects and leaves
// the activity marker alone: background fetches are not user activity.
func (g *Guard) API(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := g.authenticate(w, r)
		switch c.state {
		case stateAuthenticated:
			g.decide(r, DecisionAPIAllow)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), c.principal)))
		case stateIdleExpired:
			g.expire(w, r, c.principal)
			g.decide(r, DecisionAPIExpired)
			httpx.RespondError(w, shared.ErrSessionExpired)
		default:
			if c.stale {
				g.artifacts.ClearAll(w)
			}
			g.decide(r, DecisionAPIDenied)
			httpx.RespondError(w, shared.ErrUnauthenticated)
		}
	})
}
