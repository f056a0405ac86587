package app

import (
	"net/http"
	"time"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/idle"
	"github.com/careportal/careportal/internal/shared"
	"github.com/careportal/careportal/internal/view"
)

// csrfDecorator exposes the double-submit token to forms.
func csrfDecorator(manager *shared.CSRFManager) view.Decorator {
	return func(w http.ResponseWriter, r *http.Request, data *view.TemplateData) {
		data.CSRFToken = manager.EnsureToken(w, r)
	}
}

// userDecorator fills the principal badge.
func userDecorator() view.Decorator {
	return func(_ http.ResponseWriter, r *http.Request, data *view.TemplateData) {
		p := auth.PrincipalFromContext(r.Context())
		if p == nil {
			return
		}
		data.User = &view.UserBadge{
			ID:            p.ID,
			Role:          p.Role.String(),
			RoleLabel:     p.Role.DisplayName(),
			Approved:      p.Approved,
			EmailVerified: p.EmailVerified,
		}
	}
}

// idleDecorator loads the idle agent on authenticated pages.
func idleDecorator(budget, window time.Duration) view.Decorator {
	return func(_ http.ResponseWriter, r *http.Request, data *view.TemplateData) {
		if auth.PrincipalFromContext(r.Context()) == nil {
			return
		}
		data.Idle = &view.IdleSettings{
			IdleMS:     budget.Milliseconds(),
			WarningMS:  window.Milliseconds(),
			WatchPath:  idle.WatchPath,
			StatusPath: idle.StatusPath,
		}
	}
}

// Decorators returns the layout decorators every page shares.
func Decorators(cfg *Config, csrf *shared.CSRFManager) []view.Decorator {
	return []view.Decorator{
		csrfDecorator(csrf),
		userDecorator(),
		idleDecorator(cfg.IdleTimeout, cfg.IdleWarning),
	}
}
