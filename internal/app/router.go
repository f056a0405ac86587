package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/careportal/careportal/internal/audit/http"
	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/dashboard"
	"github.com/careportal/careportal/internal/guard"
	"github.com/careportal/careportal/internal/idle"
	"github.com/careportal/careportal/internal/observability"
	"github.com/careportal/careportal/internal/rbac"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/shared"
	"github.com/careportal/careportal/jobs"
	"github.com/careportal/careportal/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	CSRFManager *shared.CSRFManager
	Guard       *guard.Guard
	RBAC        rbac.Middleware
	Metrics     *observability.Metrics

	AuthHandler        *auth.Handler
	PublicHandler      *dashboard.PublicHandler
	DashboardHandler   *dashboard.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *rbac.PermissionsHandler
	AuditHandler       *audithttp.Handler
	IdleHandler        *idle.Handler
	JobHandler         *jobs.Handler
}

// DedicatedPaths lists nav entries served by their own handlers rather than
// the generic dashboard feature shell.
var DedicatedPaths = []string{"/admin/roles", "/audit", "/account/permissions"}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Guard:       params.Guard,
		CSRFManager: params.CSRFManager,
		Metrics:     params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.PublicHandler != nil {
		params.PublicHandler.MountRoutes(r)
	}
	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}

	r.Route("/api", func(api chi.Router) {
		// Refresh authenticates with the refresh credential itself, so it
		// stays outside the API guard.
		if params.AuthHandler != nil {
			params.AuthHandler.MountAPIRoutes(api)
		}
		api.Group(func(g chi.Router) {
			if params.Guard != nil {
				g.Use(params.Guard.API)
			}
			if params.PermissionsHandler != nil {
				params.PermissionsHandler.MountAPIRoutes(g)
			}
			if params.IdleHandler != nil {
				params.IdleHandler.MountAPIRoutes(g)
			}
		})
	})

	if params.DashboardHandler != nil {
		params.DashboardHandler.MountRoutes(r)
	}
	if params.RolesHandler != nil {
		r.Route("/admin/roles", params.RolesHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/account/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			jr.Use(params.RBAC.RequireAny(shared.PermSystemSettings))
			params.JobHandler.MountRoutes(jr)
		})
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		// Static files sit on the guard's exclusion list.
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets (JS, CSS, fonts, images) are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
