package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/careportal/careportal/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates  *template.Template
	decorators []Decorator
}

// Decorator fills request-scoped layout fields (navigation, CSRF token,
// principal badge) before a page renders.
type Decorator func(w http.ResponseWriter, r *http.Request, data *TemplateData)

// Notice is a one-off message shown above the page content.
type Notice struct {
	Kind    string
	Message string
}

// NavLink is a navigation entry already filtered for the current principal.
type NavLink struct {
	Label  string
	Href   string
	Group  string
	Active bool
}

// UserBadge summarises the authenticated principal for the layout.
type UserBadge struct {
	ID            string
	Role          string
	RoleLabel     string
	Approved      bool
	EmailVerified bool
}

// IdleSettings configures the idle-timeout browser agent.
type IdleSettings struct {
	IdleMS     int64
	WarningMS  int64
	WatchPath  string
	StatusPath string
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Notice      *Notice
	CurrentPath string
	User        *UserBadge
	Nav         []NavLink
	Idle        *IdleSettings
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine(decorators ...Decorator) (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl, decorators: decorators}, nil
}

// Use appends decorators applied by RenderPage.
func (e *Engine) Use(decorators ...Decorator) {
	if e == nil {
		return
	}
	e.decorators = append(e.decorators, decorators...)
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// RenderPage decorates data for r and renders it with the given status. The
// page is buffered so a template error still yields a clean 500.
func (e *Engine) RenderPage(w http.ResponseWriter, r *http.Request, status int, name string, data TemplateData) error {
	if e == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return fmt.Errorf("template engine not initialised")
	}
	if data.CurrentPath == "" {
		data.CurrentPath = r.URL.Path
	}
	for _, decorate := range e.decorators {
		decorate(w, r, &data)
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
