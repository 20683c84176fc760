package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/locallibrary/locallibrary/internal/authz"
	"github.com/locallibrary/locallibrary/internal/shared"
	"github.com/locallibrary/locallibrary/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates. CurrentUser is the
// redacted principal; credential material never reaches a template.
type TemplateData struct {
	Title           string
	CSRFToken       string
	Flashes         []shared.FlashMessage
	CurrentPath     string
	CurrentUser     *authz.Principal
	IsAuthenticated bool
	Data            any
}

// NewTemplateData collects the per-request values every page needs: the
// CSRF token, drained flashes and the authorization context.
func NewTemplateData(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	var token string
	if csrf != nil && sess != nil {
		token, _ = csrf.EnsureToken(ctx, sess)
	}
	ac := authz.FromContext(ctx)
	return TemplateData{
		Title:           title,
		CSRFToken:       token,
		Flashes:         shared.DrainFlashes(ctx),
		CurrentPath:     r.URL.Path,
		CurrentUser:     ac.Principal(),
		IsAuthenticated: ac.Authenticated(),
		Data:            data,
	}
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006")
		},
		"roles": authz.Roles,
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates,
		"templates/layouts/*.html",
		"templates/partials/*.html",
		"templates/pages/*.html",
		"templates/pages/users/*.html",
		"templates/pages/catalog/*.html",
	)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with a 200 status.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes a named template into a buffer and writes it with
// status, so a failing template never produces a half written page.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
