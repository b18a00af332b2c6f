// Package handlers contains the HTTP handlers for the SEEP chat widget: the
// chat page and endpoint, bot setup, and plan selection.
//
// Every handler runs behind the session middleware. Browser-facing routes
// answer denials with a 303 redirect; JSON routes answer with an error
// envelope carrying the redirect target.
package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"seep/internal/core"
	"seep/internal/session"
	"seep/internal/types"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// expiryLayout is how plan expiry dates are shown to visitors.
const expiryLayout = "Jan 2, 2006"

var pageFuncs = template.FuncMap{
	"expiry": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.UTC().Format(expiryLayout)
	},
}

// Pages holds the parsed HTML templates.
type Pages struct {
	tmpl *template.Template
}

// LoadPages parses the embedded templates.
func LoadPages() (*Pages, error) {
	tmpl, err := template.New("pages").Funcs(pageFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Pages{tmpl: tmpl}, nil
}

// render executes the named template into a buffer first so a template error
// never leaves a half-written page.
func (p *Pages) render(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, name string, data any) {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		logger.ErrorContext(r.Context(), "template render failed",
			"template", name,
			"request_id", types.GetRequestID(r.Context()),
			"error", err,
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "page could not be rendered", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// currentSession returns the request session, writing a 500 when the
// session middleware did not run.
func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalSession, "session unavailable", nil))
		return nil, false
	}
	return sess, true
}

// RegisterStatic mounts the widget script under /static/.
func RegisterStatic(r chi.Router) {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	files := http.StripPrefix("/static/", http.FileServerFS(sub))
	r.Get("/static/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		files.ServeHTTP(w, r)
	})
}
