// Package handler contains the HTTP handlers: server-rendered pages, the
// auth form and JSON endpoints, and the session feed upgrade. Handlers
// are glue — parsing requests and writing responses — with the session
// manager doing the actual work.
package handler

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pagepilot/pagepilot/internal/model"
	"github.com/pagepilot/pagepilot/internal/session"
)

// PageData is the data every template receives. User and IsAuthenticated
// drive the header chrome; the rest feeds the individual pages (form
// errors, sticky field values, the post-login redirect target).
type PageData struct {
	Title           string
	User            *model.User
	IsAuthenticated bool
	Error           string
	Message         string
	Email           string
	DisplayName     string
	Redirect        string
}

// PageHandler renders the HTML pages. Each page is parsed together with
// the shared base template once at startup.
type PageHandler struct {
	pages    map[string]*template.Template
	sessions *session.Manager
	logger   *slog.Logger
}

var templateFuncs = template.FuncMap{
	"initials": initials,
}

// NewPageHandler parses the templates under templateDir: base.html plus
// one file per page.
func NewPageHandler(templateDir string, sessions *session.Manager, logger *slog.Logger) (*PageHandler, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"landing", "signup", "login", "profile"} {
		tmpl, err := template.New("base.html").Funcs(templateFuncs).ParseFiles(
			filepath.Join(templateDir, "base.html"),
			filepath.Join(templateDir, name+".html"),
		)
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &PageHandler{
		pages:    pages,
		sessions: sessions,
		logger:   logger,
	}, nil
}

// Render writes the named page. The session chrome (User/IsAuthenticated)
// is filled in here so callers only supply page-specific fields; an
// unknown session renders as anonymous chrome, which is safe for every
// page the guards let through.
func (h *PageHandler) Render(w http.ResponseWriter, status int, page string, data PageData) {
	if state, ok := h.sessions.StateIfLoaded(); ok {
		data.User = state.User
		data.IsAuthenticated = state.IsAuthenticated()
	}

	tmpl, ok := h.pages[page]
	if !ok {
		h.logger.Error("unknown page template", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
	}
}

// HandleLanding serves the marketing landing page.
//
// HTTP: GET /
func (h *PageHandler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	h.Render(w, http.StatusOK, "landing", PageData{
		Title: "PagePilot",
	})
}

// HandleSignupPage serves the signup form.
//
// HTTP: GET /signup (anonymous-only)
func (h *PageHandler) HandleSignupPage(w http.ResponseWriter, r *http.Request) {
	h.Render(w, http.StatusOK, "signup", PageData{
		Title:    "Sign Up — PagePilot",
		Redirect: safeRedirect(r.URL.Query().Get("redirect")),
	})
}

// HandleLoginPage serves the login form.
//
// HTTP: GET /login (anonymous-only)
func (h *PageHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.Render(w, http.StatusOK, "login", PageData{
		Title:    "Sign In — PagePilot",
		Redirect: safeRedirect(r.URL.Query().Get("redirect")),
	})
}

// HandleProfilePage serves the profile page.
//
// HTTP: GET /profile (authenticated-only)
func (h *PageHandler) HandleProfilePage(w http.ResponseWriter, r *http.Request) {
	h.Render(w, http.StatusOK, "profile", PageData{
		Title: "Profile — PagePilot",
	})
}

// initials reduces a display name to at most two uppercase initials for
// the avatar badge ("Ann Smith" → "AS").
func initials(name string) string {
	var b strings.Builder
	for i, word := range strings.Fields(name) {
		if i == 2 {
			break
		}
		runes := []rune(word)
		b.WriteString(strings.ToUpper(string(runes[0])))
	}
	if b.Len() == 0 {
		return "U"
	}
	return b.String()
}

// safeRedirect keeps post-login redirects on-site: only rooted paths pass
// through, anything else falls back to empty (callers apply their own
// default).
func safeRedirect(target string) string {
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		return target
	}
	return ""
}
