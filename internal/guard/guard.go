// Package guard provides the route guard middleware: redirect-on-condition
// wrappers that keep authenticated-only pages away from anonymous visitors
// and vice versa.
//
// Both guards share the same shape. They consult the session snapshot per
// request, so a session change is observed on the next navigation; while
// the snapshot is still unknown (startup has not finished loading it) they
// render a neutral placeholder instead of guessing a redirect.
package guard

import (
	"net/http"
	"net/url"

	"github.com/pagepilot/pagepilot/internal/model"
)

// SessionSource is the slice of the session manager the guards need.
type SessionSource interface {
	StateIfLoaded() (model.AuthState, bool)
}

// RequireAuth guards authenticated-only pages. A confirmed-anonymous
// request is redirected to redirectTo, carrying the originating path in a
// "redirect" query parameter so the sign-in flow can return the user
// afterward (the root path is not carried — it is the default anyway).
func RequireAuth(sessions SessionSource, redirectTo string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, ok := sessions.StateIfLoaded()
			if !ok {
				renderPlaceholder(w)
				return
			}
			if !state.IsAuthenticated() {
				target := redirectTo
				if r.URL.Path != "/" {
					target += "?redirect=" + url.QueryEscape(r.URL.Path)
				}
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AnonymousOnly guards pages that make no sense while signed in (login,
// signup). A confirmed-authenticated request is redirected to redirectTo.
func AnonymousOnly(sessions SessionSource, redirectTo string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, ok := sessions.StateIfLoaded()
			if !ok {
				renderPlaceholder(w)
				return
			}
			if state.IsAuthenticated() {
				http.Redirect(w, r, redirectTo, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// renderPlaceholder writes the neutral "session unknown" page: not the
// guarded content, not an error. The Refresh header retries shortly,
// by which time startup will have loaded the session.
func renderPlaceholder(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Refresh", "1")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html><html><body><p>Checking session&hellip;</p></body></html>`))
}
