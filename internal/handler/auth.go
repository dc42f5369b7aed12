package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pagepilot/pagepilot/internal/apperror"
	"github.com/pagepilot/pagepilot/internal/model"
	"github.com/pagepilot/pagepilot/internal/service"
	"github.com/pagepilot/pagepilot/internal/session"
)

// Display name rules, enforced at this surface (not in the service —
// the core accepts whatever the caller validated).
const minDisplayNameLength = 2

// AuthHandler owns the signup/login/logout/profile flows, in two
// flavors: HTML form posts that re-render the page on failure, and a
// small JSON API with the same semantics.
type AuthHandler struct {
	sessions *session.Manager
	pages    *PageHandler
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. pages is used to re-render
// forms with inline errors.
func NewAuthHandler(sessions *session.Manager, pages *PageHandler, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		pages:    pages,
		logger:   logger,
	}
}

// sessionResponse is the currentState surface: isAuthenticated is
// derived from the user's presence, never tracked separately.
type sessionResponse struct {
	User            *model.User `json:"user"`
	IsAuthenticated bool        `json:"isAuthenticated"`
}

// authResponse is the success shape for the auth use-case endpoints.
type authResponse struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user,omitempty"`
}

// =========================================================================
// HTML form flows
// =========================================================================

// HandleSignupForm processes the signup form.
//
// HTTP: POST /signup
// Fields: email, password, displayName, redirect (hidden)
func (h *AuthHandler) HandleSignupForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	displayName := strings.TrimSpace(r.PostFormValue("displayName"))
	redirect := safeRedirect(r.PostFormValue("redirect"))

	sticky := PageData{
		Title:       "Sign Up — PagePilot",
		Email:       email,
		DisplayName: displayName,
		Redirect:    redirect,
	}

	if msg := validateSignup(email, password, displayName); msg != "" {
		sticky.Error = msg
		h.pages.Render(w, http.StatusBadRequest, "signup", sticky)
		return
	}

	if _, err := h.sessions.Register(r.Context(), email, password, displayName); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			sticky.Error = "User already exists"
			h.pages.Render(w, http.StatusConflict, "signup", sticky)
			return
		}
		h.logger.Error("signup failed", slog.String("error", err.Error()))
		sticky.Error = "An unexpected error occurred"
		h.pages.Render(w, http.StatusInternalServerError, "signup", sticky)
		return
	}

	http.Redirect(w, r, redirectOr(redirect, "/profile"), http.StatusSeeOther)
}

// HandleLoginForm processes the login form.
//
// HTTP: POST /login
// Fields: email, password, redirect (hidden)
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	redirect := safeRedirect(r.PostFormValue("redirect"))

	sticky := PageData{
		Title:    "Sign In — PagePilot",
		Email:    email,
		Redirect: redirect,
	}

	if email == "" || password == "" {
		sticky.Error = "Email and password are required"
		h.pages.Render(w, http.StatusBadRequest, "login", sticky)
		return
	}

	if _, err := h.sessions.Authenticate(r.Context(), email, password); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// Deliberately vague, even though only the email is checked.
			sticky.Error = "Invalid email or password"
			h.pages.Render(w, http.StatusUnauthorized, "login", sticky)
			return
		}
		h.logger.Error("login failed", slog.String("error", err.Error()))
		sticky.Error = "An unexpected error occurred"
		h.pages.Render(w, http.StatusInternalServerError, "login", sticky)
		return
	}

	http.Redirect(w, r, redirectOr(redirect, "/profile"), http.StatusSeeOther)
}

// HandleLogoutForm ends the session and returns to the landing page.
// Logging out while already anonymous is a no-op.
//
// HTTP: POST /logout
func (h *AuthHandler) HandleLogoutForm(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.EndSession(r.Context()); err != nil {
		h.logger.Error("logout failed", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleProfileForm processes the display-name edit on the profile page.
//
// HTTP: POST /profile (authenticated-only)
// Fields: displayName
func (h *AuthHandler) HandleProfileForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	displayName := strings.TrimSpace(r.PostFormValue("displayName"))

	if msg := validateDisplayName(displayName); msg != "" {
		h.pages.Render(w, http.StatusBadRequest, "profile", PageData{
			Title: "Profile — PagePilot",
			Error: msg,
		})
		return
	}

	if _, err := h.sessions.UpdateProfile(r.Context(), service.ProfileUpdate{DisplayName: &displayName}); err != nil {
		if errors.Is(err, apperror.ErrNoSession) {
			// Session ended between the guard and the update.
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		h.logger.Error("profile update failed", slog.String("error", err.Error()))
		h.pages.Render(w, http.StatusInternalServerError, "profile", PageData{
			Title: "Profile — PagePilot",
			Error: "Failed to update profile",
		})
		return
	}

	h.pages.Render(w, http.StatusOK, "profile", PageData{
		Title:   "Profile — PagePilot",
		Message: "Profile updated successfully!",
	})
}

// =========================================================================
// JSON API
// =========================================================================

// HandleSessionState returns the current auth state.
//
// HTTP: GET /api/session
func (h *AuthHandler) HandleSessionState(w http.ResponseWriter, r *http.Request) {
	state, ok := h.sessions.StateIfLoaded()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "initializing",
			Message: "session state is not loaded yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		User:            state.User,
		IsAuthenticated: state.IsAuthenticated(),
	})
}

// HandleAPISignup registers a new account.
//
// HTTP: POST /api/signup
// Body: {"email": ..., "password": ..., "displayName": ...}
func (h *AuthHandler) HandleAPISignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	email := strings.TrimSpace(req.Email)
	displayName := strings.TrimSpace(req.DisplayName)
	if msg := validateSignup(email, req.Password, displayName); msg != "" {
		writeError(w, apperror.ValidationFailed("", msg))
		return
	}

	user, err := h.sessions.Register(r.Context(), email, req.Password, displayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Success: true, User: user})
}

// HandleAPILogin signs an existing account in.
//
// HTTP: POST /api/login
// Body: {"email": ..., "password": ...}
func (h *AuthHandler) HandleAPILogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, apperror.ValidationFailed("email", "email is required"))
		return
	}

	user, err := h.sessions.Authenticate(r.Context(), email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: user})
}

// HandleAPILogout ends the session.
//
// HTTP: POST /api/logout
func (h *AuthHandler) HandleAPILogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.EndSession(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Success: true})
}

// HandleAPIProfileUpdate updates the signed-in user's display name.
//
// HTTP: PUT /api/profile
// Body: {"displayName": ...}
func (h *AuthHandler) HandleAPIProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if msg := validateDisplayName(displayName); msg != "" {
		writeError(w, apperror.ValidationFailed("displayName", msg))
		return
	}

	user, err := h.sessions.UpdateProfile(r.Context(), service.ProfileUpdate{DisplayName: &displayName})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: user})
}

// =========================================================================
// Validation
// =========================================================================

func validateSignup(email, password, displayName string) string {
	if email == "" {
		return "Email is required"
	}
	if password == "" {
		return "Password is required"
	}
	return validateDisplayName(displayName)
}

func validateDisplayName(displayName string) string {
	if displayName == "" {
		return "Display name cannot be empty"
	}
	if len([]rune(displayName)) < minDisplayNameLength {
		return "Display name must be at least 2 characters"
	}
	return ""
}

func redirectOr(target, fallback string) string {
	if target == "" {
		return fallback
	}
	return target
}
