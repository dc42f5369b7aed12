// Package service contains the business logic layer of the application.
//
// AuthService is the auth core. It sits between the HTTP layer and the
// blob store:
//
//	handlers (HTTP) → session.Manager → AuthService → repository.BlobStore
//
// Two blobs make up the entire persisted state: the user directory (a
// JSON array of users under repository.UsersKey) and the session (a JSON
// object embedding the signed-in user under repository.SessionKey, absent
// when anonymous). Every use-case is a synchronous read-modify-write over
// those blobs.
//
// NOTE ON PASSWORDS:
// Register and Authenticate accept a password parameter but never store,
// hash, or compare it. That mirrors the product's current demo behavior:
// "login" only checks that the email was registered before. The parameter
// is kept in the signatures so real credential checking can be added
// without touching every caller, but today it is a known gap, not a
// security feature.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rs/xid"

	"github.com/pagepilot/pagepilot/internal/apperror"
	"github.com/pagepilot/pagepilot/internal/model"
	"github.com/pagepilot/pagepilot/internal/repository"
)

// AuthService implements the auth use-cases over a BlobStore.
type AuthService struct {
	store  repository.BlobStore
	logger *slog.Logger
}

// NewAuthService creates an AuthService. The store decides where state
// lives (SQLite in production, an in-memory fake in tests).
func NewAuthService(store repository.BlobStore, logger *slog.Logger) *AuthService {
	return &AuthService{
		store:  store,
		logger: logger,
	}
}

// ProfileUpdate is a partial update applied to the signed-in user.
// A nil field means "leave unchanged". DisplayName is the only mutable
// field; ID and email are fixed at registration.
type ProfileUpdate struct {
	DisplayName *string
}

// sessionBlob is the persisted session layout: {"user": {...}}.
type sessionBlob struct {
	User *model.User `json:"user"`
}

// Register creates a new account and signs it in.
//
// The email must not already exist in the directory (exact-match
// comparison). On success the new record is appended to the directory
// and written as the session in that order, so a failure between the two
// writes can leave a registered-but-signed-out user, never a session for
// an unregistered one. On a duplicate email the directory and session
// are left untouched and the error wraps apperror.ErrConflict.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*model.User, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}

	if findByEmail(users, email) != nil {
		return nil, apperror.Conflict("user", email)
	}

	user := model.User{
		ID:          xid.New().String(),
		Email:       email,
		DisplayName: displayName,
	}

	if err := s.saveUsers(ctx, append(users, user)); err != nil {
		return nil, fmt.Errorf("service/auth: registering %s: %w", email, err)
	}
	if err := s.writeSession(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: starting session for %s: %w", email, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)

	snapshot := user
	return &snapshot, nil
}

// Authenticate signs in an existing account.
//
// The email is looked up in the directory with an exact match; the
// password is accepted but never compared (see the package note). On
// success the found record is written as the session unconditionally, so
// re-authenticating while already signed in simply overwrites. On an
// unknown email the session is unchanged and the error wraps
// apperror.ErrNotFound.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}

	user := findByEmail(users, email)
	if user == nil {
		return nil, apperror.NotFound("user", email)
	}

	if err := s.writeSession(ctx, *user); err != nil {
		return nil, fmt.Errorf("service/auth: starting session for %s: %w", email, err)
	}

	s.logger.Info("user authenticated",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)

	snapshot := *user
	return &snapshot, nil
}

// UpdateProfile merges update into the signed-in user, upserts the merged
// record into the directory (matched by ID, falling back to email), and
// overwrites the session with it.
//
// Requires an active session; when anonymous the error wraps
// apperror.ErrNoSession and nothing is written. This layer does not
// validate the new display name — the calling surface owns those rules.
func (s *AuthService) UpdateProfile(ctx context.Context, update ProfileUpdate) (*model.User, error) {
	state, err := s.CurrentState(ctx)
	if err != nil {
		return nil, err
	}
	if !state.IsAuthenticated() {
		return nil, apperror.NoSession("sign in to update your profile")
	}

	merged := *state.User
	if update.DisplayName != nil {
		merged.DisplayName = *update.DisplayName
	}

	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	upserted := false
	for i := range users {
		if users[i].ID == merged.ID || users[i].Email == merged.Email {
			users[i] = merged
			upserted = true
			break
		}
	}
	if !upserted {
		// Session user missing from the directory (e.g. the directory blob
		// was lost or corrupt). Re-insert rather than fail: the session is
		// a snapshot and remains the source of the record.
		users = append(users, merged)
	}

	if err := s.saveUsers(ctx, users); err != nil {
		return nil, fmt.Errorf("service/auth: updating profile for %s: %w", merged.ID, err)
	}
	if err := s.writeSession(ctx, merged); err != nil {
		return nil, fmt.Errorf("service/auth: refreshing session for %s: %w", merged.ID, err)
	}

	s.logger.Info("profile updated",
		slog.String("userID", merged.ID),
		slog.String("displayName", merged.DisplayName),
	)

	snapshot := merged
	return &snapshot, nil
}

// EndSession removes the session blob unconditionally. Ending an already
// anonymous session is a no-op.
func (s *AuthService) EndSession(ctx context.Context) error {
	if err := s.store.Remove(ctx, repository.SessionKey); err != nil {
		return fmt.Errorf("service/auth: ending session: %w", err)
	}
	s.logger.Info("session ended")
	return nil
}

// CurrentState reconstructs the auth state from the session blob.
// An absent or corrupt blob yields the anonymous state.
func (s *AuthService) CurrentState(ctx context.Context) (model.AuthState, error) {
	raw, ok, err := s.store.Read(ctx, repository.SessionKey)
	if err != nil {
		return model.AuthState{}, fmt.Errorf("service/auth: reading session: %w", err)
	}
	if !ok {
		return model.AuthState{}, nil
	}

	var blob sessionBlob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		// Corrupt session blob: degrade to anonymous instead of failing.
		s.logger.Warn("corrupt session blob, treating as signed out",
			slog.String("error", err.Error()),
		)
		return model.AuthState{}, nil
	}

	return model.AuthState{User: blob.User}, nil
}

// loadUsers reads the directory blob. An absent or corrupt blob yields an
// empty directory.
func (s *AuthService) loadUsers(ctx context.Context) ([]model.User, error) {
	raw, ok, err := s.store.Read(ctx, repository.UsersKey)
	if err != nil {
		return nil, fmt.Errorf("service/auth: reading user directory: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var users []model.User
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		s.logger.Warn("corrupt user directory blob, treating as empty",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return users, nil
}

func (s *AuthService) saveUsers(ctx context.Context, users []model.User) error {
	raw, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encoding user directory: %w", err)
	}
	return s.store.Write(ctx, repository.UsersKey, string(raw))
}

func (s *AuthService) writeSession(ctx context.Context, user model.User) error {
	raw, err := json.Marshal(sessionBlob{User: &user})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return s.store.Write(ctx, repository.SessionKey, string(raw))
}

// findByEmail scans the directory for an exact email match. The set is
// small, so a linear scan is fine.
func findByEmail(users []model.User, email string) *model.User {
	for i := range users {
		if users[i].Email == email {
			return &users[i]
		}
	}
	return nil
}
