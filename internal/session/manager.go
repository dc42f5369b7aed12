// Package session holds the single in-memory copy of the auth state.
//
// The Manager is created once at startup, loads the persisted session
// exactly once via Load, and from then on is the only path the rest of
// the application uses to read or mutate the session. Every successful
// use-case updates the in-memory snapshot before the call returns, so a
// caller never observes the store and the snapshot disagreeing; after the
// snapshot is updated, subscribers are notified so already-open pages can
// react.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pagepilot/pagepilot/internal/model"
	"github.com/pagepilot/pagepilot/internal/service"
)

// Notifier receives the new auth state after every session mutation.
// The websocket hub implements this; a nil Notifier disables fan-out.
type Notifier interface {
	SessionChanged(state model.AuthState)
}

// Manager wraps the AuthService with the process-wide session snapshot.
//
// The mutex serializes use-cases, which keeps each read-modify-write of
// the persisted blobs atomic with respect to concurrent requests — the
// guarantee the original single-threaded model got for free.
type Manager struct {
	svc      *service.AuthService
	notifier Notifier
	logger   *slog.Logger

	mu     sync.RWMutex
	state  model.AuthState
	loaded bool
}

// NewManager creates a Manager. Call Load before serving requests;
// notifier may be nil.
func NewManager(svc *service.AuthService, notifier Notifier, logger *slog.Logger) *Manager {
	return &Manager{
		svc:      svc,
		notifier: notifier,
		logger:   logger,
	}
}

// Load initializes the snapshot from the persisted session. It must be
// called exactly once; a second call is a wiring mistake and errors.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("session: manager already loaded")
	}

	state, err := m.svc.CurrentState(ctx)
	if err != nil {
		return fmt.Errorf("session: loading persisted state: %w", err)
	}

	m.state = state
	m.loaded = true

	m.logger.Info("session state loaded",
		slog.Bool("authenticated", state.IsAuthenticated()),
	)
	return nil
}

// State returns the current snapshot.
//
// Calling State before Load is a programming error — the session would
// look anonymous when it is merely unknown — so it fails fast with a
// panic instead of returning a default.
func (m *Manager) State() model.AuthState {
	state, ok := m.StateIfLoaded()
	if !ok {
		panic("session: State called before Load")
	}
	return state
}

// StateIfLoaded returns the current snapshot, or ok=false while the
// session is still unknown (Load has not completed). Route guards use
// this form to show a neutral placeholder instead of a wrong redirect.
func (m *Manager) StateIfLoaded() (model.AuthState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.loaded
}

// Register runs the register use-case and, on success, installs the new
// session in the snapshot.
func (m *Manager) Register(ctx context.Context, email, password, displayName string) (*model.User, error) {
	m.mu.Lock()
	m.mustBeLoaded()
	user, err := m.svc.Register(ctx, email, password, displayName)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	state := m.setState(user)
	m.mu.Unlock()

	m.notify(state)
	return user, nil
}

// Authenticate runs the login use-case and, on success, installs the
// session in the snapshot.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	m.mu.Lock()
	m.mustBeLoaded()
	user, err := m.svc.Authenticate(ctx, email, password)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	state := m.setState(user)
	m.mu.Unlock()

	m.notify(state)
	return user, nil
}

// UpdateProfile runs the profile-update use-case and, on success,
// refreshes the snapshot with the merged record.
func (m *Manager) UpdateProfile(ctx context.Context, update service.ProfileUpdate) (*model.User, error) {
	m.mu.Lock()
	m.mustBeLoaded()
	user, err := m.svc.UpdateProfile(ctx, update)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	state := m.setState(user)
	m.mu.Unlock()

	m.notify(state)
	return user, nil
}

// EndSession runs the logout use-case and clears the snapshot.
func (m *Manager) EndSession(ctx context.Context) error {
	m.mu.Lock()
	m.mustBeLoaded()
	if err := m.svc.EndSession(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	state := m.setState(nil)
	m.mu.Unlock()

	m.notify(state)
	return nil
}

// setState installs user as the snapshot and returns the new state.
// Caller must hold mu.
func (m *Manager) setState(user *model.User) model.AuthState {
	if user == nil {
		m.state = model.AuthState{}
	} else {
		snapshot := *user
		m.state = model.AuthState{User: &snapshot}
	}
	return m.state
}

// mustBeLoaded panics on use-case calls before Load. Caller must hold mu.
func (m *Manager) mustBeLoaded() {
	if !m.loaded {
		panic("session: use-case called before Load")
	}
}

func (m *Manager) notify(state model.AuthState) {
	if m.notifier != nil {
		m.notifier.SessionChanged(state)
	}
}
