package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/pagepilot/pagepilot/internal/apperror"
	"github.com/pagepilot/pagepilot/internal/model"
	"github.com/pagepilot/pagepilot/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeBlobStore is an in-memory implementation of repository.BlobStore.
// Using a fake (not a mock framework) keeps the tests dependency-free and
// easy to read.
type fakeBlobStore struct {
	blobs map[string]string
	// set to a non-nil error to simulate a storage failure
	readErr  error
	writeErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string]string)}
}

func (f *fakeBlobStore) Read(ctx context.Context, key string) (string, bool, error) {
	if f.readErr != nil {
		return "", false, f.readErr
	}
	value, ok := f.blobs[key]
	return value, ok, nil
}

func (f *fakeBlobStore) Write(ctx context.Context, key, value string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.blobs[key] = value
	return nil
}

func (f *fakeBlobStore) Remove(ctx context.Context, key string) error {
	delete(f.blobs, key)
	return nil
}

func newTestService(store *fakeBlobStore) *AuthService {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewAuthService(store, logger)
}

// directory decodes the persisted user directory blob for assertions.
func directory(t *testing.T, store *fakeBlobStore) []model.User {
	t.Helper()
	raw, ok := store.blobs[repository.UsersKey]
	if !ok {
		return nil
	}
	var users []model.User
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		t.Fatalf("directory blob is not valid JSON: %v", err)
	}
	return users
}

func strptr(s string) *string { return &s }

// =========================================================================
// REGISTER TESTS
// =========================================================================

func TestRegister_NewEmail(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)

	user, err := svc.Register(context.Background(), "a@x.com", "pw", "Ann")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.ID == "" {
		t.Error("Register() did not assign an ID")
	}
	if user.Email != "a@x.com" || user.DisplayName != "Ann" {
		t.Errorf("Register() user = %+v", user)
	}

	// Registration signs the user in.
	state, err := svc.CurrentState(context.Background())
	if err != nil {
		t.Fatalf("CurrentState() error = %v", err)
	}
	if !state.IsAuthenticated() {
		t.Fatal("CurrentState() anonymous after Register()")
	}
	if state.User.Email != "a@x.com" {
		t.Errorf("session user email = %q, want %q", state.User.Email, "a@x.com")
	}
}

func TestRegister_ThenAuthenticateReturnsSameID(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)

	registered, err := svc.Register(context.Background(), "a@x.com", "pw", "Ann")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	authed, err := svc.Authenticate(context.Background(), "a@x.com", "different-pw")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if authed.ID != registered.ID {
		t.Errorf("Authenticate() ID = %q, want %q", authed.ID, registered.ID)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@x.com", "pw", "Ann"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	before := directory(t, store)

	_, err := svc.Register(ctx, "a@x.com", "pw2", "Ann2")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second Register() error = %v, want ErrConflict", err)
	}

	// Directory unchanged: same length, same records.
	after := directory(t, store)
	if len(after) != len(before) {
		t.Fatalf("directory length = %d, want %d", len(after), len(before))
	}
	for i := range before {
		if after[i] != before[i] {
			t.Errorf("directory[%d] = %+v, want %+v", i, after[i], before[i])
		}
	}
}

func TestRegister_DuplicateEmailLeavesSessionUnchanged(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.Register(ctx, "a@x.com", "pw", "Ann")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := svc.Register(ctx, "a@x.com", "pw2", "Ann2"); err == nil {
		t.Fatal("duplicate Register() should fail")
	}

	state, err := svc.CurrentState(ctx)
	if err != nil {
		t.Fatalf("CurrentState() error = %v", err)
	}
	if state.User == nil || state.User.ID != first.ID || state.User.DisplayName != "Ann" {
		t.Errorf("session = %+v, want Ann's original record", state.User)
	}
}

func TestRegister_EmailIsCaseSensitive(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@x.com", "pw", "Ann"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Comparison is exact-match as stored, so a different casing registers
	// as a distinct account.
	if _, err := svc.Register(ctx, "A@X.com", "pw", "Other Ann"); err != nil {
		t.Errorf("Register() with different casing error = %v, want success", err)
	}
}

// =========================================================================
// AUTHENTICATE TESTS
// =========================================================================

func TestAuthenticate_UnknownEmail(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)

	_, err := svc.Authenticate(context.Background(), "nobody@x.com", "pw")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Authenticate() error = %v, want ErrNotFound", err)
	}

	// Session unchanged: still no blob at all.
	if _, ok := store.blobs[repository.SessionKey]; ok {
		t.Error("failed Authenticate() wrote a session blob")
	}
}

func TestAuthenticate_PasswordIsIgnored(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@x.com", "real-password", "Ann"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Any password authenticates. Stated demo behavior, not a bug in the
	// test.
	if _, err := svc.Authenticate(ctx, "a@x.com", "anything"); err != nil {
		t.Errorf("Authenticate() with wrong password error = %v, want success", err)
	}
}

func TestAuthenticate_OverwritesExistingSession(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@x.com", "pw", "Ann"); err != nil {
		t.Fatalf("Register(a) error = %v", err)
	}
	svc.EndSession(ctx)
	if _, err := svc.Register(ctx, "b@x.com", "pw", "Bob"); err != nil {
		t.Fatalf("Register(b) error = %v", err)
	}

	// Signing in as Ann while Bob's session exists overwrites it.
	if _, err := svc.Authenticate(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	state, _ := svc.CurrentState(ctx)
	if state.User == nil || state.User.Email != "a@x.com" {
		t.Errorf("session user = %+v, want a@x.com", state.User)
	}
}

// =========================================================================
// UPDATE PROFILE TESTS
// =========================================================================

func TestUpdateProfile_Anonymous(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)

	_, err := svc.UpdateProfile(context.Background(), ProfileUpdate{DisplayName: strptr("Bob")})
	if !errors.Is(err, apperror.ErrNoSession) {
		t.Fatalf("UpdateProfile() error = %v, want ErrNoSession", err)
	}

	// Neither blob is created by the failed call.
	if len(store.blobs) != 0 {
		t.Errorf("store has %d blobs after failed update, want 0", len(store.blobs))
	}
}

func TestUpdateProfile_UpdatesSessionAndDirectory(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@x.com", "pw", "Ann")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	updated, err := svc.UpdateProfile(ctx, ProfileUpdate{DisplayName: strptr("Bob")})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.DisplayName != "Bob" {
		t.Errorf("DisplayName = %q, want %q", updated.DisplayName, "Bob")
	}
	if updated.ID != registered.ID || updated.Email != registered.Email {
		t.Errorf("ID/email changed by update: %+v", updated)
	}

	// Session reflects the new name.
	state, _ := svc.CurrentState(ctx)
	if state.User.DisplayName != "Bob" {
		t.Errorf("session DisplayName = %q, want %q", state.User.DisplayName, "Bob")
	}

	// Matching directory record reflects it too.
	users := directory(t, store)
	if len(users) != 1 {
		t.Fatalf("directory has %d records, want 1", len(users))
	}
	if users[0].DisplayName != "Bob" || users[0].ID != registered.ID {
		t.Errorf("directory record = %+v", users[0])
	}
}

func TestUpdateProfile_NilFieldKeepsValue(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@x.com", "pw", "Ann"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	updated, err := svc.UpdateProfile(ctx, ProfileUpdate{})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.DisplayName != "Ann" {
		t.Errorf("DisplayName = %q, want unchanged %q", updated.DisplayName, "Ann")
	}
}

// =========================================================================
// END SESSION / CURRENT STATE TESTS
// =========================================================================

func TestEndSession_Idempotent(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@x.com", "pw", "Ann"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.EndSession(ctx); err != nil {
			t.Fatalf("EndSession() call %d error = %v", i+1, err)
		}
		state, err := svc.CurrentState(ctx)
		if err != nil {
			t.Fatalf("CurrentState() error = %v", err)
		}
		if state.User != nil || state.IsAuthenticated() {
			t.Errorf("state after EndSession() = %+v, want anonymous", state)
		}
	}
}

func TestCurrentState_RoundTripSnapshot(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@x.com", "pw", "Ann")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Reconstruct state through a fresh service over the same store: the
	// snapshot must survive the round trip identically.
	fresh := newTestService(store)
	state, err := fresh.CurrentState(ctx)
	if err != nil {
		t.Fatalf("CurrentState() error = %v", err)
	}
	if state.User == nil {
		t.Fatal("CurrentState() user = nil after round trip")
	}
	if *state.User != *registered {
		t.Errorf("round-tripped user = %+v, want %+v", *state.User, *registered)
	}
}

func TestCurrentState_CorruptSessionBlob(t *testing.T) {
	store := newFakeBlobStore()
	store.blobs[repository.SessionKey] = `{not json`
	svc := newTestService(store)

	state, err := svc.CurrentState(context.Background())
	if err != nil {
		t.Fatalf("CurrentState() error = %v, want corrupt blob absorbed", err)
	}
	if state.IsAuthenticated() {
		t.Error("corrupt session blob should read as anonymous")
	}
}

func TestRegister_CorruptDirectoryBlob(t *testing.T) {
	store := newFakeBlobStore()
	store.blobs[repository.UsersKey] = `also not json`
	svc := newTestService(store)

	// A corrupt directory reads as empty, so registration succeeds.
	if _, err := svc.Register(context.Background(), "a@x.com", "pw", "Ann"); err != nil {
		t.Fatalf("Register() over corrupt directory error = %v", err)
	}
	users := directory(t, store)
	if len(users) != 1 {
		t.Errorf("directory has %d records, want 1", len(users))
	}
}

func TestStorageErrorsPropagate(t *testing.T) {
	store := newFakeBlobStore()
	store.readErr = errors.New("disk is on fire")
	svc := newTestService(store)

	if _, err := svc.Register(context.Background(), "a@x.com", "pw", "Ann"); err == nil {
		t.Error("Register() should propagate storage errors")
	}
	if _, err := svc.CurrentState(context.Background()); err == nil {
		t.Error("CurrentState() should propagate storage errors")
	}
}

// =========================================================================
// FULL SCENARIO
// =========================================================================

func TestScenario_RegisterDuplicateAuthenticate(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	ann, err := svc.Register(ctx, "a@x.com", "pw", "Ann")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	state, _ := svc.CurrentState(ctx)
	if state.User.Email != "a@x.com" {
		t.Errorf("session email = %q, want a@x.com", state.User.Email)
	}

	_, err = svc.Register(ctx, "a@x.com", "pw2", "Ann2")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("duplicate Register() error = %v, want ErrConflict", err)
	}

	got, err := svc.Authenticate(ctx, "a@x.com", "anything")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if *got != *ann {
		t.Errorf("Authenticate() = %+v, want Ann's original record %+v", *got, *ann)
	}
}
