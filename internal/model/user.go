// Package model defines the data structures shared across the application.
package model

// User represents a registered account.
//
// Email is the Directory's lookup key and is compared exactly as stored
// (case-sensitive). It is set once at registration and never changes;
// DisplayName is the only field a user can edit afterwards. Records are
// never deleted.
//
// The JSON tags fix the persisted wire format: the user directory blob is
// an array of these objects, and the session blob embeds a single one.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// AuthState is the current session as seen by the rest of the application.
//
// User is nil when nobody is signed in. There is deliberately no stored
// "authenticated" flag — it is always derived from User's presence via
// IsAuthenticated, so the two can never disagree.
type AuthState struct {
	User *User
}

// IsAuthenticated reports whether a user is present in the session.
func (s AuthState) IsAuthenticated() bool {
	return s.User != nil
}
