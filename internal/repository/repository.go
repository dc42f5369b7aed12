// Package repository defines the persistence contracts implemented by the
// storage backends in the sub-packages.
package repository

import "context"

// Persisted blob keys. The entire application state lives under these two
// keys: the user directory as a JSON array of users, and the session as a
// JSON object embedding the signed-in user (absent when anonymous).
const (
	UsersKey   = "pagepilot_users"
	SessionKey = "pagepilot_auth"
)

// BlobStore is a durable string key-value store.
//
// Read returns ok=false for a missing key; a missing key is never an
// error. Remove of an absent key is a no-op. The store holds raw strings
// and does not interpret them — decoding (and tolerating corrupt values)
// is the caller's concern.
type BlobStore interface {
	Read(ctx context.Context, key string) (value string, ok bool, err error)
	Write(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
