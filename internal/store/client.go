// Package store persists users, sources and aliases in a key-value store
// with hash-per-entity layout, and implements the token-refresh
// coordinator's atomic check-and-set on source status.
package store

import "context"

// Client is the minimal hash-per-key surface the store needs. All values
// round-trip through strings; numeric fields are parsed on load.
type Client interface {
	// GetHash returns all fields of the hash at key, nil when the key is
	// absent.
	GetHash(ctx context.Context, key string) (map[string]string, error)

	// SetHashFields writes the given fields, creating the hash if needed.
	// Fields not named are left untouched.
	SetHashFields(ctx context.Context, key string, fields map[string]string) error

	// DeleteHashFields removes the named fields from the hash.
	DeleteHashFields(ctx context.Context, key string, fields ...string) error

	// DeleteKey removes the whole hash.
	DeleteKey(ctx context.Context, key string) error

	// CompareAndSwapHashField atomically replaces the field's value with
	// next if and only if its current value equals prev. It reports whether
	// the swap happened.
	CompareAndSwapHashField(ctx context.Context, key, field, prev, next string) (bool, error)
}

func miscKey(userID string) string {
	return userID + ":misc"
}

func sourcesKey(userID string) string {
	return userID + ":sources"
}

func selectedLayersKey(userID string) string {
	return userID + ":selected_layers"
}

// aliasKey is the standalone key resolving a source's global identity to
// the owning user.
func aliasKey(sourceID string) string {
	return sourceID
}
