// Package cache keeps extracted receipt records keyed by image identity.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when the key has no entry
var ErrNotFound = errors.New("cache entry not found")

// Entry is a cached payload and the time it stops being valid
type Entry struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the entry has passed its expiry at now
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store defines the interface for cache storage backends
type Store interface {
	// Get returns the entry for key, or ErrNotFound
	Get(ctx context.Context, key string) (Entry, error)

	// Upsert writes the payload for key, replacing any existing entry
	Upsert(ctx context.Context, key string, payload []byte, expiresAt time.Time) error

	// Close closes the store connection
	Close() error
}
