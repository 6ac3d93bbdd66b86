package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

// DefaultTTL is how long a cached record stays valid
const DefaultTTL = 7 * 24 * time.Hour

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Gateway reads and writes receipt records through a Store. Caching is
// best-effort: store failures are logged and never returned. A nil
// Gateway behaves as an always-empty cache.
type Gateway struct {
	store      Store
	ttl        time.Duration
	timeSource TimeSource
}

// NewGateway creates a Gateway over store. A non-positive ttl uses DefaultTTL.
func NewGateway(store Store, ttl time.Duration) *Gateway {
	return NewGatewayWithDeps(store, ttl, defaultTimeSource{})
}

// NewGatewayWithDeps creates a Gateway with a custom time source for testing
func NewGatewayWithDeps(store Store, ttl time.Duration, timeSrc TimeSource) *Gateway {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gateway{store: store, ttl: ttl, timeSource: timeSrc}
}

// Get returns the cached record for key. Misses, expired entries and
// store errors all report false.
func (g *Gateway) Get(ctx context.Context, key string) (*receipt.Record, bool) {
	if g == nil || g.store == nil || key == "" {
		return nil, false
	}

	entry, err := g.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("Cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	if entry.Expired(g.timeSource.Now()) {
		slog.Debug("Cache entry expired", "key", key, "expires_at", entry.ExpiresAt)
		return nil, false
	}

	var record receipt.Record
	if err := json.Unmarshal(entry.Payload, &record); err != nil {
		slog.Warn("Cache entry is unreadable", "key", key, "error", err)
		return nil, false
	}
	return &record, true
}

// Put stores record under key until the TTL elapses
func (g *Gateway) Put(ctx context.Context, key string, record *receipt.Record) {
	if g == nil || g.store == nil || key == "" || record == nil {
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		slog.Warn("Failed to encode record for cache", "key", key, "error", err)
		return
	}
	expiresAt := g.timeSource.Now().Add(g.ttl)
	if err := g.store.Upsert(ctx, key, payload, expiresAt); err != nil {
		slog.Warn("Cache write failed", "key", key, "error", err)
	}
}

// Close closes the underlying store
func (g *Gateway) Close() error {
	if g == nil || g.store == nil {
		return nil
	}
	return g.store.Close()
}

// KeyFor derives the cache key for an image reference: the last path
// segment of the URL, ignoring any query string or fragment. Two URLs
// ending in the same file name share a key.
func KeyFor(imageURL string) string {
	ref := strings.TrimSpace(imageURL)
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		ref = u.Path
	} else if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimRight(ref, "/")
	if ref == "" {
		return ""
	}
	return path.Base(ref)
}
