// Package store provides the persistent key/value table backing the cache:
// an opaque string key, a serialized JSON value, a creation timestamp and an
// optional time-to-live.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the contract every backend implements. A ttl <= 0 means the entry
// does not expire by time and is cleared only by Delete or Clear.
type Store interface {
	// Get returns the stored value iff present and not expired. Expired
	// entries encountered on the read path are lazily deleted.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// GetRaw is identical to Get but ignores TTL enforcement and also
	// reports the entry's creation time (unix seconds). Required by the
	// stale-fallback path of the memoizer.
	GetRaw(ctx context.Context, key string) (json.RawMessage, int64, bool, error)

	// Set upserts value with creation timestamp now. Last writer wins.
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error

	// Add stores value only if the key is absent or expired, and reports
	// whether the write happened. Used for best-effort lock entries.
	Add(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) (bool, error)

	Delete(ctx context.Context, key string) error

	// Clear deletes all keys with the given prefix; an empty prefix
	// truncates the whole table.
	Clear(ctx context.Context, prefix string) error

	// Keys lists every stored key, expired or not.
	Keys(ctx context.Context) ([]string, error)

	Close() error
}

// Error wraps a backend I/O failure. Store errors are fatal to the operation
// that hit them and are never retried at this layer.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op, key string, err error) error {
	return &Error{Op: op, Key: key, Err: err}
}

func expired(createdAt int64, ttl int64, now time.Time) bool {
	return ttl > 0 && now.Unix()-createdAt > ttl
}
