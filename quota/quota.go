// Package quota is a thin per-identity, per-day usage counter built on the
// cache's TTL semantics: one entry per UTC day, retained slightly past 24h
// so the count survives until the key itself rolls over.
package quota

import (
	"context"
	"fmt"
	"time"
)

const (
	keyPrefix  = "usage:searches:"
	counterTTL = 26 * time.Hour
)

// Cache is the subset of the cache facade the ledger needs.
type Cache interface {
	Get(ctx context.Context, key string, value any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl ...time.Duration) error
}

// Ledger limits fetch volume per end user. Counts are monotonically
// non-decreasing within a day and reset implicitly when the UTC day in the
// key changes. The read-modify-write is not atomic across processes; the
// limit is a throttle, not an accounting boundary.
type Ledger struct {
	cache Cache
	limit int
	now   func() time.Time
}

func NewLedger(cache Cache, dailyLimit int) *Ledger {
	return &Ledger{
		cache: cache,
		limit: dailyLimit,
		now:   time.Now,
	}
}

// Remaining reports how many units identity has left today.
func (l *Ledger) Remaining(ctx context.Context, identity string) (int, error) {
	used, err := l.used(ctx, identity)
	if err != nil {
		return 0, err
	}
	return max(l.limit-used, 0), nil
}

// Consume spends cost units for identity, reporting whether the spend was
// allowed and how many units remain afterwards. A denied spend leaves the
// counter untouched.
func (l *Ledger) Consume(ctx context.Context, identity string, cost int) (bool, int, error) {
	used, err := l.used(ctx, identity)
	if err != nil {
		return false, 0, err
	}

	if used+cost > l.limit {
		return false, max(l.limit-used, 0), nil
	}

	used += cost
	if err := l.cache.Set(ctx, l.key(identity), used, counterTTL); err != nil {
		return false, 0, err
	}
	return true, max(l.limit-used, 0), nil
}

func (l *Ledger) used(ctx context.Context, identity string) (int, error) {
	var used int
	if _, err := l.cache.Get(ctx, l.key(identity), &used); err != nil {
		return 0, err
	}
	return used, nil
}

func (l *Ledger) key(identity string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, identity, l.now().UTC().Format("2006-01-02"))
}
