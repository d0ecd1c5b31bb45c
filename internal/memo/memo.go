// Package memo implements the stale-tolerant memoization layer: fresh cache
// within the TTL, coordinated refresh on miss, and fallback to the most
// recent stored value when the refresh fails within a grace window.
package memo

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"goflare.io/hearth/internal/store"
	"goflare.io/hearth/models"
	"goflare.io/hearth/pkg/normalize"
)

const defaultLockTTL = 20 * time.Second

// Result is the outcome of a memoized read. When Stale is true the value
// predates the TTL boundary and Err holds the refresh failure that forced
// the fallback; the error is carried for observability, never embedded into
// the payload itself.
type Result struct {
	Raw   json.RawMessage
	Stale bool
	Age   time.Duration
	Err   error
}

// Decode unmarshals the cached value into v.
func (r *Result) Decode(v any) error {
	return json.Unmarshal(r.Raw, v)
}

// meta tracks the moment of the last successful refresh for a logical key.
// Freshness is decided on this timestamp, not the store's own TTL
// bookkeeping, because the physical retention window is deliberately longer
// than the logical one.
type meta struct {
	TS int64 `json:"ts"`
}

// Memoizer coordinates fetch-vs-serve-stale decisions over a Store.
type Memoizer struct {
	store   store.Store
	sf      singleflight.Group
	metrics *models.Metrics
	logger  *zap.Logger
	lockTTL time.Duration
	now     func() time.Time
}

func New(st store.Store, logger *zap.Logger, metrics *models.Metrics, lockTTL time.Duration) *Memoizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = models.NewMetrics()
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Memoizer{
		store:   st,
		metrics: metrics,
		logger:  logger,
		lockTTL: lockTTL,
		now:     time.Now,
	}
}

// flightResult distinguishes values served from cache from values produced
// by a refresh, so hit/miss accounting stays accurate when concurrent
// callers collapse onto one flight.
type flightResult struct {
	res       *Result
	fromCache bool
}

// GetOrCompute returns the value under key, refreshing it through loader
// when it is older than ttl. Values are physically retained for ttl+grace;
// within that window a failed refresh falls back to the stored value marked
// stale. Concurrent refreshes of one key are collapsed in-process and
// discouraged across processes by a short-lived lock entry.
func (m *Memoizer) GetOrCompute(ctx context.Context, key string, ttl, grace time.Duration, loader func(context.Context) (any, error)) (*Result, error) {
	if res, err := m.fresh(ctx, key, ttl); res != nil || err != nil {
		if res != nil {
			m.metrics.Hits.Inc()
		}
		return res, err
	}

	v, err, _ := m.sf.Do(key, func() (any, error) {
		// Re-check under the flight: a caller queued behind a finished
		// refresh should not trigger another one.
		res, err := m.fresh(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return &flightResult{res: res, fromCache: true}, nil
		}

		// One miss per refresh flight; collapsed waiters show up in the
		// singleflight dedup, not in the miss counter.
		m.metrics.Misses.Inc()
		res, err = m.refresh(ctx, key, ttl, grace, loader)
		if err != nil {
			return nil, err
		}
		return &flightResult{res: res}, nil
	})
	if err != nil {
		return nil, err
	}

	fr := v.(*flightResult)
	if fr.fromCache {
		m.metrics.Hits.Inc()
	}
	return fr.res, nil
}

// fresh returns the cached value iff the last successful refresh is within
// ttl. A nil, nil return means the caller must refresh.
func (m *Memoizer) fresh(ctx context.Context, key string, ttl time.Duration) (*Result, error) {
	ts, ok, err := m.metaTS(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	age := m.now().Sub(time.Unix(ts, 0))
	if age > ttl {
		return nil, nil
	}

	raw, found, err := m.store.Get(ctx, key+":data")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &Result{Raw: raw, Age: age}, nil
}

func (m *Memoizer) refresh(ctx context.Context, key string, ttl, grace time.Duration, loader func(context.Context) (any, error)) (*Result, error) {
	retention := ttl + grace

	// Best-effort stampede guard across processes: acquisition failure only
	// signals that another handler is likely refreshing; it never blocks.
	lockKey := key + ":lock"
	acquired, err := m.store.Add(ctx, lockKey, json.RawMessage(`1`), m.lockTTL)
	if err != nil {
		m.logger.Warn("lock acquisition failed", zap.Error(err), zap.String("key", key))
	} else if !acquired {
		m.metrics.LockContended.Inc()
		m.logger.Debug("refresh lock already held", zap.String("key", key))
	}
	if acquired {
		// Release on completion; the TTL stays as a crash safety net.
		defer func() {
			if err := m.store.Delete(ctx, lockKey); err != nil {
				m.logger.Warn("lock release failed", zap.Error(err), zap.String("key", key))
			}
		}()
	}

	value, loadErr := loader(ctx)
	if loadErr == nil {
		raw, err := json.Marshal(normalize.Value(value))
		if err != nil {
			// Normalized trees always marshal; reaching this is a bug.
			return nil, err
		}
		now := m.now()
		if err := m.store.Set(ctx, key+":data", raw, retention); err != nil {
			return nil, err
		}
		metaRaw, _ := json.Marshal(meta{TS: now.Unix()})
		if err := m.store.Set(ctx, key+":meta", metaRaw, retention); err != nil {
			return nil, err
		}
		m.metrics.Refreshes.Inc()
		return &Result{Raw: raw}, nil
	}

	return m.fallback(ctx, key, retention, loadErr)
}

// fallback serves the most recent stored value within the retention window
// after a failed refresh, or propagates the refresh error when none exists.
func (m *Memoizer) fallback(ctx context.Context, key string, retention time.Duration, loadErr error) (*Result, error) {
	raw, createdAt, found, err := m.store.GetRaw(ctx, key+":data")
	if err != nil {
		m.logger.Warn("stale read failed", zap.Error(err), zap.String("key", key))
		return nil, loadErr
	}
	if !found {
		return nil, loadErr
	}

	ts, ok, err := m.metaTS(ctx, key)
	if err != nil || !ok {
		ts = createdAt
	}

	age := m.now().Sub(time.Unix(ts, 0))
	if age > retention {
		return nil, loadErr
	}

	m.metrics.StaleServes.Inc()
	m.logger.Warn("serving stale value after failed refresh",
		zap.String("key", key),
		zap.Duration("age", age),
		zap.Error(loadErr))
	return &Result{Raw: raw, Stale: true, Age: age, Err: loadErr}, nil
}

func (m *Memoizer) metaTS(ctx context.Context, key string) (int64, bool, error) {
	raw, _, found, err := m.store.GetRaw(ctx, key+":meta")
	if err != nil || !found {
		return 0, false, err
	}
	var mt meta
	if err := json.Unmarshal(raw, &mt); err != nil {
		return 0, false, nil
	}
	return mt.TS, true, nil
}
