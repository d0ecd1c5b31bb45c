// Package hearth is a persistent, TTL-based cache for volatile upstream
// data, with stale-if-error fallback, stampede protection and an embedded
// file-backed store. It keeps yesterday's embers warm enough to serve when
// the upstream is down.
package hearth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"goflare.io/hearth/config"
	"goflare.io/hearth/internal/memo"
	"goflare.io/hearth/internal/store"
	"goflare.io/hearth/models"
	"goflare.io/hearth/pkg/normalize"
)

// Option configures New.
type Option func(*config.Config) error

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config.Config) error {
		cfg.Logger = logger
		return nil
	}
}

// WithStorePath points the sqlite backend at path.
func WithStorePath(path string) Option {
	return func(cfg *config.Config) error {
		cfg.Backend = config.BackendSQLite
		cfg.StorePath = path
		return nil
	}
}

// WithMemoryStore selects the ephemeral in-memory backend.
func WithMemoryStore() Option {
	return func(cfg *config.Config) error {
		cfg.Backend = config.BackendMemory
		return nil
	}
}

// WithDefaultTTL sets the logical freshness window applied when a caller
// passes none.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(cfg *config.Config) error {
		cfg.DefaultTTL = ttl
		return nil
	}
}

// WithGrace sets the stale-retention window beyond the TTL.
func WithGrace(grace time.Duration) Option {
	return func(cfg *config.Config) error {
		cfg.Grace = grace
		return nil
	}
}

// WithLockTTL bounds how long an abandoned refresh lock can linger.
func WithLockTTL(ttl time.Duration) Option {
	return func(cfg *config.Config) error {
		cfg.LockTTL = ttl
		return nil
	}
}

// WithoutBloomFilter disables the negative-lookup filter.
func WithoutBloomFilter() Option {
	return func(cfg *config.Config) error {
		cfg.BloomFilterSettings.Enable = false
		return nil
	}
}

// Result is the outcome of a memoized read; see GetOrFetch.
type Result = memo.Result

// Hearth is the cache facade: a persistent store, a stale-tolerant
// memoizer and a bloom filter guarding reads of keys that were never
// written.
type Hearth struct {
	store   store.Store
	memo    *memo.Memoizer
	metrics *models.Metrics
	cfg     *config.Config
	logger  *zap.Logger
	tracer  trace.Tracer

	filterMu sync.RWMutex
	filter   *bloom.BloomFilter

	cancel context.CancelFunc
}

// New opens the configured store and starts the background filter rebuild.
func New(ctx context.Context, opts ...Option) (*Hearth, error) {
	cfg := config.New()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Logger == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize default logger: %w", err)
		}
		cfg.Logger = logger
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	metrics := models.NewMetrics()

	h := &Hearth{
		store:   st,
		memo:    memo.New(st, cfg.Logger, metrics, cfg.LockTTL),
		metrics: metrics,
		cfg:     cfg,
		logger:  cfg.Logger,
		tracer:  otel.Tracer("hearth"),
	}

	if cfg.BloomFilterSettings.Enable {
		h.filter = bloom.NewWithEstimates(
			cfg.BloomFilterSettings.ExpectedItems,
			cfg.BloomFilterSettings.FalsePositiveRate,
		)
		if err := h.rebuildFilter(ctx); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to seed bloom filter: %w", err)
		}

		rebuildCtx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		go h.periodicRebuild(rebuildCtx)
	}

	return h, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return store.OpenSQLite(ctx, cfg.StorePath)
	case config.BackendRedis:
		return store.NewRedis(ctx, cfg.RedisOptions)
	case config.BackendMemory:
		return store.NewMemory(), nil
	default:
		return nil, config.ErrUnknownBackend
	}
}

// Get retrieves the value under key into value, reporting whether a fresh
// entry was present.
func (h *Hearth) Get(ctx context.Context, key string, value any) (bool, error) {
	ctx, span := h.tracer.Start(ctx, "Hearth.Get", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	if !h.mightContain(key) {
		h.metrics.Misses.Inc()
		return false, nil
	}

	raw, found, err := h.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		h.metrics.Misses.Inc()
		return false, nil
	}

	if err := json.Unmarshal(raw, value); err != nil {
		return false, fmt.Errorf("failed to decode cached value for %q: %w", key, err)
	}
	h.metrics.Hits.Inc()
	return true, nil
}

// Set stores value under key. The value is normalized into a plain JSON
// tree first, so arbitrary provider payloads are always persistable.
func (h *Hearth) Set(ctx context.Context, key string, value any, ttl ...time.Duration) error {
	ctx, span := h.tracer.Start(ctx, "Hearth.Set", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	expiration := h.cfg.DefaultTTL
	if len(ttl) > 0 {
		expiration = ttl[0]
	}

	raw, err := json.Marshal(normalize.Value(value))
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	if err := h.store.Set(ctx, key, raw, expiration); err != nil {
		return err
	}

	h.addToFilter(key)
	return nil
}

// GetOrFetch returns the value under key, refreshing it through loader when
// older than ttl and falling back to a stale copy within the grace window
// when the refresh fails. Zero ttl/grace take the configured defaults.
func (h *Hearth) GetOrFetch(ctx context.Context, key string, ttl, grace time.Duration, loader func(context.Context) (any, error)) (*Result, error) {
	ctx, span := h.tracer.Start(ctx, "Hearth.GetOrFetch", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	if ttl <= 0 {
		ttl = h.cfg.DefaultTTL
	}
	if grace <= 0 {
		grace = h.cfg.Grace
	}

	res, err := h.memo.GetOrCompute(ctx, key, ttl, grace, loader)
	if err != nil {
		return nil, err
	}
	h.addToFilter(key + ":data")
	return res, nil
}

// Delete removes a single key.
func (h *Hearth) Delete(ctx context.Context, key string) error {
	ctx, span := h.tracer.Start(ctx, "Hearth.Delete", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	return h.store.Delete(ctx, key)
}

// Clear deletes every key with the given prefix; an empty prefix flushes
// the whole cache. This backs the administrative "clear cached data"
// action, so the filter is rebuilt immediately.
func (h *Hearth) Clear(ctx context.Context, prefix string) error {
	ctx, span := h.tracer.Start(ctx, "Hearth.Clear", trace.WithAttributes(attribute.String("prefix", prefix)))
	defer span.End()

	if err := h.store.Clear(ctx, prefix); err != nil {
		return err
	}
	if err := h.rebuildFilter(ctx); err != nil {
		h.logger.Warn("bloom filter rebuild after clear failed", zap.Error(err))
	}
	return nil
}

// Metrics exposes the cache statistics counters.
func (h *Hearth) Metrics() *models.Metrics { return h.metrics }

// Close stops background work and closes the store.
func (h *Hearth) Close() error {
	if h.cancel != nil {
		h.cancel()
	}
	return h.store.Close()
}

func (h *Hearth) mightContain(key string) bool {
	if h.filter == nil {
		return true
	}
	h.filterMu.RLock()
	defer h.filterMu.RUnlock()
	return h.filter.Test([]byte(key))
}

func (h *Hearth) addToFilter(key string) {
	if h.filter == nil {
		return
	}
	h.filterMu.Lock()
	h.filter.Add([]byte(key))
	h.filterMu.Unlock()
}

func (h *Hearth) periodicRebuild(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.BloomFilterSettings.RebuildInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.rebuildFilter(ctx); err != nil {
				h.logger.Error("periodic bloom filter rebuild failed", zap.Error(err))
			}
		}
	}
}

func (h *Hearth) rebuildFilter(ctx context.Context) error {
	if h.filter == nil {
		return nil
	}

	keys, err := h.store.Keys(ctx)
	if err != nil {
		return err
	}

	fresh := bloom.NewWithEstimates(
		h.cfg.BloomFilterSettings.ExpectedItems,
		h.cfg.BloomFilterSettings.FalsePositiveRate,
	)
	for _, k := range keys {
		fresh.Add([]byte(k))
	}

	h.filterMu.Lock()
	h.filter = fresh
	h.filterMu.Unlock()
	return nil
}
