// Package config holds the configuration surface consumed by the cache
// core: storage backend, freshness windows and bloom filter behavior.
package config

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend selects the persistent store implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

var (
	ErrStorePathEmpty    = errors.New("store path must not be empty for the sqlite backend")
	ErrRedisOptionsNil   = errors.New("redis options must be set for the redis backend")
	ErrUnknownBackend    = errors.New("unknown store backend")
	ErrNonPositiveWindow = errors.New("ttl and grace must be positive")
)

// Config is the configuration for the cache core.
type Config struct {
	Backend      Backend
	StorePath    string // sqlite database file; ":memory:" for ephemeral
	RedisOptions *redis.Options

	// DefaultTTL is the logical freshness window applied when a caller
	// passes none; Grace is the extra retention beyond it during which a
	// stale value may still be served if a refresh fails.
	DefaultTTL time.Duration
	Grace      time.Duration

	// LockTTL bounds how long an abandoned refresh lock can linger.
	LockTTL time.Duration

	BloomFilterSettings BloomFilterConfig

	Logger *zap.Logger
}

// BloomFilterConfig is for configuring the negative-lookup filter in front
// of the persistent store.
type BloomFilterConfig struct {
	Enable            bool
	ExpectedItems     uint
	FalsePositiveRate float64
	RebuildInterval   time.Duration
}

// New returns a Config with the defaults tuned for a single-host cache of
// upstream financial data.
func New() *Config {
	return &Config{
		Backend:    BackendSQLite,
		StorePath:  "hearth.sqlite",
		DefaultTTL: 5 * time.Minute,
		Grace:      6 * time.Hour,
		LockTTL:    20 * time.Second,
		BloomFilterSettings: BloomFilterConfig{
			Enable:            true,
			ExpectedItems:     10_000,
			FalsePositiveRate: 0.01,
			RebuildInterval:   time.Hour,
		},
	}
}

// Validate checks cross-field consistency before the store is opened.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.StorePath == "" {
			return ErrStorePathEmpty
		}
	case BackendRedis:
		if c.RedisOptions == nil {
			return ErrRedisOptionsNil
		}
	case BackendMemory:
	default:
		return ErrUnknownBackend
	}

	if c.DefaultTTL <= 0 || c.Grace < 0 {
		return ErrNonPositiveWindow
	}
	return nil
}
