package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisEnvelope carries the creation timestamp and logical TTL alongside the
// value so that Get/GetRaw keep the same semantics as the SQL backend even
// though Redis enforces its own physical expiry.
type redisEnvelope struct {
	Value     json.RawMessage `json:"v"`
	CreatedAt int64           `json:"c"`
	TTL       int64           `json:"t"`
}

// Redis is a Store backend for deployments that already run Redis. The
// physical EXPIRE is set to the entry TTL, so raw reads only outlive the
// logical window while the entry is still physically retained.
type Redis struct {
	client redis.Cmdable
	closer func() error
	now    func() time.Time
}

func NewRedis(ctx context.Context, opts *redis.Options) (*Redis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, wrap("ping", "", err)
	}
	return &Redis{client: client, closer: client.Close, now: time.Now}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	env, ok, err := r.fetch(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	if expired(env.CreatedAt, env.TTL, r.now()) {
		if err := r.Delete(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return env.Value, true, nil
}

func (r *Redis) GetRaw(ctx context.Context, key string) (json.RawMessage, int64, bool, error) {
	env, ok, err := r.fetch(ctx, key)
	if err != nil || !ok {
		return nil, 0, false, err
	}
	return env.Value, env.CreatedAt, true, nil
}

func (r *Redis) fetch(ctx context.Context, key string) (*redisEnvelope, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, wrap("get", key, err)
	}

	var env redisEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, wrap("decode", key, err)
	}
	return &env, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	data, err := json.Marshal(redisEnvelope{
		Value:     value,
		CreatedAt: r.now().Unix(),
		TTL:       seconds(ttl),
	})
	if err != nil {
		return wrap("encode", key, err)
	}

	if err := r.client.Set(ctx, key, data, physicalTTL(ttl)).Err(); err != nil {
		return wrap("set", key, err)
	}
	return nil
}

func (r *Redis) Add(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(redisEnvelope{
		Value:     value,
		CreatedAt: r.now().Unix(),
		TTL:       seconds(ttl),
	})
	if err != nil {
		return false, wrap("encode", key, err)
	}

	ok, err := r.client.SetNX(ctx, key, data, physicalTTL(ttl)).Result()
	if err != nil {
		return false, wrap("add", key, err)
	}
	return ok, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return wrap("delete", key, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, prefix string) error {
	match := "*"
	if prefix != "" {
		match = globEscape(prefix) + "*"
	}

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, 1000).Result()
		if err != nil {
			return wrap("clear", prefix, err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return wrap("clear", prefix, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, "*", 1000).Result()
		if err != nil {
			return nil, wrap("keys", "", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (r *Redis) Close() error {
	if r.closer != nil {
		return r.closer()
	}
	return nil
}

func physicalTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// globEscape makes a prefix safe to use in a SCAN MATCH pattern, so keys
// containing glob metacharacters are matched literally. Counterpart of the
// LIKE escaping in the sqlite backend.
func globEscape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
