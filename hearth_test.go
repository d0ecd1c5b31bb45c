package hearth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func newHearth(t *testing.T, opts ...Option) *Hearth {
	t.Helper()
	opts = append([]Option{WithMemoryStore(), WithLogger(zap.NewNop())}, opts...)
	h, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestSetGetRoundTrip(t *testing.T) {
	h := newHearth(t)
	ctx := context.Background()

	type quote struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	require.NoError(t, h.Set(ctx, "quote:AAPL", quote{Symbol: "AAPL", Price: 190.5}))

	var got quote
	found, err := h.Get(ctx, "quote:AAPL", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, quote{Symbol: "AAPL", Price: 190.5}, got)
}

func TestGetAbsentKey(t *testing.T) {
	h := newHearth(t)

	var v any
	found, err := h.Get(context.Background(), "never:written", &v)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(1), h.Metrics().Misses.Load())
}

func TestClearPrefix(t *testing.T) {
	h := newHearth(t)
	ctx := context.Background()

	require.NoError(t, h.Set(ctx, "quote:AAPL", 1))
	require.NoError(t, h.Set(ctx, "quote:MSFT", 2))
	require.NoError(t, h.Set(ctx, "profile:AAPL", 3))

	require.NoError(t, h.Clear(ctx, "quote:"))

	var v int
	found, err := h.Get(ctx, "quote:AAPL", &v)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = h.Get(ctx, "profile:AAPL", &v)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, v)
}

func TestGetOrFetch(t *testing.T) {
	h := newHearth(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]any{"price": 101.25}, nil
	}

	res, err := h.GetOrFetch(ctx, "quote:TEST", time.Minute, time.Hour, loader)
	require.NoError(t, err)
	assert.False(t, res.Stale)

	res, err = h.GetOrFetch(ctx, "quote:TEST", time.Minute, time.Hour, loader)
	require.NoError(t, err)
	assert.False(t, res.Stale)
	assert.Equal(t, 1, calls, "second read is served from cache")

	var decoded map[string]any
	require.NoError(t, res.Decode(&decoded))
	assert.Equal(t, 101.25, decoded["price"])
}

func TestWithLockTTL(t *testing.T) {
	h := newHearth(t, WithLockTTL(42*time.Second))
	assert.Equal(t, 42*time.Second, h.cfg.LockTTL)
}

func TestBloomFilterSkipsUnknownKeys(t *testing.T) {
	h := newHearth(t)
	ctx := context.Background()

	require.NoError(t, h.Set(ctx, "known", "v"))

	var v string
	found, err := h.Get(ctx, "known", &v)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = h.Get(ctx, "unknown", &v)
	require.NoError(t, err)
	assert.False(t, found)
}
