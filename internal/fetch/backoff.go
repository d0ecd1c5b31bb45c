package fetch

import (
	"math/rand"
	"time"
)

// backoff computes the delay before the next attempt. Rate-limit failures
// back off much harder than generic transient ones:
//
//	rate limit: min(5s * 2^(n-1), 60s) + jitter
//	transient:  min(1s * 2^(n-1), 20s) + jitter
//
// attempt is 1-based and counts the attempt that just failed.
type backoff struct {
	rateLimitBase time.Duration
	rateLimitCap  time.Duration
	transientBase time.Duration
	transientCap  time.Duration
	maxJitter     time.Duration
}

func defaultBackoff() backoff {
	return backoff{
		rateLimitBase: 5 * time.Second,
		rateLimitCap:  60 * time.Second,
		transientBase: time.Second,
		transientCap:  20 * time.Second,
		maxJitter:     600 * time.Millisecond,
	}
}

func (b backoff) delay(reason Reason, attempt int) time.Duration {
	base, limit := b.transientBase, b.transientCap
	if reason == ReasonRateLimit {
		base, limit = b.rateLimitBase, b.rateLimitCap
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			d = limit
			break
		}
	}
	if d > limit {
		d = limit
	}

	if b.maxJitter > 0 {
		d += time.Duration(rand.Int63n(int64(b.maxJitter)))
	}
	return d
}
