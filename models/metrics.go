package models

import "go.uber.org/atomic"

// Metrics stores cache statistics
type Metrics struct {
	Hits          *atomic.Int64
	Misses        *atomic.Int64
	Refreshes     *atomic.Int64
	StaleServes   *atomic.Int64
	LockContended *atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		Hits:          atomic.NewInt64(0),
		Misses:        atomic.NewInt64(0),
		Refreshes:     atomic.NewInt64(0),
		StaleServes:   atomic.NewInt64(0),
		LockContended: atomic.NewInt64(0),
	}
}
