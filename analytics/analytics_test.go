package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(offsetDays float64) time.Time {
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(offsetDays * 24 * float64(time.Hour)))
}

func TestCAGRTwoYearDouble(t *testing.T) {
	// 100 -> 121 over exactly two years (730.5 days at 365.25 days/year)
	series := []Point{
		{Date: day(0), Value: 100},
		{Date: day(365.25), Value: 110},
		{Date: day(730.5), Value: 121},
	}
	got, ok := CAGR(series)
	assert.True(t, ok)
	assert.InDelta(t, 0.10, got, 1e-9)
}

func TestCAGRUndefined(t *testing.T) {
	_, ok := CAGR(nil)
	assert.False(t, ok)

	_, ok = CAGR([]Point{{Date: day(0), Value: 100}})
	assert.False(t, ok, "single point spans no time")

	_, ok = CAGR([]Point{{Date: day(0), Value: 100}, {Date: day(0), Value: 110}})
	assert.False(t, ok, "zero day span")

	_, ok = CAGR([]Point{{Date: day(0), Value: 0}, {Date: day(365), Value: 110}})
	assert.False(t, ok, "non-positive start price")
}

func TestAnnualizedVolatility(t *testing.T) {
	series := []Point{
		{Date: day(0), Value: 100},
		{Date: day(1), Value: 102},
		{Date: day(2), Value: 99},
		{Date: day(3), Value: 101},
	}
	got, ok := AnnualizedVolatility(series)
	assert.True(t, ok)
	assert.Greater(t, got, 0.0)

	// flat series: returns are all zero, volatility is zero
	flat := []Point{
		{Date: day(0), Value: 100},
		{Date: day(1), Value: 100},
		{Date: day(2), Value: 100},
	}
	got, ok = AnnualizedVolatility(flat)
	assert.True(t, ok)
	assert.InDelta(t, 0.0, got, 1e-12)
}

func TestAnnualizedVolatilityUndefined(t *testing.T) {
	_, ok := AnnualizedVolatility(nil)
	assert.False(t, ok)

	_, ok = AnnualizedVolatility([]Point{{Date: day(0), Value: 100}})
	assert.False(t, ok)

	_, ok = AnnualizedVolatility([]Point{{Date: day(0), Value: 100}, {Date: day(1), Value: 101}})
	assert.False(t, ok, "one return observation is not enough")
}

func TestMaxDrawdown(t *testing.T) {
	series := []Point{
		{Date: day(0), Value: 100},
		{Date: day(1), Value: 50},
		{Date: day(2), Value: 100},
	}
	got, ok := MaxDrawdown(series)
	assert.True(t, ok)
	assert.InDelta(t, -0.50, got, 1e-12)

	rising := []Point{
		{Date: day(0), Value: 100},
		{Date: day(1), Value: 100},
		{Date: day(2), Value: 120},
	}
	got, ok = MaxDrawdown(rising)
	assert.True(t, ok)
	assert.Zero(t, got, "monotonically non-decreasing series never draws down")

	_, ok = MaxDrawdown([]Point{{Date: day(0), Value: 100}})
	assert.False(t, ok)
}

func TestTTMDividend(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	payments := []Payment{
		{ExDate: now.AddDate(0, -15, 0), Amount: 0.20}, // outside the window
		{ExDate: now.AddDate(0, -9, 0), Amount: 0.22},
		{ExDate: now.AddDate(0, -3, 0), Amount: 0.24},
		{ExDate: now.AddDate(0, 1, 0), Amount: 0.26}, // future ex-date
	}
	assert.InDelta(t, 0.46, TTMDividend(payments, now), 1e-12)
	assert.Zero(t, TTMDividend(nil, now))
}

func TestTTMYield(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	payments := []Payment{{ExDate: now.AddDate(0, -1, 0), Amount: 2}}

	got, ok := TTMYield(payments, 50, now)
	assert.True(t, ok)
	assert.InDelta(t, 0.04, got, 1e-12)

	_, ok = TTMYield(payments, 0, now)
	assert.False(t, ok)
}

func TestDividendCAGR(t *testing.T) {
	payments := []Payment{
		{ExDate: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), Amount: 0.50},
		{ExDate: time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC), Amount: 0.50},
		{ExDate: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), Amount: 0.55},
		{ExDate: time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), Amount: 0.60},
		{ExDate: time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC), Amount: 0.61},
	}
	// annual sums: 2020 = 1.00, 2022 = 1.21, span = 2 years
	got, ok := DividendCAGR(payments)
	assert.True(t, ok)
	assert.InDelta(t, math.Sqrt(1.21)-1, got, 1e-9)
}

func TestDividendCAGRUndefined(t *testing.T) {
	_, ok := DividendCAGR(nil)
	assert.False(t, ok)

	oneYear := []Payment{
		{ExDate: time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), Amount: 0.50},
		{ExDate: time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC), Amount: 0.50},
	}
	_, ok = DividendCAGR(oneYear)
	assert.False(t, ok, "a single covered year has no growth rate")
}
