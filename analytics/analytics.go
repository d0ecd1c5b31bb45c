// Package analytics computes derived metrics over normalized market time
// series. Every function returns its value with an ok flag instead of an
// error: insufficient input is a first-class, renderable state for the
// caller, not a failure.
package analytics

import (
	"math"
	"time"
)

const (
	daysPerYear   = 365.25
	tradingDays   = 252
	ttmWindowDays = 365
)

// Point is one observation of an ordered (ascending by date) price series.
type Point struct {
	Date  time.Time
	Value float64
}

// Payment is a single dividend distribution.
type Payment struct {
	ExDate time.Time
	Amount float64
}

// CAGR is the compound annual growth rate between the first and last point.
// Undefined when the series spans no time or starts at or below zero.
func CAGR(series []Point) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}
	first, last := series[0], series[len(series)-1]

	days := last.Date.Sub(first.Date).Hours() / 24
	if days <= 0 || first.Value <= 0 {
		return 0, false
	}
	return math.Pow(last.Value/first.Value, daysPerYear/days) - 1, true
}

// AnnualizedVolatility is the standard deviation of daily simple returns
// scaled by sqrt(252). Undefined with fewer than two return observations.
func AnnualizedVolatility(series []Point) (float64, bool) {
	returns := dailyReturns(series)
	if len(returns) < 2 {
		return 0, false
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	variance := ss / float64(len(returns)-1)

	return math.Sqrt(variance) * math.Sqrt(tradingDays), true
}

// MaxDrawdown is the largest peak-to-trough loss over the series, as a
// non-positive fraction; 0 for a monotonically non-decreasing series.
func MaxDrawdown(series []Point) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}

	peak := series[0].Value
	worst := 0.0
	for _, p := range series[1:] {
		if p.Value > peak {
			peak = p.Value
			continue
		}
		if peak > 0 {
			if dd := p.Value/peak - 1; dd < worst {
				worst = dd
			}
		}
	}
	return worst, true
}

// TTMDividend is the sum of distributions with an ex-date within the
// trailing 365 days of now.
func TTMDividend(payments []Payment, now time.Time) float64 {
	cutoff := now.AddDate(0, 0, -ttmWindowDays)

	var sum float64
	for _, p := range payments {
		if p.ExDate.After(cutoff) && !p.ExDate.After(now) {
			sum += p.Amount
		}
	}
	return sum
}

// TTMYield is the trailing-twelve-month dividend sum over the last price.
// Undefined when the price is absent or zero.
func TTMYield(payments []Payment, lastPrice float64, now time.Time) (float64, bool) {
	if lastPrice <= 0 {
		return 0, false
	}
	return TTMDividend(payments, now) / lastPrice, true
}

// DividendCAGR is the compound growth rate between the first and last
// calendar-year dividend sums. Undefined when fewer than two years are
// covered or either endpoint sum is non-positive.
func DividendCAGR(payments []Payment) (float64, bool) {
	if len(payments) == 0 {
		return 0, false
	}

	annual := make(map[int]float64)
	firstYear, lastYear := payments[0].ExDate.Year(), payments[0].ExDate.Year()
	for _, p := range payments {
		y := p.ExDate.Year()
		annual[y] += p.Amount
		if y < firstYear {
			firstYear = y
		}
		if y > lastYear {
			lastYear = y
		}
	}

	span := lastYear - firstYear
	if span <= 0 {
		return 0, false
	}

	first, last := annual[firstYear], annual[lastYear]
	if first <= 0 || last <= 0 {
		return 0, false
	}
	return math.Pow(last/first, 1/float64(span)) - 1, true
}

func dailyReturns(series []Point) []float64 {
	if len(series) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1].Value
		if prev == 0 {
			continue
		}
		returns = append(returns, series[i].Value/prev-1)
	}
	return returns
}
