package finance

import (
	"time"

	"goflare.io/hearth/analytics"
)

// Quote is a point-in-time snapshot of a traded instrument. Optional fields
// are pointers; nil means the provider did not report a value.
type Quote struct {
	Symbol    string     `json:"symbol"`
	Name      string     `json:"name,omitempty"`
	Exchange  string     `json:"exchange,omitempty"`
	Currency  string     `json:"currency,omitempty"`
	Last      *float64   `json:"last,omitempty"`
	NetChange *float64   `json:"net_change,omitempty"`
	PctChange *float64   `json:"pct_change,omitempty"`
	Volume    *int64     `json:"volume,omitempty"`
	AsOf      *time.Time `json:"as_of,omitempty"`
}

// Profile carries the slow-moving descriptive facts about a company.
type Profile struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name,omitempty"`
	Sector    string `json:"sector,omitempty"`
	Industry  string `json:"industry,omitempty"`
	Country   string `json:"country,omitempty"`
	Website   string `json:"website,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Employees *int64 `json:"employees,omitempty"`
}

// Candle is one daily closing observation.
type Candle struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Dividend is one cash distribution keyed by its ex-date.
type Dividend struct {
	ExDate time.Time `json:"ex_date"`
	Amount float64   `json:"amount"`
}

// AnnualFact is one fiscal-year value of a reported concept.
type AnnualFact struct {
	Year  int     `json:"year"`
	End   string  `json:"end"`
	Value float64 `json:"value"`
}

// Fundamentals holds per-concept annual series extracted from a company's
// regulatory filings, plus the latest value of each concept.
type Fundamentals struct {
	Symbol string                  `json:"symbol"`
	Series map[string][]AnnualFact `json:"series"`
}

// Latest returns the most recent annual value of a concept.
func (f *Fundamentals) Latest(concept string) (float64, bool) {
	facts := f.Series[concept]
	if len(facts) == 0 {
		return 0, false
	}
	return facts[len(facts)-1].Value, true
}

// Summary aggregates a quote with derived metrics over the price and
// dividend history. Nil metric pointers mean the metric was undefined for
// the available data. Stale is set when any contributing dataset was served
// past its freshness window.
type Summary struct {
	Quote        *Quote   `json:"quote"`
	CAGR         *float64 `json:"cagr,omitempty"`
	Volatility   *float64 `json:"volatility,omitempty"`
	MaxDrawdown  *float64 `json:"max_drawdown,omitempty"`
	TTMDividend  float64  `json:"ttm_dividend"`
	TTMYield     *float64 `json:"ttm_yield,omitempty"`
	DividendCAGR *float64 `json:"dividend_cagr,omitempty"`
	Stale        bool     `json:"stale"`
}

// PricePoints converts candles to the analytics series representation.
func PricePoints(candles []Candle) []analytics.Point {
	points := make([]analytics.Point, len(candles))
	for i, c := range candles {
		points[i] = analytics.Point{Date: c.Date, Value: c.Close}
	}
	return points
}

// DividendPayments converts dividends to the analytics payment representation.
func DividendPayments(dividends []Dividend) []analytics.Payment {
	payments := make([]analytics.Payment, len(dividends))
	for i, d := range dividends {
		payments[i] = analytics.Payment{ExDate: d.ExDate, Amount: d.Amount}
	}
	return payments
}
