// Package finance exposes market datasets through the cache: quotes,
// company profiles, price and dividend history, and filing fundamentals.
// Every dataset flows through one memoized path so freshness, stampede
// protection and stale fallback behave identically across them.
package finance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"goflare.io/hearth"
	"goflare.io/hearth/analytics"
	"goflare.io/hearth/internal/fetch"
)

// ErrEmptySymbol is returned when a dataset is requested without a symbol.
var ErrEmptySymbol = errors.New("finance: symbol is empty")

// Freshness windows per dataset. Quotes churn constantly, profiles and
// filings barely move.
const (
	defaultQuoteTTL        = 5 * time.Minute
	defaultProfileTTL      = 30 * 24 * time.Hour
	defaultFundamentalsTTL = 90 * 24 * time.Hour
	defaultHistoryTTL      = 6 * time.Hour

	defaultMinInterval = 900 * time.Millisecond
)

// Config configures a Service.
type Config struct {
	BaseURL   string
	APIKey    string
	APIHost   string
	UserAgent string

	// MinInterval spaces outbound provider calls; the provider's contract
	// allows roughly one call per second.
	MinInterval time.Duration

	QuoteTTL        time.Duration
	ProfileTTL      time.Duration
	FundamentalsTTL time.Duration
	HistoryTTL      time.Duration

	// Grace widens how long expired entries remain servable when the
	// provider is failing. Zero uses the cache's configured default.
	Grace time.Duration

	ResponseCacheTTL time.Duration

	Logger *zap.Logger
}

func (cfg *Config) withDefaults() {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = defaultQuoteTTL
	}
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = defaultProfileTTL
	}
	if cfg.FundamentalsTTL <= 0 {
		cfg.FundamentalsTTL = defaultFundamentalsTTL
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = defaultHistoryTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// Service resolves datasets for a symbol, caching each under its own key
// and refreshing through a throttled, retrying provider client.
type Service struct {
	cache  *hearth.Hearth
	client *fetch.Client
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewService builds a Service over an opened cache.
func NewService(cache *hearth.Hearth, cfg Config) (*Service, error) {
	cfg.withDefaults()

	headers := make(map[string]string)
	if cfg.APIKey != "" {
		headers["x-rapidapi-key"] = cfg.APIKey
	}
	if cfg.APIHost != "" {
		headers["x-rapidapi-host"] = cfg.APIHost
	}

	client, err := fetch.New(fetch.Config{
		BaseURL:          cfg.BaseURL,
		Headers:          headers,
		UserAgent:        cfg.UserAgent,
		MinInterval:      cfg.MinInterval,
		ResponseCacheTTL: cfg.ResponseCacheTTL,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}

	return &Service{
		cache:  cache,
		client: client,
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}, nil
}

// Quote returns the latest snapshot for symbol. The stale flag is set when
// the provider was unreachable and an expired entry inside the grace window
// was served instead.
func (s *Service) Quote(ctx context.Context, symbol string) (*Quote, bool, error) {
	sym, err := cleanSymbol(symbol)
	if err != nil {
		return nil, false, err
	}

	var q Quote
	stale, err := s.cached(ctx, "quote:"+sym, s.cfg.QuoteTTL, &q, func(ctx context.Context) (any, error) {
		return s.loadQuote(ctx, sym)
	})
	if err != nil {
		return nil, false, err
	}
	return &q, stale, nil
}

// Profile returns the descriptive company record for symbol.
func (s *Service) Profile(ctx context.Context, symbol string) (*Profile, bool, error) {
	sym, err := cleanSymbol(symbol)
	if err != nil {
		return nil, false, err
	}

	var p Profile
	stale, err := s.cached(ctx, "profile:"+sym, s.cfg.ProfileTTL, &p, func(ctx context.Context) (any, error) {
		doc, err := s.getDocument(ctx, "/profile", sym, nil)
		if err != nil {
			return nil, err
		}
		return parseProfile(sym, doc), nil
	})
	if err != nil {
		return nil, false, err
	}
	return &p, stale, nil
}

// History returns up to years of daily closes for symbol, oldest first.
func (s *Service) History(ctx context.Context, symbol string, years int) ([]Candle, bool, error) {
	sym, err := cleanSymbol(symbol)
	if err != nil {
		return nil, false, err
	}

	key := fmt.Sprintf("history:%s:%dy", sym, years)
	var candles []Candle
	stale, err := s.cached(ctx, key, s.cfg.HistoryTTL, &candles, func(ctx context.Context) (any, error) {
		return s.loadHistory(ctx, sym, fmt.Sprintf("%dy", years))
	})
	if err != nil {
		return nil, false, err
	}
	return candles, stale, nil
}

// Dividends returns up to years of cash distributions for symbol, oldest
// first.
func (s *Service) Dividends(ctx context.Context, symbol string, years int) ([]Dividend, bool, error) {
	sym, err := cleanSymbol(symbol)
	if err != nil {
		return nil, false, err
	}

	key := fmt.Sprintf("dividends:%s:%dy", sym, years)
	var divs []Dividend
	stale, err := s.cached(ctx, key, s.cfg.HistoryTTL, &divs, func(ctx context.Context) (any, error) {
		params := url.Values{"range": {fmt.Sprintf("%dy", years)}}
		doc, err := s.getDocument(ctx, "/dividends", sym, params)
		if err != nil {
			return nil, err
		}
		return parseDividends(doc), nil
	})
	if err != nil {
		return nil, false, err
	}
	return divs, stale, nil
}

// Fundamentals returns the annual filing series for symbol.
func (s *Service) Fundamentals(ctx context.Context, symbol string) (*Fundamentals, bool, error) {
	sym, err := cleanSymbol(symbol)
	if err != nil {
		return nil, false, err
	}

	var f Fundamentals
	stale, err := s.cached(ctx, "fundamentals:"+sym, s.cfg.FundamentalsTTL, &f, func(ctx context.Context) (any, error) {
		doc, err := s.getDocument(ctx, "/fundamentals", sym, nil)
		if err != nil {
			return nil, err
		}
		return parseFundamentals(sym, doc), nil
	})
	if err != nil {
		return nil, false, err
	}
	return &f, stale, nil
}

// Summary combines the quote with metrics derived from years of price and
// dividend history. Datasets degrade independently; a metric whose inputs
// are unavailable is left nil rather than failing the whole summary.
func (s *Service) Summary(ctx context.Context, symbol string, years int) (*Summary, error) {
	quote, quoteStale, err := s.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Quote: quote, Stale: quoteStale}

	candles, histStale, err := s.History(ctx, symbol, years)
	if err != nil {
		s.logger.Warn("price history unavailable for summary",
			zap.String("symbol", quote.Symbol), zap.Error(err))
	} else {
		sum.Stale = sum.Stale || histStale
		points := PricePoints(candles)
		if v, ok := analytics.CAGR(points); ok {
			sum.CAGR = &v
		}
		if v, ok := analytics.AnnualizedVolatility(points); ok {
			sum.Volatility = &v
		}
		if v, ok := analytics.MaxDrawdown(points); ok {
			sum.MaxDrawdown = &v
		}
	}

	divs, divStale, err := s.Dividends(ctx, symbol, years)
	if err != nil {
		s.logger.Warn("dividend history unavailable for summary",
			zap.String("symbol", quote.Symbol), zap.Error(err))
		return sum, nil
	}
	sum.Stale = sum.Stale || divStale

	payments := DividendPayments(divs)
	sum.TTMDividend = analytics.TTMDividend(payments, s.now())
	if quote.Last != nil {
		if v, ok := analytics.TTMYield(payments, *quote.Last, s.now()); ok {
			sum.TTMYield = &v
		}
	}
	if v, ok := analytics.DividendCAGR(payments); ok {
		sum.DividendCAGR = &v
	}
	return sum, nil
}

// cached runs loader through the memoized path and decodes the result into
// out. The returned flag reports a stale serve.
func (s *Service) cached(ctx context.Context, key string, ttl time.Duration, out any, loader func(context.Context) (any, error)) (bool, error) {
	res, err := s.cache.GetOrFetch(ctx, key, ttl, s.cfg.Grace, loader)
	if err != nil {
		return false, err
	}
	if res.Stale {
		s.logger.Warn("serving stale dataset",
			zap.String("key", key),
			zap.Duration("age", res.Age),
			zap.Error(res.Err))
	}
	if err := res.Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode dataset %q: %w", key, err)
	}
	return res.Stale, nil
}

func (s *Service) getDocument(ctx context.Context, path, symbol string, params url.Values) (*Document, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("symbol", symbol)

	raw, err := s.client.GetJSON(ctx, path, params)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse provider response: %w", err)
	}
	return doc, nil
}

func (s *Service) loadQuote(ctx context.Context, sym string) (*Quote, error) {
	doc, err := s.getDocument(ctx, "/quote", sym, nil)
	if err != nil {
		return nil, err
	}
	q := parseQuote(sym, doc)

	// Some plans omit the day-change fields; derive them from the last two
	// closes instead of reporting nothing.
	if q.Last != nil && (q.NetChange == nil || q.PctChange == nil) {
		if err := s.deriveChange(ctx, sym, q); err != nil {
			s.logger.Debug("could not derive day change from history",
				zap.String("symbol", sym), zap.Error(err))
		}
	}
	return q, nil
}

func (s *Service) deriveChange(ctx context.Context, sym string, q *Quote) error {
	candles, err := s.loadHistory(ctx, sym, "5d")
	if err != nil {
		return err
	}
	if len(candles) < 2 {
		return fmt.Errorf("history too short to derive change: %d candle(s)", len(candles))
	}

	prev := candles[len(candles)-2].Close
	if prev == 0 {
		return errors.New("previous close is zero")
	}

	net := *q.Last - prev
	pct := net / prev * 100
	q.NetChange = &net
	q.PctChange = &pct
	return nil
}

func (s *Service) loadHistory(ctx context.Context, sym, span string) ([]Candle, error) {
	params := url.Values{"range": {span}, "interval": {"1d"}}
	doc, err := s.getDocument(ctx, "/history", sym, params)
	if err != nil {
		return nil, err
	}
	return parseHistory(doc), nil
}

func cleanSymbol(symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", ErrEmptySymbol
	}
	return sym, nil
}
