package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const snippetLen = 300

// Config configures a Client.
type Config struct {
	BaseURL   string
	Headers   map[string]string // provider auth headers, sent on every request
	UserAgent string

	// MinInterval is the enforced spacing between outbound calls across
	// every caller sharing this client, independent of key.
	MinInterval time.Duration
	MaxAttempts int
	Timeout     time.Duration

	// ResponseCacheTTL short-circuits identical GETs within the window.
	// Zero disables the response cache.
	ResponseCacheTTL time.Duration

	Breaker gobreaker.Settings
	Logger  *zap.Logger
}

// Client executes upstream operations under a global throttle, a retry loop
// with classified backoff, and a circuit breaker.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	backoff    backoff
	classify   Classifier
	respCache  *ristretto.Cache
	logger     *zap.Logger

	baseURL     string
	headers     map[string]string
	userAgent   string
	maxAttempts int
	respTTL     time.Duration

	sleep func(context.Context, time.Duration) error
}

// New creates a Client. The zero Config is usable for tests; production
// callers set at least BaseURL and Headers.
func New(cfg Config) (*Client, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "upstream"
	}

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(limit, 1),
		breaker:     gobreaker.NewCircuitBreaker(cfg.Breaker),
		backoff:     defaultBackoff(),
		classify:    Classify,
		logger:      cfg.Logger,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		headers:     cfg.Headers,
		userAgent:   cfg.UserAgent,
		maxAttempts: cfg.MaxAttempts,
		respTTL:     cfg.ResponseCacheTTL,
		sleep:       sleepCtx,
	}

	if cfg.ResponseCacheTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 10_000,
			MaxCost:     32 << 20,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}
		c.respCache = cache
	}

	return c, nil
}

// Do runs op under the throttle, the classified retry loop and the circuit
// breaker. op must perform exactly one upstream operation per invocation.
func (c *Client) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.retry(ctx, op)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Attempts: 0, Err: err}
	}
	return err
}

func (c *Client) retry(ctx context.Context, op func(context.Context) error) error {
	var last error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err

		reason := c.classify(err)
		if reason == ReasonFatal {
			return err
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoff.delay(reason, attempt)
		c.logger.Debug("upstream attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Bool("rate_limited", reason == ReasonRateLimit),
			zap.Error(err))

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &Error{Attempts: c.maxAttempts, Status: statusOf(last), Err: last}
}

// GetJSON performs a GET against the configured base URL and returns the
// raw JSON body. Identical requests within the response-cache window are
// served without touching the upstream.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	fullURL := c.buildURL(path, params)

	if c.respCache != nil {
		if hit, ok := c.respCache.Get(fullURL); ok {
			return hit.(json.RawMessage), nil
		}
	}

	var body json.RawMessage
	err := c.Do(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.getOnce(ctx, fullURL)
		return err
	})
	if err != nil {
		return nil, err
	}

	if c.respCache != nil {
		c.respCache.SetWithTTL(fullURL, body, int64(len(body)), c.respTTL)
	}
	return body, nil
}

func (c *Client) getOnce(ctx context.Context, fullURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Status: resp.StatusCode, Snippet: snippet(raw)}
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("response is not JSON (content-type %q): %s",
			resp.Header.Get("Content-Type"), snippet(raw))
	}
	return raw, nil
}

func (c *Client) buildURL(path string, params url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	full := c.baseURL + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	return full
}

func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > snippetLen {
		s = s[:snippetLen]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
