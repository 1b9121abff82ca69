package xueqiu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"xqcrawler/pkg/browser"
	"xqcrawler/pkg/config"
	xerrs "xqcrawler/pkg/errors"
	"xqcrawler/pkg/logger"
	"xqcrawler/pkg/proxy"
	"xqcrawler/pkg/ratelimit"
	"xqcrawler/pkg/retry"
)

const bodyPreviewLen = 200

// Options configures a Client.
type Options struct {
	BaseURL           string
	CookieDomain      string
	UserAgent         string
	Timeout           time.Duration
	ChallengeAttempts int
	ChallengeDelay    time.Duration
	Limiter           ratelimit.Limiter
	Retry             *retry.Config
	Proxy             proxy.Provider
	// Transport replaces the default transport; tests inject a round tripper.
	Transport http.RoundTripper
}

// OptionsFromConfig maps the platform, challenge and rate limit sections.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		BaseURL:           cfg.Platform.BaseURL,
		CookieDomain:      cfg.Platform.CookieDomain,
		UserAgent:         cfg.Platform.UserAgent,
		Timeout:           cfg.Platform.RequestTimeout,
		ChallengeAttempts: cfg.Challenge.MaxAttempts,
		ChallengeDelay:    cfg.Challenge.RetryDelay,
		Retry: &retry.Config{
			MaxAttempts: cfg.RateLimit.MaxRetries,
			Backoff: &retry.ExponentialBackoff{
				BaseDelay:    cfg.RateLimit.RetryDelay,
				MaxDelay:     30 * time.Second,
				Multiplier:   2.0,
				JitterFactor: 0.1,
			},
			RetryIf: retry.DefaultRetryIf,
		},
	}
	var limiters []ratelimit.Limiter
	if cfg.RateLimit.RequestsPerMinute > 0 {
		limiters = append(limiters, ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute))
	}
	if cfg.RateLimit.Burst > 0 {
		limiters = append(limiters, ratelimit.NewTokenBucket(cfg.RateLimit.Burst, cfg.RateLimit.BurstPeriod))
	}
	opts.Limiter = ratelimit.NewChain(limiters...)
	return opts
}

// Client executes authenticated API requests. It owns the Cookie header and
// transparently answers anti-bot challenges by injecting the challenge
// cookies into the browser page and retrying.
type Client struct {
	httpClient        *http.Client
	page              browser.Page
	baseURL           string
	cookieDomain      string
	limiter           ratelimit.Limiter
	retry             *retry.Config
	challengeAttempts int
	challengeDelay    time.Duration
	logger            logger.Logger

	headerMu sync.RWMutex
	headers  http.Header

	// challengeMu serializes every write to the page's cookie jar.
	challengeMu sync.Mutex
}

type rawResponse struct {
	status int
	body   []byte
}

// NewClient creates a client bound to page's cookie jar.
func NewClient(page browser.Page, opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.CookieDomain == "" {
		opts.CookieDomain = CookieDomain
	}
	if opts.ChallengeAttempts <= 0 {
		opts.ChallengeAttempts = 3
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = log
	}

	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if opts.Proxy != nil {
			t.Proxy = proxyFunc(opts.Proxy)
		}
		transport = t
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json, text/plain, */*")
	headers.Set("Accept-Language", "zh-CN,zh;q=0.9")
	headers.Set("Origin", opts.BaseURL)
	headers.Set("Referer", opts.BaseURL+"/")
	if opts.UserAgent != "" {
		headers.Set("User-Agent", opts.UserAgent)
	}

	return &Client{
		httpClient:        &http.Client{Timeout: opts.Timeout, Transport: transport},
		page:              page,
		baseURL:           opts.BaseURL,
		cookieDomain:      opts.CookieDomain,
		limiter:           opts.Limiter,
		retry:             opts.Retry,
		challengeAttempts: opts.ChallengeAttempts,
		challengeDelay:    opts.ChallengeDelay,
		logger:            log.WithField("component", "xueqiu_client"),
		headers:           headers,
	}
}

func proxyFunc(p proxy.Provider) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		info, err := p.Get(req.Context())
		if errors.Is(err, proxy.ErrNoProxy) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return info.URL, nil
	}
}

// BaseURL returns the site root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CookieHeader returns the Cookie header currently sent.
func (c *Client) CookieHeader() string {
	c.headerMu.RLock()
	defer c.headerMu.RUnlock()
	return c.headers.Get("Cookie")
}

// RefreshCookies rebuilds the Cookie header from the page's cookie jar.
func (c *Client) RefreshCookies(ctx context.Context) error {
	c.challengeMu.Lock()
	defer c.challengeMu.Unlock()
	return c.syncCookies(ctx)
}

func (c *Client) syncCookies(ctx context.Context) error {
	cookies, err := c.page.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("read page cookies: %w", err)
	}
	header := browser.CookieHeader(cookies)

	c.headerMu.Lock()
	c.headers.Set("Cookie", header)
	c.headerMu.Unlock()

	c.logger.DebugWithFields("cookie header refreshed", map[string]interface{}{
		"cookies": len(cookies),
	})
	return nil
}

// Request performs a request against path and returns the decoded JSON
// object. Failures are typed: 401 is auth_required; other non-2xx
// statuses, undecodable bodies and a non-zero error_code are data_fetch;
// a challenge still present after the last attempt is challenge.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values) (map[string]any, error) {
	return c.request(ctx, method, path, params, nil)
}

func (c *Client) request(ctx context.Context, method, path string, params url.Values, extra http.Header) (map[string]any, error) {
	for attempt := 1; ; attempt++ {
		res, err := c.send(ctx, method, path, params, extra)
		if err != nil {
			return nil, err
		}
		values, ok := detectChallenge(res.body)
		if !ok {
			return c.decode(path, res)
		}

		logger.LogChallenge(c.logger, path, attempt, c.challengeAttempts)
		if attempt >= c.challengeAttempts {
			return nil, xerrs.NewChallenge(attempt)
		}

		c.challengeMu.Lock()
		err = c.solveChallenge(ctx, values)
		c.challengeMu.Unlock()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.WithError(err).Warn("could not answer anti-bot challenge")
			e := xerrs.NewChallenge(attempt)
			e.Err = err
			return nil, e
		}

		if err := retry.Wait(ctx, c.challengeDelay); err != nil {
			return nil, err
		}
	}
}

// send performs one HTTP exchange, retrying transport failures.
func (c *Client) send(ctx context.Context, method, path string, params url.Values, extra http.Header) (*rawResponse, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	return retry.DoWithResult(ctx, func(ctx context.Context) (*rawResponse, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		c.headerMu.RLock()
		for k, v := range c.headers {
			req.Header[k] = append([]string(nil), v...)
		}
		c.headerMu.RUnlock()
		for k, v := range extra {
			req.Header[k] = v
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
				"method": method,
				"path":   path,
				"error":  err.Error(),
			})
			return nil, xerrs.NewNetwork(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, xerrs.NewNetwork(fmt.Errorf("read body: %w", err))
		}

		logger.LogRequest(c.logger, method, path, resp.StatusCode, time.Since(start))
		return &rawResponse{status: resp.StatusCode, body: body}, nil
	}, c.retry)
}

func (c *Client) decode(path string, res *rawResponse) (map[string]any, error) {
	if res.status == http.StatusUnauthorized {
		return nil, xerrs.NewAuthRequired("session rejected on " + path)
	}
	if res.status < 200 || res.status > 299 {
		return nil, xerrs.NewDataFetch(res.status, "request %s failed with status %d: %s",
			path, res.status, preview(res.body))
	}

	dec := json.NewDecoder(bytes.NewReader(res.body))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, xerrs.NewDataFetch(res.status, "decode response from %s: %v; body: %s",
			path, err, preview(res.body))
	}
	if data == nil {
		return nil, xerrs.NewDataFetch(res.status, "empty JSON response from %s", path)
	}

	if code, ok := data["error_code"]; ok && !isZeroCode(code) {
		msg, _ := data["error_description"].(string)
		if msg == "" {
			msg = fmt.Sprintf("error_code %v", code)
		}
		c.logger.WarnWithFields("API returned error_code", map[string]interface{}{
			"path":       path,
			"error_code": fmt.Sprint(code),
		})
		return nil, xerrs.NewDataFetch(res.status, "%s", msg)
	}
	return data, nil
}

// isZeroCode accepts null, 0 and "0" as success codes.
func isZeroCode(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == "0"
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case float64:
		return t == 0
	}
	return false
}

// preview returns at most bodyPreviewLen runes of body.
func preview(body []byte) string {
	if utf8.RuneCount(body) <= bodyPreviewLen {
		return string(body)
	}
	runes := []rune(string(body))
	return string(runes[:bodyPreviewLen]) + "..."
}
