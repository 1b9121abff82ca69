package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	xerrs "xqcrawler/pkg/errors"
)

// Default bounds for page loads and cookie jar calls.
const (
	DefaultNavigateTimeout = 30 * time.Second
	DefaultCookieTimeout   = 10 * time.Second
)

// Options configures the Chrome process.
type Options struct {
	Headless    bool
	UserAgent   string
	ProxyURL    string
	UserDataDir string
	ExecPath    string

	NavigateTimeout time.Duration
	CookieTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.NavigateTimeout <= 0 {
		o.NavigateTimeout = DefaultNavigateTimeout
	}
	if o.CookieTimeout <= 0 {
		o.CookieTimeout = DefaultCookieTimeout
	}
	return o
}

// Chrome is a Page backed by one chromedp tab.
type Chrome struct {
	tab    context.Context
	cancel context.CancelFunc

	navigateTimeout time.Duration
	cookieTimeout   time.Duration
}

// NewChrome launches Chrome and opens a tab. Close releases both.
func NewChrome(ctx context.Context, opts Options) (*Chrome, error) {
	opts = opts.withDefaults()
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ProxyURL != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyURL))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tab, cancelTab := chromedp.NewContext(allocCtx)

	// The first Run starts the browser.
	if err := chromedp.Run(tab); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Chrome{
		tab: tab,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
		navigateTimeout: opts.NavigateTimeout,
		cookieTimeout:   opts.CookieTimeout,
	}, nil
}

// Close shuts the browser down.
func (c *Chrome) Close() error {
	c.cancel()
	return nil
}

// run executes actions on the tab, bounded by both the caller's ctx and
// the optional timeout.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		tctx   context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		tctx, cancel = context.WithTimeout(c.tab, timeout)
	} else {
		tctx, cancel = context.WithCancel(c.tab)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(tctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits for the load event, at most the navigate
// timeout.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.bounded(ctx, "navigate to "+url, c.navigateTimeout, chromedp.Navigate(url))
}

// Cookies returns every cookie in the browser's jar.
func (c *Chrome) Cookies(ctx context.Context) ([]Cookie, error) {
	var out []Cookie
	err := c.bounded(ctx, "read cookies", c.cookieTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			out = append(out, Cookie{Name: ck.Name, Value: ck.Value, Domain: ck.Domain, Path: ck.Path})
		}
		return nil
	}))
	return out, err
}

// AddCookies writes cookies into the jar. An empty path becomes "/".
func (c *Chrome) AddCookies(ctx context.Context, cookies []Cookie) error {
	return c.bounded(ctx, "set cookies", c.cookieTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ck := range cookies {
			path := ck.Path
			if path == "" {
				path = "/"
			}
			if err := network.SetCookie(ck.Name, ck.Value).WithDomain(ck.Domain).WithPath(path).Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", ck.Name, err)
			}
		}
		return nil
	}))
}

// bounded runs actions under timeout and reports an expired timeout as a
// typed timeout error.
func (c *Chrome) bounded(ctx context.Context, what string, timeout time.Duration, actions ...chromedp.Action) error {
	return timeoutError(ctx, what, timeout, c.run(ctx, timeout, actions...))
}

// timeoutError maps a deadline hit by our own timeout to xerrs.NewTimeout.
// Errors caused by ctx are returned unchanged.
func timeoutError(ctx context.Context, what string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return xerrs.NewTimeout(what, timeout, err)
	}
	return err
}

func (c *Chrome) wait(ctx context.Context, what, sel string, timeout time.Duration, action chromedp.Action) error {
	return c.bounded(ctx, what+" "+sel, timeout, action)
}

// WaitVisible blocks until sel is visible or timeout passes.
func (c *Chrome) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return c.wait(ctx, "wait for", sel, timeout, chromedp.WaitVisible(sel, chromedp.BySearch))
}

// WaitGone blocks until sel is absent or timeout passes.
func (c *Chrome) WaitGone(ctx context.Context, sel string, timeout time.Duration) error {
	return c.wait(ctx, "wait for removal of", sel, timeout, chromedp.WaitNotPresent(sel, chromedp.BySearch))
}

// Exists reports whether sel matches any node right now.
func (c *Chrome) Exists(ctx context.Context, sel string) (bool, error) {
	var nodes []*cdp.Node
	err := c.run(ctx, 5*time.Second, chromedp.Nodes(sel, &nodes, chromedp.AtLeast(0), chromedp.BySearch))
	return len(nodes) > 0, err
}

// Click clicks the first visible match of sel.
func (c *Chrome) Click(ctx context.Context, sel string) error {
	return c.run(ctx, 10*time.Second, chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible))
}

// Fill clears sel and types value into it.
func (c *Chrome) Fill(ctx context.Context, sel, value string) error {
	return c.run(ctx, 10*time.Second,
		chromedp.SetValue(sel, "", chromedp.BySearch),
		chromedp.SendKeys(sel, value, chromedp.BySearch),
	)
}

// Screenshot captures sel as a PNG.
func (c *Chrome) Screenshot(ctx context.Context, sel string) ([]byte, error) {
	var buf []byte
	err := c.run(ctx, 10*time.Second, chromedp.Screenshot(sel, &buf, chromedp.NodeVisible, chromedp.BySearch))
	return buf, err
}

// HTML returns the rendered document.
func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	err := c.run(ctx, 10*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Evaluate runs expr in the page, discarding its result.
func (c *Chrome) Evaluate(ctx context.Context, expr string) error {
	return c.run(ctx, 10*time.Second, chromedp.Evaluate(expr, nil))
}
