package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	xerrs "xqcrawler/pkg/errors"
)

// FakePage is an in-memory Page for tests. Selectors are matched literally
// against the Present set. Hooks may mutate the page to script a flow.
type FakePage struct {
	mu sync.Mutex

	cookies map[string]Cookie
	Present map[string]bool
	Shots   map[string][]byte
	Content string

	Navigations []string
	Clicks      []string
	Fills       map[string]string
	Scripts     []string

	// OnClick runs after a click is recorded, without the page lock held.
	OnClick func(p *FakePage, sel string)
	// OnNavigate runs after a navigation is recorded.
	OnNavigate func(p *FakePage, url string)
	// OnCookies runs before each cookie read, for polling scenarios.
	OnCookies func(p *FakePage)
}

// NewFakePage returns an empty page.
func NewFakePage() *FakePage {
	return &FakePage{
		cookies: make(map[string]Cookie),
		Present: make(map[string]bool),
		Shots:   make(map[string][]byte),
		Fills:   make(map[string]string),
	}
}

// SetCookie sets a cookie directly.
func (p *FakePage) SetCookie(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies[name] = Cookie{Name: name, Value: value, Path: "/"}
}

// Show and Hide toggle selector presence.
func (p *FakePage) Show(sel string) { p.setPresent(sel, true) }
func (p *FakePage) Hide(sel string) { p.setPresent(sel, false) }

func (p *FakePage) setPresent(sel string, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Present[sel] = v
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Navigations = append(p.Navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *FakePage) Cookies(ctx context.Context) ([]Cookie, error) {
	if hook := p.OnCookies; hook != nil {
		hook(p)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Cookie, 0, len(p.cookies))
	for _, c := range p.cookies {
		out = append(out, c)
	}
	return out, nil
}

func (p *FakePage) AddCookies(ctx context.Context, cookies []Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range cookies {
		p.cookies[c.Name] = c
	}
	return nil
}

// Cookie returns one cookie by name.
func (p *FakePage) Cookie(name string) (Cookie, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cookies[name]
	return c, ok
}

func (p *FakePage) has(sel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Present[sel]
}

func (p *FakePage) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.has(sel) {
		return nil
	}
	return xerrs.NewTimeout("wait for "+sel, timeout, context.DeadlineExceeded)
}

func (p *FakePage) WaitGone(ctx context.Context, sel string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.has(sel) {
		return nil
	}
	return xerrs.NewTimeout("wait for removal of "+sel, timeout, context.DeadlineExceeded)
}

func (p *FakePage) Exists(ctx context.Context, sel string) (bool, error) {
	return p.has(sel), ctx.Err()
}

func (p *FakePage) Click(ctx context.Context, sel string) error {
	if !p.has(sel) {
		return fmt.Errorf("no node matches %q", sel)
	}
	p.mu.Lock()
	p.Clicks = append(p.Clicks, sel)
	hook := p.OnClick
	p.mu.Unlock()
	if hook != nil {
		hook(p, sel)
	}
	return nil
}

func (p *FakePage) Fill(ctx context.Context, sel, value string) error {
	if !p.has(sel) {
		return fmt.Errorf("no node matches %q", sel)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Fills[sel] = value
	return nil
}

func (p *FakePage) Screenshot(ctx context.Context, sel string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if shot, ok := p.Shots[sel]; ok {
		return shot, nil
	}
	return nil, fmt.Errorf("no node matches %q", sel)
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Content, nil
}

func (p *FakePage) Evaluate(ctx context.Context, expr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Scripts = append(p.Scripts, expr)
	return nil
}
