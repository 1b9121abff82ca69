// Package browser is the seam between the crawler and a rendered browser
// page. Login flows and the DOM search fallback drive a Page; the platform
// client only reads and writes its cookie jar.
package browser

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Cookie is one browser cookie.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Page is a navigable browser tab. Selectors may be CSS, XPath or plain
// text; implementations resolve all three.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Cookies(ctx context.Context) ([]Cookie, error)
	AddCookies(ctx context.Context, cookies []Cookie) error
	// WaitVisible blocks until sel is visible or timeout passes.
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	// WaitGone blocks until sel is no longer in the document.
	WaitGone(ctx context.Context, sel string, timeout time.Duration) error
	Exists(ctx context.Context, sel string) (bool, error)
	Click(ctx context.Context, sel string) error
	Fill(ctx context.Context, sel, value string) error
	Screenshot(ctx context.Context, sel string) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, expr string) error
}

// CookieHeader renders cookies as a Cookie request header, sorted by name
// so the header is stable.
func CookieHeader(cookies []Cookie) string {
	sorted := append([]Cookie(nil), cookies...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, 0, len(sorted))
	for _, c := range sorted {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// CookieMap indexes cookies by name. Later duplicates win.
func CookieMap(cookies []Cookie) map[string]string {
	m := make(map[string]string, len(cookies))
	for _, c := range cookies {
		m[c.Name] = c.Value
	}
	return m
}

// ParseCookieString parses "k=v; k2=v2". Pairs without a name are skipped.
func ParseCookieString(s string) []Cookie {
	var out []Cookie
	for _, part := range strings.Split(s, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		out = append(out, Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return out
}

// Scope sets the domain and root path on every cookie.
func Scope(cookies []Cookie, domain string) []Cookie {
	out := make([]Cookie, len(cookies))
	for i, c := range cookies {
		c.Domain = domain
		c.Path = "/"
		out[i] = c
	}
	return out
}
