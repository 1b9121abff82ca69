package xueqiu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"xqcrawler/pkg/browser"
)

// challengeMarker appears in every anti-bot interstitial the site serves in
// place of an API response.
const challengeMarker = "renderData"

var errNoChallengePayload = errors.New("challenge page has no renderData payload")

// IsChallenge reports whether a response body is an anti-bot page, that is
// whether it carries a parsable renderData payload. A body that merely
// mentions the marker is an ordinary response.
func IsChallenge(body []byte) bool {
	_, ok := detectChallenge(body)
	return ok
}

// detectChallenge returns the challenge cookie values when body is an
// interstitial.
func detectChallenge(body []byte) (map[string]string, bool) {
	if !bytes.Contains(body, []byte(challengeMarker)) {
		return nil, false
	}
	values, err := ParseChallenge(body)
	if err != nil {
		return nil, false
	}
	return values, true
}

// ParseChallenge extracts the cookie values carried in the JSON object
// inside <textarea id="renderData">.
func ParseChallenge(body []byte) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse challenge page: %w", err)
	}

	area := doc.Find("textarea#renderData").First()
	if area.Length() == 0 {
		return nil, errNoChallengePayload
	}

	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(area.Text())))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode renderData: %w", err)
	}

	values := make(map[string]string, len(payload))
	for k, v := range payload {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			values[k] = t
		default:
			values[k] = fmt.Sprint(t)
		}
	}
	if len(values) == 0 {
		return nil, errNoChallengePayload
	}
	return values, nil
}

// challengeCookies turns a renderData payload into scoped cookies, sorted by
// name.
func challengeCookies(values map[string]string, domain string) []browser.Cookie {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	cookies := make([]browser.Cookie, 0, len(names))
	for _, k := range names {
		cookies = append(cookies, browser.Cookie{Name: k, Value: values[k]})
	}
	return browser.Scope(cookies, domain)
}

// solveChallenge injects the challenge cookies into the page and rebuilds
// the Cookie header. Callers hold challengeMu.
func (c *Client) solveChallenge(ctx context.Context, values map[string]string) error {
	if err := c.page.AddCookies(ctx, challengeCookies(values, c.cookieDomain)); err != nil {
		return fmt.Errorf("inject challenge cookies: %w", err)
	}
	return c.syncCookies(ctx)
}
