package xueqiu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const (
	// BaseURL is the site root all API paths are relative to
	BaseURL = "https://xueqiu.com"

	// CookieDomain scopes every injected cookie
	CookieDomain = ".xueqiu.com"

	ProfileEndpoint         = "/setting/user.json"
	SearchEndpoint          = "/query/v1/search/status.json"
	StatusDetailEndpoint    = "/statuses/show.json"
	CommentsEndpoint        = "/statuses/comments.json"
	CreatorProfileEndpoint  = "/users/show.json"
	CreatorTimelineEndpoint = "/statuses/user_timeline.json"
)

// SearchRefererURL is the page a browser would search from.
func SearchRefererURL(base, keyword string) string {
	return fmt.Sprintf("%s/k/%s?type=11", base, url.PathEscape(keyword))
}

// SearchPageURL is the rendered search page used by the DOM fallback.
func SearchPageURL(base, keyword string, page int) string {
	params := url.Values{}
	params.Set("q", keyword)
	params.Set("page", strconv.Itoa(page))
	return fmt.Sprintf("%s/k?%s", base, params.Encode())
}

// SearchStatus fetches one page of keyword search results.
func (c *Client) SearchStatus(ctx context.Context, keyword string, page, count int) (map[string]any, error) {
	params := url.Values{}
	params.Set("sortId", "0")
	params.Set("page", strconv.Itoa(page))
	params.Set("q", keyword)
	params.Set("source", "all")
	params.Set("comment", "0")
	params.Set("hl", "0")
	params.Set("count", strconv.Itoa(count))

	extra := http.Header{}
	extra.Set("Referer", SearchRefererURL(c.baseURL, keyword))
	return c.request(ctx, http.MethodGet, SearchEndpoint, params, extra)
}

// StatusDetail fetches a single status.
func (c *Client) StatusDetail(ctx context.Context, statusID string) (map[string]any, error) {
	params := url.Values{}
	params.Set("id", statusID)
	return c.Request(ctx, http.MethodGet, StatusDetailEndpoint, params)
}

// StatusComments fetches one page of comments for a status.
func (c *Client) StatusComments(ctx context.Context, statusID string, page, size int) (map[string]any, error) {
	params := url.Values{}
	params.Set("id", statusID)
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	return c.Request(ctx, http.MethodGet, CommentsEndpoint, params)
}

// CreatorProfile fetches a user's profile.
func (c *Client) CreatorProfile(ctx context.Context, userID string) (map[string]any, error) {
	params := url.Values{}
	params.Set("uid", userID)
	return c.Request(ctx, http.MethodGet, CreatorProfileEndpoint, params)
}

// CreatorTimeline fetches one page of a user's statuses.
func (c *Client) CreatorTimeline(ctx context.Context, userID string, page, count int) (map[string]any, error) {
	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("page", strconv.Itoa(page))
	params.Set("count", strconv.Itoa(count))
	return c.Request(ctx, http.MethodGet, CreatorTimelineEndpoint, params)
}

// Pong reports whether the current cookies belong to a logged-in user.
func (c *Client) Pong(ctx context.Context) bool {
	extra := http.Header{}
	extra.Set("Referer", c.baseURL)

	res, err := c.request(ctx, http.MethodGet, ProfileEndpoint, nil, extra)
	if err != nil {
		c.logger.WithError(err).Debug("profile check failed")
		return false
	}

	profile, ok := res["profile"].(map[string]any)
	if !ok || len(profile) == 0 {
		profile = res
	}
	uid, ok := profile["uid"]
	if !ok || uid == nil {
		return false
	}
	s := fmt.Sprint(uid)
	return s != "" && s != "0"
}
