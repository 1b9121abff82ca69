package xueqiu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xqcrawler/pkg/browser"
	"xqcrawler/pkg/config"
	xerrs "xqcrawler/pkg/errors"
	"xqcrawler/pkg/logger"
	"xqcrawler/pkg/ratelimit"
	"xqcrawler/pkg/retry"
)

const challengePage = `<html><head><title>verify</title></head><body>
<textarea id="renderData" style="display:none">{"acw_sc__v2":"6613a1","_waf_bd8ce2ce37":"0ff3c2"}</textarea>
<script src="/waf.js"></script></body></html>`

// mockRoundTripper allows us to intercept HTTP requests
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

func newResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func testOptions(baseURL string) Options {
	return Options{
		BaseURL:           baseURL,
		UserAgent:         "TestAgent/1.0",
		ChallengeAttempts: 3,
		Retry: &retry.Config{
			MaxAttempts: 3,
			Backoff:     &retry.ConstantBackoff{},
			RetryIf:     retry.DefaultRetryIf,
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *browser.FakePage, *logger.TestLogger) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	page := browser.NewFakePage()
	log := logger.NewTestLogger()
	return NewClient(page, testOptions(srv.URL), log), page, log
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestRequestDecodesJSON(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, StatusDetailEndpoint, r.URL.Path)
		assert.Equal(t, "123", r.URL.Query().Get("id"))
		assert.Equal(t, "TestAgent/1.0", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"id": 330123456789012345, "text": "hi", "error_code": 0}`)
	})

	res, err := client.StatusDetail(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, json.Number("330123456789012345"), res["id"])
	assert.Equal(t, "hi", res["text"])
}

func TestRequestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		contains string
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, xerrs.ErrAuthRequired, "session rejected"},
		{"server error", http.StatusInternalServerError, strings.Repeat("x", 500), xerrs.ErrDataFetch, "status 500"},
		{"not json", http.StatusOK, "<html>maintenance</html>", xerrs.ErrDataFetch, "maintenance"},
		{"json array", http.StatusOK, `[1,2]`, xerrs.ErrDataFetch, "decode response"},
		{"error code", http.StatusOK, `{"error_code":"400016","error_description":"遇到错误，请刷新页面或者重新登录帐号后再试"}`, xerrs.ErrDataFetch, "重新登录"},
		{"error code without description", http.StatusOK, `{"error_code":10022}`, xerrs.ErrDataFetch, "error_code 10022"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := client.Request(context.Background(), http.MethodGet, "/x.json", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestRequestBodyPreviewIsBounded(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, strings.Repeat("y", 1000))
	})

	_, err := client.Request(context.Background(), http.MethodGet, "/x.json", nil)
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 300)
	assert.True(t, strings.HasSuffix(err.Error(), "..."))
}

func TestZeroErrorCodesAreSuccess(t *testing.T) {
	for _, body := range []string{`{"error_code":null}`, `{"error_code":0}`, `{"error_code":"0"}`, `{}`} {
		client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		})
		_, err := client.Request(context.Background(), http.MethodGet, "/x.json", nil)
		assert.NoError(t, err, body)
	}
}

func TestChallengeRecovery(t *testing.T) {
	var calls atomic.Int32
	client, page, log := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, challengePage)
			return
		}
		assert.Contains(t, r.Header.Get("Cookie"), "acw_sc__v2=6613a1")
		writeJSON(w, map[string]any{"list": []any{}})
	})
	page.SetCookie("xq_a_token", "tok")

	res, err := client.StatusComments(context.Background(), "1", 1, 20)
	require.NoError(t, err)
	assert.Contains(t, res, "list")
	assert.Equal(t, int32(2), calls.Load())

	injected, ok := page.Cookie("acw_sc__v2")
	require.True(t, ok)
	assert.Equal(t, CookieDomain, injected.Domain)
	assert.Equal(t, "/", injected.Path)
	assert.Contains(t, client.CookieHeader(), "xq_a_token=tok")
	assert.True(t, log.HasMessage("Anti-bot challenge intercepted, recovering session"))
}

func TestUnresolvedChallenge(t *testing.T) {
	var calls atomic.Int32
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, challengePage)
	})

	_, err := client.Request(context.Background(), http.MethodGet, SearchEndpoint, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrs.ErrChallenge)
	assert.ErrorIs(t, err, xerrs.ErrDataFetch)
	assert.Equal(t, int32(3), calls.Load())
}

func TestChallengeWithoutPayload(t *testing.T) {
	var calls atomic.Int32
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `<script>var renderData = null;</script>`)
	})

	_, err := client.Request(context.Background(), http.MethodGet, "/x.json", nil)
	assert.ErrorIs(t, err, xerrs.ErrDataFetch)
	assert.NotErrorIs(t, err, xerrs.ErrChallenge)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMarkerInJSONIsNotChallenge(t *testing.T) {
	var calls atomic.Int32
	client, page, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"list":[{"id":1,"text":"how does renderData work in xueqiu's WAF?"}],"error_code":0}`)
	})

	data, err := client.Request(context.Background(), http.MethodGet, "/statuses/search.json", nil)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Len(t, data["list"], 1)
	assert.Equal(t, int32(1), calls.Load())
	_, injected := page.Cookie("acw_sc__v2")
	assert.False(t, injected)
}

func TestIsChallenge(t *testing.T) {
	assert.True(t, IsChallenge([]byte(challengePage)))
	assert.False(t, IsChallenge([]byte(`{"text":"renderData"}`)))
	assert.False(t, IsChallenge([]byte(`<textarea id="renderData">not json</textarea>`)))
	assert.False(t, IsChallenge([]byte(`{"list":[]}`)))
}

func TestParseChallenge(t *testing.T) {
	values, err := ParseChallenge([]byte(challengePage))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"acw_sc__v2": "6613a1", "_waf_bd8ce2ce37": "0ff3c2"}, values)

	_, err = ParseChallenge([]byte(`<textarea id="renderData">not json</textarea>`))
	assert.Error(t, err)

	_, err = ParseChallenge([]byte(`<textarea id="renderData">{}</textarea>`))
	assert.ErrorIs(t, err, errNoChallengePayload)
}

func TestNetworkErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	opts := testOptions("https://xueqiu.test")
	opts.Transport = &mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return newResponse(http.StatusOK, `{"ok":true}`), nil
	}}
	client := NewClient(browser.NewFakePage(), opts, logger.NewNopLogger())

	res, err := client.Request(context.Background(), http.MethodGet, "/x.json", nil)
	require.NoError(t, err)
	assert.Equal(t, true, res["ok"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestNetworkErrorsExhaustRetries(t *testing.T) {
	opts := testOptions("https://xueqiu.test")
	opts.Transport = &mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("no route to host")
	}}
	client := NewClient(browser.NewFakePage(), opts, logger.NewNopLogger())

	_, err := client.Request(context.Background(), http.MethodGet, "/x.json", nil)
	assert.ErrorIs(t, err, xerrs.ErrNetwork)
	assert.ErrorIs(t, err, retry.ErrMaxAttempts)
}

func TestSearchStatusParams(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, SearchEndpoint, r.URL.Path)
		assert.Equal(t, "茅台", q.Get("q"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "20", q.Get("count"))
		assert.Equal(t, "0", q.Get("sortId"))
		assert.Equal(t, "all", q.Get("source"))
		assert.True(t, strings.HasSuffix(r.Header.Get("Referer"), "/k/%E8%8C%85%E5%8F%B0?type=11"))
		writeJSON(w, map[string]any{"list": []any{}})
	})

	_, err := client.SearchStatus(context.Background(), "茅台", 2, 20)
	require.NoError(t, err)
}

func TestPong(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"nested profile", `{"profile":{"uid":1234}}`, true},
		{"root uid", `{"uid":"1234"}`, true},
		{"no uid", `{"profile":{}}`, false},
		{"zero uid", `{"uid":0}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, ProfileEndpoint, r.URL.Path)
				fmt.Fprint(w, tt.body)
			})
			assert.Equal(t, tt.want, client.Pong(context.Background()))
		})
	}

	t.Run("unauthorized", func(t *testing.T) {
		client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		assert.False(t, client.Pong(context.Background()))
	})
}

func TestRefreshCookies(t *testing.T) {
	client, page, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	page.SetCookie("u", "42")
	page.SetCookie("xq_a_token", "abc")

	require.NoError(t, client.RefreshCookies(context.Background()))
	assert.Equal(t, "u=42; xq_a_token=abc", client.CookieHeader())
}

func TestRequestHonoursCancellation(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Request(ctx, http.MethodGet, "/x.json", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchPageURL(t *testing.T) {
	assert.Equal(t, "https://xueqiu.com/k?page=3&q=%E8%8C%85%E5%8F%B0+ETF", SearchPageURL(BaseURL, "茅台 ETF", 3))
}

func TestOptionsFromConfigLimiter(t *testing.T) {
	cfg := config.DefaultConfig()

	chain, ok := OptionsFromConfig(cfg).Limiter.(ratelimit.Chain)
	require.True(t, ok, "expected the per-minute window and the burst bucket")
	require.Len(t, chain, 2)
	assert.IsType(t, &ratelimit.SlidingWindow{}, chain[0])
	assert.IsType(t, &ratelimit.TokenBucket{}, chain[1])

	cfg.RateLimit.Burst = 0
	assert.IsType(t, &ratelimit.SlidingWindow{}, OptionsFromConfig(cfg).Limiter)

	cfg.RateLimit.RequestsPerMinute = 0
	assert.Nil(t, OptionsFromConfig(cfg).Limiter)
}
