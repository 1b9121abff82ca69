package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrs "xqcrawler/pkg/errors"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Crawler.Keywords = []string{"茅台"}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://xueqiu.com", cfg.Platform.BaseURL)
	assert.Equal(t, ".xueqiu.com", cfg.Platform.CookieDomain)
	assert.Equal(t, LoginQRCode, cfg.Login.Type)
	assert.Equal(t, 120, cfg.Login.PollAttempts)
	assert.Equal(t, time.Second, cfg.Login.PollInterval)
	assert.Equal(t, 120*time.Second, cfg.Login.CodeWait)
	assert.Equal(t, 20, cfg.Crawler.PageSize)
	assert.Equal(t, 5, cfg.Crawler.MaxPages)
	assert.Equal(t, 20, cfg.Crawler.CommentPageSize)
	assert.Equal(t, 3, cfg.Challenge.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Challenge.RetryDelay)
	assert.Equal(t, BackendJSONL, cfg.Storage.Backend)
	assert.Equal(t, 30*time.Second, cfg.Browser.NavigateTimeout)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.BurstPeriod)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("XQCRAWLER_LOGIN_TYPE", "cookie")
	t.Setenv("XQCRAWLER_COOKIES", "xq_a_token=abc; u=42")
	t.Setenv("XQCRAWLER_KEYWORDS", "茅台, 宁德时代 ,,")
	t.Setenv("XQCRAWLER_CONCURRENCY", "5")
	t.Setenv("XQCRAWLER_COMMENTS_ENABLED", "false")
	t.Setenv("XQCRAWLER_LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, LoginCookie, cfg.Login.Type)
	assert.Equal(t, "xq_a_token=abc; u=42", cfg.Login.Cookies)
	assert.Equal(t, []string{"茅台", "宁德时代"}, cfg.Crawler.Keywords)
	assert.Equal(t, 5, cfg.Crawler.Concurrency)
	assert.False(t, cfg.Crawler.CommentsEnabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "postgres://u:p@localhost/db", cfg.Storage.DSN)
}

func TestLoadFromEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("XQCRAWLER_MAX_ITEMS", "lots")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "XQCRAWLER_MAX_ITEMS")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
login:
  type: phone
  phone: "13800000000"
crawler:
  type: creator
  creator_ids: ["1234", "5678"]
  page_delay: 500ms
storage:
  backend: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, LoginPhone, cfg.Login.Type)
	assert.Equal(t, "13800000000", cfg.Login.Phone)
	assert.Equal(t, ModeCreator, cfg.Crawler.Type)
	assert.Equal(t, []string{"1234", "5678"}, cfg.Crawler.CreatorIDs)
	assert.Equal(t, 500*time.Millisecond, cfg.Crawler.PageDelay)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	// Untouched sections keep their defaults.
	assert.Equal(t, 120, cfg.Login.PollAttempts)
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler: [unclosed"), 0644))

	err := DefaultConfig().LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown login type", func(c *Config) { c.Login.Type = "password" }, "invalid login type"},
		{"phone login without phone", func(c *Config) { c.Login.Type = LoginPhone }, "login phone is required"},
		{"search without keywords", func(c *Config) { c.Crawler.Keywords = nil }, "requires at least one keyword"},
		{"detail without ids", func(c *Config) { c.Crawler.Type = ModeDetail }, "requires at least one status id"},
		{"creator without ids", func(c *Config) { c.Crawler.Type = ModeCreator }, "requires at least one creator id"},
		{"bad strategy", func(c *Config) { c.Crawler.SearchStrategy = "magic" }, "invalid search strategy"},
		{"zero concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "concurrency must be positive"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "requires a DSN"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, "invalid storage backend"},
		{"proxy without urls", func(c *Config) { c.Proxy.Enabled = true }, "no proxy URLs"},
		{"no navigate timeout", func(c *Config) { c.Browser.NavigateTimeout = 0 }, "navigate timeout must be positive"},
		{"negative burst", func(c *Config) { c.RateLimit.Burst = -1 }, "burst cannot be negative"},
		{"burst without period", func(c *Config) { c.RateLimit.BurstPeriod = 0 }, "burst period must be positive"},
		{"burst disabled", func(c *Config) { c.RateLimit.Burst = 0; c.RateLimit.BurstPeriod = 0 }, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := validConfig()
	cfg.Crawler.MaxItems = 47

	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded := DefaultConfig()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, 47, reloaded.Crawler.MaxItems)
	assert.Equal(t, []string{"茅台"}, reloaded.Crawler.Keywords)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"type":        ModeDetail,
		"ids":         []string{"111", "222"},
		"max-items":   10,
		"no-comments": true,
		"login-type":  LoginCookie,
		"storage":     BackendMemory,
		"headless":    false,
		"log-level":   "warn",
	})

	assert.Equal(t, ModeDetail, cfg.Crawler.Type)
	assert.Equal(t, []string{"111", "222"}, cfg.Crawler.StatusIDs)
	assert.Equal(t, 10, cfg.Crawler.MaxItems)
	assert.False(t, cfg.Crawler.CommentsEnabled)
	assert.Equal(t, LoginCookie, cfg.Login.Type)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  keywords: [file]\n  max_items: 5\n"), 0644))
	t.Setenv("XQCRAWLER_MAX_ITEMS", "7")

	cfg, err := Load(path, map[string]interface{}{"keywords": []string{"flag"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"flag"}, cfg.Crawler.Keywords)
	assert.Equal(t, 7, cfg.Crawler.MaxItems)
}

func TestLoadValidationIsConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("login:\n  type: sms\n"), 0644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrs.ErrConfig))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(" , ,"))
	assert.Equal(t, []string{"a", "b"}, SplitList("a, b"))
}
