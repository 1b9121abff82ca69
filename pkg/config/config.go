package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	xerrs "xqcrawler/pkg/errors"
)

// Config holds all configuration options for the crawler. It is built once
// by Load and then passed by pointer; nothing mutates it after Validate.
type Config struct {
	Platform      PlatformConfig     `yaml:"platform" json:"platform"`
	Login         LoginConfig        `yaml:"login" json:"login"`
	Crawler       CrawlerConfig      `yaml:"crawler" json:"crawler"`
	Challenge     ChallengeConfig    `yaml:"challenge" json:"challenge"`
	RateLimit     RateLimitConfig    `yaml:"rate_limit" json:"rate_limit"`
	Browser       BrowserConfig      `yaml:"browser" json:"browser"`
	Proxy         ProxyConfig        `yaml:"proxy" json:"proxy"`
	Storage       StorageConfig      `yaml:"storage" json:"storage"`
	SMS           SMSConfig          `yaml:"sms" json:"sms"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// PlatformConfig describes the target site.
type PlatformConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	CookieDomain   string        `yaml:"cookie_domain" json:"cookie_domain"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// LoginConfig selects and parameterises the login flow.
type LoginConfig struct {
	Type         string        `yaml:"type" json:"type"`
	Phone        string        `yaml:"phone" json:"phone"`
	Cookies      string        `yaml:"cookies" json:"cookies"`
	Account      string        `yaml:"account" json:"account"`
	SaveSession  bool          `yaml:"save_session" json:"save_session"`
	PollAttempts int           `yaml:"poll_attempts" json:"poll_attempts"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	CodeWait     time.Duration `yaml:"code_wait" json:"code_wait"`
	SettleDelay  time.Duration `yaml:"settle_delay" json:"settle_delay"`
	QRDirectory  string        `yaml:"qr_directory" json:"qr_directory"`
}

// CrawlerConfig holds crawl mode, targets and bounds.
type CrawlerConfig struct {
	Type               string        `yaml:"type" json:"type"`
	Keywords           []string      `yaml:"keywords" json:"keywords"`
	StatusIDs          []string      `yaml:"status_ids" json:"status_ids"`
	CreatorIDs         []string      `yaml:"creator_ids" json:"creator_ids"`
	SearchStrategy     string        `yaml:"search_strategy" json:"search_strategy"`
	StartPage          int           `yaml:"start_page" json:"start_page"`
	PageSize           int           `yaml:"page_size" json:"page_size"`
	MaxPages           int           `yaml:"max_pages" json:"max_pages"`
	MaxItems           int           `yaml:"max_items" json:"max_items"`
	CommentsEnabled    bool          `yaml:"comments_enabled" json:"comments_enabled"`
	CommentPageSize    int           `yaml:"comment_page_size" json:"comment_page_size"`
	MaxCommentsPerPost int           `yaml:"max_comments_per_post" json:"max_comments_per_post"`
	Concurrency        int           `yaml:"concurrency" json:"concurrency"`
	PageDelay          time.Duration `yaml:"page_delay" json:"page_delay"`
	Resume             bool          `yaml:"resume" json:"resume"`
	ReportDirectory    string        `yaml:"report_directory" json:"report_directory"`
}

// ChallengeConfig bounds anti-bot recovery and DOM waits.
type ChallengeConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay" json:"retry_delay"`
	VerifyTimeout  time.Duration `yaml:"verify_timeout" json:"verify_timeout"`
	FrameTimeout   time.Duration `yaml:"frame_timeout" json:"frame_timeout"`
	ResultsTimeout time.Duration `yaml:"results_timeout" json:"results_timeout"`
}

// RateLimitConfig holds rate limiting and transport retry configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int           `yaml:"burst" json:"burst"`
	BurstPeriod       time.Duration `yaml:"burst_period" json:"burst_period"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// BrowserConfig configures the chromedp page.
type BrowserConfig struct {
	Headless    bool   `yaml:"headless" json:"headless"`
	UserDataDir string `yaml:"user_data_dir" json:"user_data_dir"`
	ExecPath    string `yaml:"exec_path" json:"exec_path"`

	NavigateTimeout time.Duration `yaml:"navigate_timeout" json:"navigate_timeout"`
}

// ProxyConfig lists outbound proxies.
type ProxyConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	URLs    []string `yaml:"urls" json:"urls"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend   string `yaml:"backend" json:"backend"`
	DSN       string `yaml:"dsn" json:"dsn"`
	MaxConns  int32  `yaml:"max_conns" json:"max_conns"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// SMSConfig configures the SMS code intake server used by phone login.
type SMSConfig struct {
	ListenAddr string        `yaml:"listen_addr" json:"listen_addr"`
	CodeTTL    time.Duration `yaml:"code_ttl" json:"code_ttl"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Login types.
const (
	LoginQRCode = "qrcode"
	LoginPhone  = "phone"
	LoginCookie = "cookie"
)

// Crawl modes.
const (
	ModeSearch  = "search"
	ModeDetail  = "detail"
	ModeCreator = "creator"
)

// Search strategies.
const (
	StrategyAuto = "auto"
	StrategyAPI  = "api"
	StrategyDOM  = "dom"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendJSONL    = "jsonl"
	BackendCSV      = "csv"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			BaseURL:        "https://xueqiu.com",
			CookieDomain:   ".xueqiu.com",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			RequestTimeout: 30 * time.Second,
		},
		Login: LoginConfig{
			Type:         LoginQRCode,
			Account:      "default",
			SaveSession:  true,
			PollAttempts: 120,
			PollInterval: time.Second,
			CodeWait:     120 * time.Second,
			SettleDelay:  5 * time.Second,
			QRDirectory:  os.TempDir(),
		},
		Crawler: CrawlerConfig{
			Type:               ModeSearch,
			SearchStrategy:     StrategyAuto,
			StartPage:          1,
			PageSize:           20,
			MaxPages:           5,
			MaxItems:           100,
			CommentsEnabled:    true,
			CommentPageSize:    20,
			MaxCommentsPerPost: 100,
			Concurrency:        3,
			PageDelay:          2 * time.Second,
			ReportDirectory:    "./data/reports",
		},
		Challenge: ChallengeConfig{
			MaxAttempts:    3,
			RetryDelay:     time.Second,
			VerifyTimeout:  60 * time.Second,
			FrameTimeout:   30 * time.Second,
			ResultsTimeout: 20 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Burst:             5,
			BurstPeriod:       time.Second,
			MaxRetries:        3,
			RetryDelay:        2 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:        true,
			NavigateTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:   BackendJSONL,
			MaxConns:  10,
			OutputDir: "./data",
		},
		SMS: SMSConfig{
			ListenAddr: "127.0.0.1:8089",
			CodeTTL:    2 * time.Minute,
			CacheSize:  128,
		},
		Notifications: NotificationConfig{
			Enabled:    true,
			OnComplete: true,
			OnError:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from XQCRAWLER_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}
	setList := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = SplitList(v)
		}
	}

	setString("XQCRAWLER_USER_AGENT", &c.Platform.UserAgent)
	setString("XQCRAWLER_LOGIN_TYPE", &c.Login.Type)
	setString("XQCRAWLER_LOGIN_PHONE", &c.Login.Phone)
	setString("XQCRAWLER_COOKIES", &c.Login.Cookies)
	setString("XQCRAWLER_ACCOUNT", &c.Login.Account)
	setString("XQCRAWLER_CRAWLER_TYPE", &c.Crawler.Type)
	setList("XQCRAWLER_KEYWORDS", &c.Crawler.Keywords)
	setList("XQCRAWLER_STATUS_IDS", &c.Crawler.StatusIDs)
	setList("XQCRAWLER_CREATOR_IDS", &c.Crawler.CreatorIDs)
	setString("XQCRAWLER_SEARCH_STRATEGY", &c.Crawler.SearchStrategy)
	setInt("XQCRAWLER_MAX_ITEMS", &c.Crawler.MaxItems)
	setInt("XQCRAWLER_MAX_COMMENTS", &c.Crawler.MaxCommentsPerPost)
	setInt("XQCRAWLER_CONCURRENCY", &c.Crawler.Concurrency)
	setBool("XQCRAWLER_COMMENTS_ENABLED", &c.Crawler.CommentsEnabled)
	setInt("XQCRAWLER_REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	setInt("XQCRAWLER_RATE_BURST", &c.RateLimit.Burst)
	setBool("XQCRAWLER_HEADLESS", &c.Browser.Headless)
	setBool("XQCRAWLER_PROXY_ENABLED", &c.Proxy.Enabled)
	setList("XQCRAWLER_PROXY_URLS", &c.Proxy.URLs)
	setString("XQCRAWLER_STORAGE_BACKEND", &c.Storage.Backend)
	setString("XQCRAWLER_OUTPUT_DIR", &c.Storage.OutputDir)
	setBool("XQCRAWLER_NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)
	setString("XQCRAWLER_LOG_LEVEL", &c.Logging.Level)

	// DATABASE_URL is honoured for parity with common hosting setups.
	setString("DATABASE_URL", &c.Storage.DSN)
	setString("XQCRAWLER_DATABASE_DSN", &c.Storage.DSN)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".xqcrawler.yaml",
		".xqcrawler.yml",
		"xqcrawler.yaml",
		filepath.Join(home, ".config", "xqcrawler", "config.yaml"),
		filepath.Join(home, ".config", "xqcrawler", "config.yml"),
		filepath.Join(home, ".xqcrawler.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Platform.BaseURL == "" {
		errs = append(errs, errors.New("platform base URL is required"))
	}
	if c.Platform.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	switch c.Login.Type {
	case LoginQRCode:
	case LoginPhone:
		if c.Login.Phone == "" {
			errs = append(errs, errors.New("login phone is required for phone login"))
		}
	case LoginCookie:
		// Cookies may also come from the credential store, checked at login time.
	default:
		errs = append(errs, fmt.Errorf("invalid login type %q (want qrcode, phone or cookie)", c.Login.Type))
	}
	if c.Login.PollAttempts <= 0 {
		errs = append(errs, errors.New("login poll attempts must be positive"))
	}

	switch c.Crawler.Type {
	case ModeSearch:
		if len(c.Crawler.Keywords) == 0 {
			errs = append(errs, errors.New("search mode requires at least one keyword"))
		}
	case ModeDetail:
		if len(c.Crawler.StatusIDs) == 0 {
			errs = append(errs, errors.New("detail mode requires at least one status id"))
		}
	case ModeCreator:
		if len(c.Crawler.CreatorIDs) == 0 {
			errs = append(errs, errors.New("creator mode requires at least one creator id"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid crawler type %q (want search, detail or creator)", c.Crawler.Type))
	}

	switch c.Crawler.SearchStrategy {
	case StrategyAuto, StrategyAPI, StrategyDOM:
	default:
		errs = append(errs, fmt.Errorf("invalid search strategy %q", c.Crawler.SearchStrategy))
	}
	if c.Crawler.PageSize <= 0 || c.Crawler.CommentPageSize <= 0 {
		errs = append(errs, errors.New("page sizes must be positive"))
	}
	if c.Crawler.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Crawler.MaxItems <= 0 {
		errs = append(errs, errors.New("max items must be positive"))
	}
	if c.Crawler.StartPage < 1 {
		errs = append(errs, errors.New("start page must be at least 1"))
	}
	if c.Crawler.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.Crawler.Concurrency > 16 {
		errs = append(errs, errors.New("concurrency should not exceed 16"))
	}

	if c.Browser.NavigateTimeout <= 0 {
		errs = append(errs, errors.New("browser navigate timeout must be positive"))
	}

	if c.Challenge.MaxAttempts <= 0 {
		errs = append(errs, errors.New("challenge max attempts must be positive"))
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("burst cannot be negative"))
	}
	if c.RateLimit.Burst > 0 && c.RateLimit.BurstPeriod <= 0 {
		errs = append(errs, errors.New("burst period must be positive when burst is set"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("postgres backend requires a DSN"))
		}
	case BackendJSONL, BackendCSV:
		if c.Storage.OutputDir == "" {
			errs = append(errs, errors.New("output directory is required"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid storage backend %q", c.Storage.Backend))
	}

	if c.Proxy.Enabled && len(c.Proxy.URLs) == 0 {
		errs = append(errs, errors.New("proxy enabled but no proxy URLs configured"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Keys match the cobra flag names of the crawl command.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["type"].(string); ok && v != "" {
		c.Crawler.Type = v
	}
	if v, ok := flags["keywords"].([]string); ok && len(v) > 0 {
		c.Crawler.Keywords = v
	}
	if v, ok := flags["ids"].([]string); ok && len(v) > 0 {
		c.Crawler.StatusIDs = v
	}
	if v, ok := flags["creators"].([]string); ok && len(v) > 0 {
		c.Crawler.CreatorIDs = v
	}
	if v, ok := flags["strategy"].(string); ok && v != "" {
		c.Crawler.SearchStrategy = v
	}
	if v, ok := flags["max-items"].(int); ok && v > 0 {
		c.Crawler.MaxItems = v
	}
	if v, ok := flags["max-pages"].(int); ok && v > 0 {
		c.Crawler.MaxPages = v
	}
	if v, ok := flags["max-comments"].(int); ok && v > 0 {
		c.Crawler.MaxCommentsPerPost = v
	}
	if v, ok := flags["concurrency"].(int); ok && v > 0 {
		c.Crawler.Concurrency = v
	}
	if v, ok := flags["no-comments"].(bool); ok && v {
		c.Crawler.CommentsEnabled = false
	}
	if v, ok := flags["resume"].(bool); ok && v {
		c.Crawler.Resume = true
	}
	if v, ok := flags["login-type"].(string); ok && v != "" {
		c.Login.Type = v
	}
	if v, ok := flags["phone"].(string); ok && v != "" {
		c.Login.Phone = v
	}
	if v, ok := flags["account"].(string); ok && v != "" {
		c.Login.Account = v
	}
	if v, ok := flags["storage"].(string); ok && v != "" {
		c.Storage.Backend = v
	}
	if v, ok := flags["dsn"].(string); ok && v != "" {
		c.Storage.DSN = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Storage.OutputDir = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = v
	}
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".xqcrawler.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, &xerrs.Error{Type: xerrs.ErrorTypeConfig, Message: "configuration validation failed: " + err.Error(), Err: err}
	}

	return config, nil
}
