package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Store     StoreConfig
	Results   ResultsConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
	Engine    EngineConfig
}

// EngineConfig controls the plain HTTP navigator.
type EngineConfig struct {
	// HTTPTimeout caps a single HTTP fetch when the site has no wait timeout.
	HTTPTimeout time.Duration // default: 15s
}

// CacheConfig controls the recent result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int // default: 1000
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8000
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 4

	// DefaultProxy is the proxy URL for all browser traffic.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// UserAgent overrides the browser user agent.
	UserAgent string
}

// ScraperConfig controls the extraction pipeline.
type ScraperConfig struct {
	// NavigationTimeout bounds page.Navigate plus the ready-selector wait
	// when the site does not set its own.
	NavigationTimeout time.Duration // default: 15s

	// CrawlTimeout bounds one whole scrape invocation.
	CrawlTimeout time.Duration // default: 2m

	// RetryAttempts and RetryDelay configure flaky DOM lookups.
	RetryAttempts int           // default: 3
	RetryDelay    time.Duration // default: 2s

	// StrictAvailability reports unresolved availability as "Unknown"
	// instead of the per-site fallback label.
	StrictAvailability bool // default: false

	// DebugDir receives screenshots and HTML dumps when availability
	// could not be resolved. Empty disables dumps.
	DebugDir string

	// BlockedResourceTypes lists resource types the browser never loads.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// StoreConfig controls product persistence.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string // default: "pricewatch.db"
}

// ResultsConfig controls the per-site result files.
type ResultsConfig struct {
	// Dir holds result_<site>.json files.
	Dir string // default: "."
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys. Empty means open access.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// WebhookConfig controls scrape notifications.
type WebhookConfig struct {
	// URL receives scrape events. Empty disables notifications.
	URL string

	// Secret signs the payload with HMAC-SHA256 when set.
	Secret string

	// Retries is the number of redelivery attempts.
	Retries int // default: 3
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PRICEWATCH_HOST", "0.0.0.0"),
			Port: envIntOr("PRICEWATCH_PORT", 8000),
			Mode: envOr("PRICEWATCH_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("PRICEWATCH_HEADLESS", true),
			MaxPages:     envIntOr("PRICEWATCH_MAX_PAGES", 4),
			DefaultProxy: os.Getenv("PRICEWATCH_PROXY"),
			NoSandbox:    envBoolOr("PRICEWATCH_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("PRICEWATCH_BROWSER_BIN"),
			UserAgent:    os.Getenv("PRICEWATCH_USER_AGENT"),
		},
		Scraper: ScraperConfig{
			NavigationTimeout:  envDurationOr("PRICEWATCH_NAV_TIMEOUT", 15*time.Second),
			CrawlTimeout:       envDurationOr("PRICEWATCH_CRAWL_TIMEOUT", 2*time.Minute),
			RetryAttempts:      envIntOr("PRICEWATCH_RETRY_ATTEMPTS", 3),
			RetryDelay:         envDurationOr("PRICEWATCH_RETRY_DELAY", 2*time.Second),
			StrictAvailability: envBoolOr("PRICEWATCH_STRICT_AVAILABILITY", false),
			DebugDir:           os.Getenv("PRICEWATCH_DEBUG_DIR"),
			BlockedResourceTypes: envSliceOr("PRICEWATCH_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		Store: StoreConfig{
			Path: envOr("PRICEWATCH_DB_PATH", "pricewatch.db"),
		},
		Results: ResultsConfig{
			Dir: envOr("PRICEWATCH_RESULTS_DIR", "."),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PRICEWATCH_AUTH_ENABLED", true),
			APIKeys: envSliceOr("PRICEWATCH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PRICEWATCH_RATE_RPS", 5.0),
			Burst:             envIntOr("PRICEWATCH_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("PRICEWATCH_CACHE_MAX_ENTRIES", 1000),
		},
		Webhook: WebhookConfig{
			URL:     os.Getenv("PRICEWATCH_WEBHOOK_URL"),
			Secret:  os.Getenv("PRICEWATCH_WEBHOOK_SECRET"),
			Retries: envIntOr("PRICEWATCH_WEBHOOK_RETRIES", 3),
		},
		Log: LogConfig{
			Level:  envOr("PRICEWATCH_LOG_LEVEL", "info"),
			Format: envOr("PRICEWATCH_LOG_FORMAT", "json"),
		},
		Engine: EngineConfig{
			HTTPTimeout: envDurationOr("PRICEWATCH_HTTP_TIMEOUT", 15*time.Second),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
