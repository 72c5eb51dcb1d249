// Package config builds the process configuration from environment variables.
//
// The configuration is read once at startup and handed to each component
// explicitly; nothing below cmd/ reads the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

var (
	// ErrMissingAPIKey is returned by Validate when TMDB_API_KEY is empty.
	ErrMissingAPIKey = errors.New("TMDB_API_KEY not set")

	// ErrInvalidValue wraps every malformed environment value.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Fetch holds the pacing and retry settings of one fetcher.
type Fetch struct {
	// StartPage and EndPage only apply to the collection fetcher.
	// EndPage 0 means no override.
	StartPage int
	EndPage   int

	// Delay is applied after every fetched key and between attempts.
	Delay time.Duration

	// Retries is the number of attempts per key (including the first).
	Retries int
}

// Config holds the full process configuration.
type Config struct {
	// TMDb API
	APIKey   string
	BaseURL  string
	Language string

	// Cache store
	CacheDir     string
	CacheBackend string
	RedisURL     string

	Pages   Fetch
	Details Fetch

	// Transport
	HTTPTimeout  time.Duration
	RateLimitRPS float64

	// Server
	Port string

	// Logging
	LogLevel  string
	LogPretty bool
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		BaseURL:      "https://api.themoviedb.org/3",
		Language:     "en-US",
		CacheDir:     "cache",
		CacheBackend: BackendFile,
		RedisURL:     "localhost:6379",
		Pages: Fetch{
			StartPage: 1,
			Delay:     250 * time.Millisecond,
			Retries:   3,
		},
		Details: Fetch{
			Delay:   250 * time.Millisecond,
			Retries: 3,
		},
		HTTPTimeout: 30 * time.Second,
		Port:        "3000",
		LogLevel:    "info",
	}
}

// LoadEnvFile loads variables from a dotenv file without overriding
// variables already present in the environment. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration through getenv (usually os.Getenv).
// All malformed values are reported together.
func Load(getenv func(string) string) (Config, error) {
	cfg := Default()
	p := parser{getenv: getenv}

	cfg.APIKey = strings.TrimSpace(getenv("TMDB_API_KEY"))
	cfg.BaseURL = strings.TrimRight(p.str("TMDB_BASE_URL", cfg.BaseURL), "/")
	cfg.Language = p.str("TMDB_LANGUAGE", cfg.Language)

	cfg.CacheDir = p.str("CACHE_DIR", cfg.CacheDir)
	cfg.CacheBackend = strings.ToLower(p.str("CACHE_BACKEND", cfg.CacheBackend))
	cfg.RedisURL = p.str("REDIS_URL", cfg.RedisURL)

	cfg.Pages.StartPage = p.int("START_PAGE", cfg.Pages.StartPage)
	cfg.Pages.EndPage = p.int("END_PAGE", cfg.Pages.EndPage)
	cfg.Pages.Delay = p.millis("DELAY_MS", cfg.Pages.Delay)
	cfg.Pages.Retries = p.int("RETRIES", cfg.Pages.Retries)

	cfg.Details.Delay = p.millis("DETAIL_DELAY_MS", cfg.Details.Delay)
	cfg.Details.Retries = p.int("DETAIL_RETRIES", cfg.Details.Retries)

	cfg.HTTPTimeout = p.millis("HTTP_TIMEOUT_MS", cfg.HTTPTimeout)
	cfg.RateLimitRPS = p.float("RATE_LIMIT_RPS", cfg.RateLimitRPS)

	cfg.Port = p.str("PORT", cfg.Port)
	cfg.LogLevel = p.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = p.bool("LOG_PRETTY", cfg.LogPretty)

	if err := errors.Join(p.errs...); err != nil {
		return cfg, err
	}
	if err := cfg.check(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the settings the fetch commands need on top of Load.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (c Config) check() error {
	var errs []error
	if c.Pages.StartPage < 1 {
		errs = append(errs, fmt.Errorf("%w: START_PAGE must be >= 1 (got %d)", ErrInvalidValue, c.Pages.StartPage))
	}
	if c.Pages.EndPage < 0 {
		errs = append(errs, fmt.Errorf("%w: END_PAGE must be >= 0 (got %d)", ErrInvalidValue, c.Pages.EndPage))
	}
	if c.Pages.Retries < 1 {
		errs = append(errs, fmt.Errorf("%w: RETRIES must be >= 1 (got %d)", ErrInvalidValue, c.Pages.Retries))
	}
	if c.Details.Retries < 1 {
		errs = append(errs, fmt.Errorf("%w: DETAIL_RETRIES must be >= 1 (got %d)", ErrInvalidValue, c.Details.Retries))
	}
	if c.Pages.Delay < 0 || c.Details.Delay < 0 {
		errs = append(errs, fmt.Errorf("%w: delays must be >= 0", ErrInvalidValue))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: HTTP_TIMEOUT_MS must be > 0", ErrInvalidValue))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("%w: RATE_LIMIT_RPS must be >= 0", ErrInvalidValue))
	}
	if c.CacheBackend != BackendFile && c.CacheBackend != BackendRedis {
		errs = append(errs, fmt.Errorf("%w: CACHE_BACKEND must be %q or %q (got %q)",
			ErrInvalidValue, BackendFile, BackendRedis, c.CacheBackend))
	}
	return errors.Join(errs...)
}

// parser accumulates conversion errors so Load can report all of them.
type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidValue, key, v))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidValue, key, v))
		return def
	}
	return f
}

func (p *parser) millis(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%w: %s=%q is not a millisecond count", ErrInvalidValue, key, v))
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func (p *parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidValue, key, v))
		return def
	}
	return b
}
