package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Facebook    FacebookConfig  `toml:"facebook"`
	Session     SessionConfig   `toml:"session"`
	Publisher   PublisherConfig `toml:"publisher"`
	Images      ImagesConfig    `toml:"images"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// FacebookConfig contains the target platform endpoints and browser identity.
// Credentials are never stored in the config file; they come from the
// environment (FACEBOOK_EMAIL / FACEBOOK_PASSWORD), optionally via .env.
type FacebookConfig struct {
	BaseURL     string `toml:"base_url"`     // e.g. "https://www.facebook.com"
	ComposerURL string `toml:"composer_url"` // Listing creation page
	Headless    bool   `toml:"headless"`
	NoSandbox   bool   `toml:"no_sandbox"`
	DisableGPU  bool   `toml:"disable_gpu"`
	UserAgent   string `toml:"user_agent"`
}

// SessionConfig controls login behavior and session liveness probing
type SessionConfig struct {
	MaxLoginAttempts int    `toml:"max_login_attempts"` // Bounded to avoid account lockout
	LoginTimeout     string `toml:"login_timeout"`      // e.g. "45s"
	ProbeTimeout     string `toml:"probe_timeout"`      // e.g. "10s"
	ProbeURL         string `toml:"probe_url"`          // Lightweight page for the liveness probe
}

// PublisherConfig controls scheduling, retry and pacing policy
type PublisherConfig struct {
	Schedule            string  `toml:"schedule"`              // Cron expression for publish passes
	MaxConcurrency      int     `toml:"max_concurrency"`       // Concurrent posting workers
	MaxAttempts         int     `toml:"max_attempts"`          // Attempts before a listing is terminally failed
	BackoffBase         string  `toml:"backoff_base"`          // e.g. "2m"
	BackoffCap          string  `toml:"backoff_cap"`           // e.g. "2h"
	RateLimitMultiplier float64 `toml:"rate_limit_multiplier"` // Extra backoff factor after RateLimited failures
	PacingInterval      string  `toml:"pacing_interval"`       // Minimum delay between attempts per worker
	StageTimeout        string  `toml:"stage_timeout"`         // Bounded wait per posting stage
	SelectorsFile       string  `toml:"selectors_file"`        // Optional YAML selector overrides
	ConfirmURLPattern   string  `toml:"confirm_url_pattern"`   // Substring marking a confirmed post URL
	ConfirmSelector     string  `toml:"confirm_selector"`      // DOM marker for a confirmed post
	AllowPartialImages  bool    `toml:"allow_partial_images"`  // Post with a partial image set (default off)
}

// ImagesConfig controls the image asset resolver
type ImagesConfig struct {
	CacheDir        string `toml:"cache_dir"`        // Directory for downloaded images
	MaxImageSize    int64  `toml:"max_image_size"`   // Maximum image size in bytes
	DownloadTimeout string `toml:"download_timeout"` // Per-image download timeout
	DownloadRetries int    `toml:"download_retries"` // Bounded retries for transient failures
}

// NewDefaultConfig returns a config populated with defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/publisher",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Facebook: FacebookConfig{
			BaseURL:     "https://www.facebook.com",
			ComposerURL: "https://www.facebook.com/marketplace/create/item",
			Headless:    true,
			NoSandbox:   true,
			DisableGPU:  true,
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Session: SessionConfig{
			MaxLoginAttempts: 2,
			LoginTimeout:     "45s",
			ProbeTimeout:     "10s",
			ProbeURL:         "https://www.facebook.com/marketplace",
		},
		Publisher: PublisherConfig{
			Schedule:            "*/5 * * * *",
			MaxConcurrency:      1,
			MaxAttempts:         3,
			BackoffBase:         "2m",
			BackoffCap:          "2h",
			RateLimitMultiplier: 3.0,
			PacingInterval:      "90s",
			StageTimeout:        "30s",
			ConfirmURLPattern:   "/marketplace/you",
		},
		Images: ImagesConfig{
			CacheDir:        "./data/images",
			MaxImageSize:    10 * 1024 * 1024,
			DownloadTimeout: "30s",
			DownloadRetries: 2,
		},
	}
}

// LoadFromFiles loads configuration from TOML files with environment overrides.
// Later files override earlier ones; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	// .env is optional; credentials usually live there in development
	_ = godotenv.Load()

	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies LISTUP_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LISTUP_ENV"); env != "" {
		config.Environment = env
	}
	if path := os.Getenv("LISTUP_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if level := os.Getenv("LISTUP_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("LISTUP_LOG_OUTPUT"); output != "" {
		parts := strings.Split(output, ",")
		outputs := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if headless := os.Getenv("LISTUP_FACEBOOK_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Facebook.Headless = h
		}
	}
	if userAgent := os.Getenv("LISTUP_FACEBOOK_USER_AGENT"); userAgent != "" {
		config.Facebook.UserAgent = userAgent
	}
	if concurrency := os.Getenv("LISTUP_PUBLISHER_MAX_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil && c > 0 {
			config.Publisher.MaxConcurrency = c
		}
	}
	if attempts := os.Getenv("LISTUP_PUBLISHER_MAX_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil && a > 0 {
			config.Publisher.MaxAttempts = a
		}
	}
	if base := os.Getenv("LISTUP_PUBLISHER_BACKOFF_BASE"); base != "" {
		if _, err := time.ParseDuration(base); err == nil {
			config.Publisher.BackoffBase = base
		}
	}
	if capStr := os.Getenv("LISTUP_PUBLISHER_BACKOFF_CAP"); capStr != "" {
		if _, err := time.ParseDuration(capStr); err == nil {
			config.Publisher.BackoffCap = capStr
		}
	}
	if pacing := os.Getenv("LISTUP_PUBLISHER_PACING_INTERVAL"); pacing != "" {
		if _, err := time.ParseDuration(pacing); err == nil {
			config.Publisher.PacingInterval = pacing
		}
	}
	if schedule := os.Getenv("LISTUP_PUBLISHER_SCHEDULE"); schedule != "" {
		config.Publisher.Schedule = schedule
	}
	if cacheDir := os.Getenv("LISTUP_IMAGES_CACHE_DIR"); cacheDir != "" {
		config.Images.CacheDir = cacheDir
	}
}

// ParseDurationOr parses a duration string, falling back to a default on
// empty or malformed input. Config durations are strings ("2m", "45s") so
// malformed values degrade to defaults instead of failing startup.
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// FacebookCredentials returns the account credentials from the environment.
// Returns an error when either value is missing so login failures surface
// before a browser is ever launched.
func FacebookCredentials() (email, password string, err error) {
	email = os.Getenv("FACEBOOK_EMAIL")
	password = os.Getenv("FACEBOOK_PASSWORD")
	if email == "" || password == "" {
		return "", "", fmt.Errorf("FACEBOOK_EMAIL and FACEBOOK_PASSWORD must be set")
	}
	return email, password, nil
}
