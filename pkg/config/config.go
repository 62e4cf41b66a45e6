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
)

// Config holds all configuration options for the Weibo harvester
type Config struct {
	// Weibo API access
	Weibo WeiboConfig `yaml:"weibo" json:"weibo"`

	// Geocoding settings
	Geocode GeocodeConfig `yaml:"geocode" json:"geocode"`

	// Page controller settings
	Collector CollectorConfig `yaml:"collector" json:"collector"`

	// Fetch client retry settings
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Storage settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Report server settings
	Report ReportConfig `yaml:"report" json:"report"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// WeiboConfig holds Weibo-specific configuration. Cookie is the opaque
// session blob sent verbatim with every request; its contents are never
// parsed or validated here.
type WeiboConfig struct {
	Cookie         string        `yaml:"cookie" json:"cookie"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// GeocodeConfig holds geocoder configuration
type GeocodeConfig struct {
	AmapKey string `yaml:"amap_key" json:"amap_key"`
	// City biases geocoding towards one city, "" searches nationwide
	City      string        `yaml:"city" json:"city"`
	RedisAddr string        `yaml:"redis_addr" json:"redis_addr"`
	CacheTTL  time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// CollectorConfig holds the page controller's pagination and escalation policy
type CollectorConfig struct {
	// PageCap is the maximum number of pages fetched per location
	PageCap int `yaml:"page_cap" json:"page_cap"`
	// InterRequestDelay is the fixed pause between successive page fetches
	// of the same location
	InterRequestDelay time.Duration `yaml:"inter_request_delay" json:"inter_request_delay"`
	// MaxOuterRetries is the number of additional same-page attempts after
	// the fetch client has exhausted its own retries
	MaxOuterRetries int `yaml:"max_outer_retries" json:"max_outer_retries"`
	// OuterRetryDelay is the added pause before each outer retry
	OuterRetryDelay time.Duration `yaml:"outer_retry_delay" json:"outer_retry_delay"`
}

// RetryConfig holds the fetch client's inner retry policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" json:"database_path"`
	DataDir      string `yaml:"data_dir" json:"data_dir"`
}

// ReportConfig holds the report server configuration
type ReportConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Weibo: WeiboConfig{
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: 15 * time.Second,
		},
		Geocode: GeocodeConfig{
			CacheTTL: 24 * time.Hour,
		},
		Collector: CollectorConfig{
			PageCap:           100,
			InterRequestDelay: 1 * time.Second,
			MaxOuterRetries:   2,
			OuterRetryDelay:   3 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         1,
		},
		Storage: StorageConfig{
			DatabasePath: "data/weibogeo.db",
			DataDir:      "data",
		},
		Report: ReportConfig{
			ListenAddr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if cookie := os.Getenv("WEIBOGEO_COOKIE"); cookie != "" {
		c.Weibo.Cookie = cookie
	}
	if userAgent := os.Getenv("WEIBOGEO_USER_AGENT"); userAgent != "" {
		c.Weibo.UserAgent = userAgent
	}
	if amapKey := os.Getenv("WEIBOGEO_AMAP_KEY"); amapKey != "" {
		c.Geocode.AmapKey = amapKey
	}
	if city := os.Getenv("WEIBOGEO_GEOCODE_CITY"); city != "" {
		c.Geocode.City = city
	}
	if redisAddr := os.Getenv("WEIBOGEO_REDIS_ADDR"); redisAddr != "" {
		c.Geocode.RedisAddr = redisAddr
	}
	if pageCap := os.Getenv("WEIBOGEO_PAGE_CAP"); pageCap != "" {
		if val, err := strconv.Atoi(pageCap); err == nil && val > 0 {
			c.Collector.PageCap = val
		}
	}
	if delay := os.Getenv("WEIBOGEO_INTER_REQUEST_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil && d >= 0 {
			c.Collector.InterRequestDelay = d
		}
	}
	if rpm := os.Getenv("WEIBOGEO_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if dbPath := os.Getenv("WEIBOGEO_DATABASE_PATH"); dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}
	if dataDir := os.Getenv("WEIBOGEO_DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
	}
	if logLevel := os.Getenv("WEIBOGEO_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
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
	locations := []string{
		".weibogeo.yaml",
		".weibogeo.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "weibogeo", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "weibogeo", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".weibogeo.yaml"),
		filepath.Join(os.Getenv("HOME"), ".weibogeo.yml"),
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

	if c.Collector.PageCap <= 0 {
		errs = append(errs, errors.New("page cap must be positive"))
	}
	if c.Collector.InterRequestDelay < 0 {
		errs = append(errs, errors.New("inter-request delay cannot be negative"))
	}
	if c.Collector.MaxOuterRetries < 0 {
		errs = append(errs, errors.New("max outer retries cannot be negative"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, errors.New("retry base delay must be positive"))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry max delay must be at least the base delay"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Weibo.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Storage.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
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

// Load loads configuration from all sources with proper precedence.
// Precedence order: Environment variables > .env file > Config file > Defaults
func Load(configPath string) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".weibogeo.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
