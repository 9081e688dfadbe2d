package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Queue       QueueConfig       `toml:"queue"`
	Ingest      IngestConfig      `toml:"ingest"`
	Notify      NotifyConfig      `toml:"notify"`
	Claude      ClaudeConfig      `toml:"claude"`
	Analysis    AnalysisConfig    `toml:"analysis"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	Logging     LoggingConfig     `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
	TTL            string `toml:"ttl"`              // Uniform expiry window for run data, e.g. "24h"
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`       // e.g. "250ms" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`         // Number of concurrent workers per queue
	VisibilityTimeout string `toml:"visibility_timeout"`  // e.g. "1m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`         // Max delivery attempts before a message is parked as failed
	MaxFailedRetained int    `toml:"max_failed_retained"` // Cap on retained failed jobs per queue
}

// IngestConfig bounds the ingestion endpoint
type IngestConfig struct {
	MaxBodyBytes int64 `toml:"max_body_bytes"` // HTTP body size limit for /api/ingest
	MaxLines     int   `toml:"max_lines"`      // Max entries per batch; oversized batches get a retryable 400
}

// NotifyConfig is consumed by the notification collaborator, not the pipeline
type NotifyConfig struct {
	Threshold      int    `toml:"threshold"`       // Min issue count before a notification fires
	DebounceWindow string `toml:"debounce_window"` // Suppress repeat notifications for the same fingerprint, e.g. "5m"
	DefaultURL     string `toml:"default_url"`     // Fallback webhook when a run has no registered callback
	Timeout        string `toml:"timeout"`         // Webhook POST timeout
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`    // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model     string `toml:"model"`      // Model for analysis (default: "claude-haiku-3-5-20241022")
	MaxTokens int    `toml:"max_tokens"` // Maximum tokens in response (default: 4096)
	Timeout   string `toml:"timeout"`    // Per-call timeout as duration string (default: "30s")
	RateLimit string `toml:"rate_limit"` // Rate limit duration string (default: "1s")
}

// AnalysisConfig bounds the /api/qna path
type AnalysisConfig struct {
	TokenBudget        int     `toml:"token_budget"`         // Approx prompt token budget for the rendered log transcript
	BreakerWindow      string  `toml:"breaker_window"`       // Rolling error-rate window, e.g. "1m"
	BreakerErrorRate   float64 `toml:"breaker_error_rate"`   // Open when the error rate crosses this (0..1)
	BreakerMinRequests int     `toml:"breaker_min_requests"` // Min calls in window before the rate is meaningful
	BreakerCooldown    string  `toml:"breaker_cooldown"`     // Open -> half-open after this
}

// MaintenanceConfig drives the cron-scheduled housekeeping jobs
type MaintenanceConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule for badger GC and failed-job trimming
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns a config populated with defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/vigil",
				ResetOnStartup: false,
				TTL:            "24h",
			},
		},
		Queue: QueueConfig{
			PollInterval:      "250ms",
			Concurrency:       4,
			VisibilityTimeout: "1m",
			MaxReceive:        3,
			MaxFailedRetained: 100,
		},
		Ingest: IngestConfig{
			MaxBodyBytes: 5 * 1024 * 1024, // 5MB
			MaxLines:     500,
		},
		Notify: NotifyConfig{
			Threshold:      3,
			DebounceWindow: "5m",
			DefaultURL:     "",
			Timeout:        "10s",
		},
		Claude: ClaudeConfig{
			APIKey:    "",
			Model:     "claude-haiku-3-5-20241022",
			MaxTokens: 4096,
			Timeout:   "30s",
			RateLimit: "1s",
		},
		Analysis: AnalysisConfig{
			TokenBudget:        8000,
			BreakerWindow:      "1m",
			BreakerErrorRate:   0.5,
			BreakerMinRequests: 5,
			BreakerCooldown:    "30s",
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Schedule: "*/10 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
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

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIGIL_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("VIGIL_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VIGIL_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("VIGIL_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if ttl := os.Getenv("VIGIL_STORAGE_TTL"); ttl != "" {
		config.Storage.Badger.TTL = ttl
	}

	if pollInterval := os.Getenv("VIGIL_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("VIGIL_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if maxReceive := os.Getenv("VIGIL_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if m, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = m
		}
	}

	if maxLines := os.Getenv("VIGIL_INGEST_MAX_LINES"); maxLines != "" {
		if m, err := strconv.Atoi(maxLines); err == nil {
			config.Ingest.MaxLines = m
		}
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("VIGIL_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("VIGIL_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	if level := os.Getenv("VIGIL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// StorageTTL parses the configured run-data expiry window
func (c *Config) StorageTTL() time.Duration {
	d, err := time.ParseDuration(c.Storage.Badger.TTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// QueuePollInterval parses the worker poll interval with a safe default
func (c *Config) QueuePollInterval() time.Duration {
	d, err := time.ParseDuration(c.Queue.PollInterval)
	if err != nil || d <= 0 {
		return 250 * time.Millisecond
	}
	return d
}

// QueueVisibilityTimeout parses the base visibility timeout with a safe default
func (c *Config) QueueVisibilityTimeout() time.Duration {
	d, err := time.ParseDuration(c.Queue.VisibilityTimeout)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// NotifyDebounce parses the notification debounce window
func (c *Config) NotifyDebounce() time.Duration {
	d, err := time.ParseDuration(c.Notify.DebounceWindow)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}
