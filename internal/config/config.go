package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Database
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite3"` // "sqlite3" or "pgx"
	DatabaseDSN    string `env:"DATABASE_DSN" envDefault:"./data/clarify.db"`

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	// Mailboxes
	IMAPDialTimeout    time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	IMAPFetchTimeout   time.Duration `env:"IMAP_FETCH_TIMEOUT" envDefault:"2m"`
	IMAPReconnectDelay time.Duration `env:"IMAP_RECONNECT_DELAY" envDefault:"5m"`
	EmailPollInterval  time.Duration `env:"EMAIL_POLL_INTERVAL" envDefault:"1m"`

	// Queue
	QueueSweepInterval time.Duration `env:"QUEUE_SWEEP_INTERVAL" envDefault:"5m"`
	QueueBatchSize     int           `env:"QUEUE_BATCH_SIZE" envDefault:"20"`
	QueueMaxRetries    int           `env:"QUEUE_MAX_RETRIES" envDefault:"3"`
	QueueWorkers       int           `env:"QUEUE_WORKERS" envDefault:"4"`
	QueueRetention     time.Duration `env:"QUEUE_RETENTION" envDefault:"720h"`
	QueueStaleAfter    time.Duration `env:"QUEUE_STALE_AFTER" envDefault:"30m"`

	// Language model
	LLMProvider        string          `env:"LLM_PROVIDER" envDefault:"gemini"` // "gemini" or "openai"
	LLMModel           string          `env:"LLM_MODEL" envDefault:"gemini-1.5-flash"`
	LLMBaseURL         string          `env:"LLM_BASE_URL"` // OpenAI compatible endpoints only
	LLMFreeAPIKey      string          `env:"LLM_FREE_API_KEY"`
	LLMPaidAPIKey      string          `env:"LLM_PAID_API_KEY"`
	LLMFreeDailyLimit  int             `env:"LLM_FREE_DAILY_LIMIT" envDefault:"1500"`
	LLMFreeMinuteLimit int             `env:"LLM_FREE_MINUTE_LIMIT" envDefault:"15"`
	LLMPaidDailyLimit  int             `env:"LLM_PAID_DAILY_LIMIT" envDefault:"50000"`
	LLMPaidMinuteLimit int             `env:"LLM_PAID_MINUTE_LIMIT" envDefault:"1000"`
	LLMTimeout         time.Duration   `env:"LLM_TIMEOUT" envDefault:"60s"`
	LLMBackoff         []time.Duration `env:"LLM_BACKOFF" envDefault:"1s,2s,4s,8s,16s,32s"`

	// Extraction and cases
	ExtractionCacheTTL time.Duration `env:"EXTRACTION_CACHE_TTL" envDefault:"168h"`
	ExtractionMaxBody  int           `env:"EXTRACTION_MAX_BODY" envDefault:"8000"`
	FollowUpDelay      time.Duration `env:"FOLLOW_UP_DELAY" envDefault:"72h"`
	BulkMinItems       int           `env:"BULK_MIN_ITEMS" envDefault:"3"`
	EnrichmentTimeout  time.Duration `env:"ENRICHMENT_TIMEOUT" envDefault:"30s"`

	// Teams seed file (optional)
	TeamsFile string `env:"TEAMS_FILE"`

	// Admin HTTP surface
	AdminAddr string `env:"ADMIN_ADDR" envDefault:":8080"`

	// Telegram (optional)
	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`
	CaseURLBase    string `env:"CASE_URL_BASE"` // e.g., https://cases.example.com/cases/

	// Redis events (optional)
	RedisURL       string `env:"REDIS_URL"`
	RedisEventsKey string `env:"REDIS_EVENTS_KEY" envDefault:"clarify:events"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// TelegramEnabled returns true if Telegram notifications are configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// RedisEnabled returns true if case events are published to Redis
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express
func (c *Config) Validate() error {
	// 32 bytes for AES-256
	if len(c.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.EncryptionKey))
	}

	switch c.DatabaseDriver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	switch c.LLMProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.LLMFreeAPIKey == "" && c.LLMPaidAPIKey == "" {
		return fmt.Errorf("at least one of LLM_FREE_API_KEY and LLM_PAID_API_KEY is required")
	}

	if c.QueueMaxRetries < 1 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must be positive, got %d", c.QueueMaxRetries)
	}
	if c.QueueWorkers < 1 {
		c.QueueWorkers = 1
	}
	if len(c.LLMBackoff) == 0 {
		return fmt.Errorf("LLM_BACKOFF must list at least one delay")
	}
	return nil
}
