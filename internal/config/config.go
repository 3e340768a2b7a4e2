// Package config loads runtime settings from environment variables. In
// development, a local .env file is preloaded if present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/cascadehub/notify/internal/apperr"
)

// Config holds the process's runtime settings: HTTP/log settings, the store
// and queue backends, retry policy, and per-channel provider credentials.
type Config struct {
	// Process
	HTTPAddr    string
	Environment string
	LogLevel    string
	LogFormat   string
	LogOutput   string

	// Store / queue backends
	DatabaseURL       string
	QueueURL          string
	QueueStreamName   string
	QueueConsumerGroup string

	// Retry policy
	MaxRetryAttempts int
	RetryBackoffBase float64

	// Provider credentials — each provider decides mock-success mode from
	// its own fields: email needs SMTPHost and a non-zero SMTPPort, SMS needs
	// the account SID, auth token and from-number, Telegram needs the token.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	TwilioAPIBaseURL  string

	TelegramBotToken string
}

// Load reads configuration from the environment. DATABASE_URL and
// QUEUE_URL are required in production but may be empty in development
// (callers decide whether to fail via Validate).
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		LogOutput:   envOr("LOG_OUTPUT", "stdout"),

		DatabaseURL:        os.Getenv("DATABASE_URL"),
		QueueURL:           envOr("QUEUE_URL", "redis://localhost:6379/0"),
		QueueStreamName:    envOr("QUEUE_STREAM_NAME", "notification:retry"),
		QueueConsumerGroup: envOr("QUEUE_CONSUMER_GROUP", "notification-workers"),

		MaxRetryAttempts: envInt("MAX_RETRY_ATTEMPTS", 3),
		RetryBackoffBase: envFloat("RETRY_BACKOFF_BASE", 2.0),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     envInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioAPIBaseURL: envOr("TWILIO_API_BASE_URL", "https://api.twilio.com"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}
}

// Validate enforces sane bounds on the retry-policy knobs and requires the
// two backend DSNs.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return apperr.Validation("database_url", "DATABASE_URL is required")
	}
	if c.QueueURL == "" {
		return apperr.Validation("queue_url", "QUEUE_URL is required")
	}
	if c.MaxRetryAttempts < 1 || c.MaxRetryAttempts > 10 {
		return apperr.Validation("max_retry_attempts", "must be between 1 and 10")
	}
	if c.RetryBackoffBase < 1.0 {
		return apperr.Validation("retry_backoff_base", "must be >= 1.0")
	}
	return nil
}

// RetryBackoffDelay returns backoff_base^(attempt-1) seconds, never negative.
func (c Config) RetryBackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := 1.0
	for i := 1; i < attempt; i++ {
		seconds *= c.RetryBackoffBase
	}
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// String renders a redacted summary, safe to log at startup.
func (c Config) String() string {
	return fmt.Sprintf("Config{env=%s http=%s queue_stream=%s group=%s max_attempts=%d backoff_base=%.1f}",
		c.Environment, c.HTTPAddr, c.QueueStreamName, c.QueueConsumerGroup,
		c.MaxRetryAttempts, c.RetryBackoffBase)
}
