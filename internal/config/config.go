// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Risk engine settings
	Timezone          string  // IANA name used for day boundaries and time-of-day factors
	DefaultDailyLimit float64 // GHS, applied to new profiles
	DefaultAvgAmount  float64 // GHS, seed for the spending average
	AvgAlpha          float64 // EWMA smoothing factor for the spending average, (0,1]
	ConfirmTTLHours   int     // how long a confirmation prompt waits for a reply

	// Telegram bot
	TelegramBotToken      string
	TelegramWebhookSecret string

	// Twilio WhatsApp
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort       = "8080"
	DefaultEnv        = "development"
	DefaultLogLevel   = "info"
	DefaultTimezone   = "Africa/Accra"
	DefaultLimit      = 2000.0
	DefaultAvg        = 50.0
	DefaultAlpha      = 0.5
	DefaultConfirmTTL = 24
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		Timezone:              getEnv("TIMEZONE", DefaultTimezone),
		DefaultDailyLimit:     getEnvFloat("DEFAULT_DAILY_LIMIT", DefaultLimit),
		DefaultAvgAmount:      getEnvFloat("DEFAULT_AVG_AMOUNT", DefaultAvg),
		AvgAlpha:              getEnvFloat("AVG_ALPHA", DefaultAlpha),
		ConfirmTTLHours:       int(getEnvInt64("CONFIRM_TTL_HOURS", DefaultConfirmTTL)),
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		TwilioAccountSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNumber:  os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a valid IANA zone: %w", c.Timezone, err)
	}
	if c.AvgAlpha <= 0 || c.AvgAlpha > 1 {
		return fmt.Errorf("AVG_ALPHA must be in (0, 1], got %v", c.AvgAlpha)
	}
	if c.DefaultDailyLimit <= 0 {
		return fmt.Errorf("DEFAULT_DAILY_LIMIT must be positive, got %v", c.DefaultDailyLimit)
	}
	if c.ConfirmTTLHours <= 0 {
		return fmt.Errorf("CONFIRM_TTL_HOURS must be positive, got %d", c.ConfirmTTLHours)
	}
	if c.TwilioAccountSID != "" && c.TwilioAuthToken == "" {
		return fmt.Errorf("TWILIO_AUTH_TOKEN is required when TWILIO_ACCOUNT_SID is set")
	}
	return nil
}

// Location returns the configured timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConfirmTTL returns the confirmation timeout as a duration.
func (c *Config) ConfirmTTL() time.Duration {
	return time.Duration(c.ConfirmTTLHours) * time.Hour
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
