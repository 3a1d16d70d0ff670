package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:              "8080",
		Env:               "development",
		LogLevel:          "info",
		Timezone:          "Africa/Accra",
		DefaultDailyLimit: 2000,
		DefaultAvgAmount:  50,
		AvgAlpha:          0.5,
		ConfirmTTLHours:   24,
	}
}

func TestLoadDefaults(t *testing.T) {
	// Clear anything the environment might carry over
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "TIMEZONE",
		"DEFAULT_DAILY_LIMIT", "DEFAULT_AVG_AMOUNT", "AVG_ALPHA",
		"CONFIRM_TTL_HOURS", "TELEGRAM_BOT_TOKEN", "TWILIO_ACCOUNT_SID",
		"TWILIO_AUTH_TOKEN",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Equal(t, DefaultLimit, cfg.DefaultDailyLimit)
	assert.Equal(t, DefaultAlpha, cfg.AvgAlpha)
	assert.Equal(t, DefaultConfirmTTL, cfg.ConfirmTTLHours)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("AVG_ALPHA", "0.3")
	t.Setenv("CONFIRM_TTL_HOURS", "12")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 0.3, cfg.AvgAlpha)
	assert.Equal(t, 12*time.Hour, cfg.ConfirmTTL())
	assert.Equal(t, "tok123", cfg.TelegramBotToken)
}

func TestValidateTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg.Timezone = "Africa/Accra"
	assert.NoError(t, cfg.Validate())
}

func TestValidateAlpha(t *testing.T) {
	cfg := validConfig()

	cfg.AvgAlpha = 0
	assert.Error(t, cfg.Validate())

	cfg.AvgAlpha = 1.5
	assert.Error(t, cfg.Validate())

	cfg.AvgAlpha = 1
	assert.NoError(t, cfg.Validate())
}

func TestValidateLimitAndTTL(t *testing.T) {
	cfg := validConfig()
	cfg.DefaultDailyLimit = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.ConfirmTTLHours = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateTwilioPairing(t *testing.T) {
	cfg := validConfig()
	cfg.TwilioAccountSID = "AC123"
	assert.Error(t, cfg.Validate())

	cfg.TwilioAuthToken = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "Africa/Accra", cfg.Location().String())

	cfg.Timezone = "not-a-zone"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestEnvHelpers(t *testing.T) {
	cfg := validConfig()
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}
