package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		prev, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			}
		})
	}
}

func TestValidateRequiresDatabaseURL(t *testing.T) {
	cfg := &Config{ServerURL: ":8080", PublicURL: "localhost:8080"}
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresServerURL(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://x", PublicURL: "localhost:8080"}
	assert.Error(t, cfg.Validate())
}

func TestValidatePassesWithCoreFieldsSet(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://x", ServerURL: ":8080", PublicURL: "localhost:8080"}
	assert.NoError(t, cfg.Validate())
}

func TestValidateAllowsBlankOpsAlertChannels(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://x", ServerURL: ":8080", PublicURL: "localhost:8080"}
	require.Empty(t, cfg.TelegramBotToken)
	require.Empty(t, cfg.SMTPHost)
	assert.NoError(t, cfg.Validate())
}

func TestWsSchemeAndHTTPScheme(t *testing.T) {
	insecure := &Config{ForceWsInsecure: true}
	assert.Equal(t, "ws", insecure.WsScheme())
	assert.Equal(t, "http", insecure.HTTPScheme())

	secure := &Config{ForceWsInsecure: false}
	assert.Equal(t, "wss", secure.WsScheme())
	assert.Equal(t, "https", secure.HTTPScheme())
}

func TestLoadConfigDefaultsAndEnvOverride(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "SERVER_URL", "PUBLIC_URL", "FORCE_WS_INSECURE", "DEVELOPMENT")
	os.Setenv("DATABASE_URL", "postgres://example")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://example", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.ServerURL)
	assert.Equal(t, "localhost:8080", cfg.PublicURL)
	assert.True(t, cfg.ForceWsInsecure)
	assert.False(t, cfg.Development)
}

func TestLoadConfigFailsValidationWithoutDatabaseURL(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "SERVER_URL", "PUBLIC_URL")

	_, err := LoadConfig()
	assert.Error(t, err)
}
