package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every environment-sourced setting the server needs at boot
// (spec.md §6). Everything the core treats as an external collaborator —
// store connection, listen address, ops-alert channels — is loaded here
// rather than threaded through call sites as flags.
type Config struct {
	Development bool

	// Core configuration
	DatabaseURL     string
	ServerURL       string
	PublicURL       string
	ForceWsInsecure bool

	// Notification configuration
	TelegramBotToken string
	TelegramChatID   string

	// SMTP configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string
	SMTPTo       string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development: getEnvAsBool("DEVELOPMENT", false),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		ServerURL:       getEnv("SERVER_URL", ":8080"),
		PublicURL:       getEnv("PUBLIC_URL", "localhost:8080"),
		ForceWsInsecure: getEnvAsBool("FORCE_WS_INSECURE", true),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPSender:   getEnv("SMTP_SENDER", ""),
		SMTPTo:       getEnv("SMTP_TO", ""),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the fields required to boot are set. Ops-alert
// channels are optional by design (4.H): a blank token or host simply
// disables that channel rather than failing startup.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.ServerURL == "" {
		return fmt.Errorf("SERVER_URL is required")
	}

	if c.PublicURL == "" {
		return fmt.Errorf("PUBLIC_URL is required")
	}

	return nil
}

// WsScheme returns "ws" or "wss" depending on ForceWsInsecure, for building
// the URL returned by POST /ws/start.
func (c *Config) WsScheme() string {
	if c.ForceWsInsecure {
		return "ws"
	}
	return "wss"
}

// HTTPScheme mirrors WsScheme for any link the API hands back over HTTP.
func (c *Config) HTTPScheme() string {
	if c.ForceWsInsecure {
		return "http"
	}
	return "https"
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
