package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the Heartbeat server. Absence
// of a credential selects the corresponding fallback/mock implementation at
// startup rather than failing.
type Config struct {
	Addr        string
	BaseURL     string
	Environment string
	LogLevel    string
	LogFile     string

	// Persistence. DatabaseURL selects the hosted Postgres primary store;
	// DataDir selects a durable SQLite fallback file, otherwise the
	// fallback is in-memory.
	DatabaseURL string
	DataDir     string

	// Email dispatch.
	ResendAPIKey    string
	ResendFromEmail string
	SMTPHost        string
	SMTPPort        string
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string
	EmailTimeout    time.Duration

	// Summarization.
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	AnalysisTimeout time.Duration

	// Operator auth. Empty secret disables auth and uses the default owner.
	JWTSecret string

	// Scheduler. Empty spec disables automatic queue draining.
	AutoDrainSpec string
}

const (
	defaultAddr            = ":8080"
	defaultBaseURL         = "http://localhost:3000"
	defaultAnthropicModel  = "claude-3-haiku-20240307"
	defaultEmailTimeout    = 10 * time.Second
	defaultAnalysisTimeout = 25 * time.Second
)

// Load reads configuration from the environment and an optional .env file.
// godotenv never overrides variables that are already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:        envOr("HEARTBEAT_ADDR", defaultAddr),
		BaseURL:     strings.TrimRight(envOr("HEARTBEAT_BASE_URL", defaultBaseURL), "/"),
		Environment: strings.ToLower(envOr("ENVIRONMENT", "development")),
		LogLevel:    strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFile:     os.Getenv("HEARTBEAT_LOG_FILE"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DataDir:     os.Getenv("HEARTBEAT_DATA_DIR"),

		ResendAPIKey:    cleanKey(os.Getenv("RESEND_API_KEY")),
		ResendFromEmail: envOr("RESEND_FROM_EMAIL", "onboarding@resend.dev"),
		SMTPHost:        os.Getenv("SMTP_HOST"),
		SMTPPort:        envOr("SMTP_PORT", "587"),
		SMTPUsername:    os.Getenv("SMTP_USERNAME"),
		SMTPPassword:    os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:        os.Getenv("SMTP_FROM"),

		AnthropicAPIKey: cleanKey(os.Getenv("ANTHROPIC_API_KEY")),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", defaultAnthropicModel),
		OpenAIAPIKey:    cleanKey(os.Getenv("OPENAI_API_KEY")),

		JWTSecret:     os.Getenv("HEARTBEAT_JWT_SECRET"),
		AutoDrainSpec: os.Getenv("HEARTBEAT_AUTO_DRAIN_SPEC"),
	}

	var err error
	if cfg.EmailTimeout, err = durationOr("EMAIL_TIMEOUT", defaultEmailTimeout); err != nil {
		return nil, err
	}
	if cfg.AnalysisTimeout, err = durationOr("ANALYSIS_TIMEOUT", defaultAnalysisTimeout); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasDatabase reports whether a hosted primary store is configured.
func (c *Config) HasDatabase() bool { return c.DatabaseURL != "" }

// HasEmailProvider reports whether a real email transport is configured.
func (c *Config) HasEmailProvider() bool { return c.ResendAPIKey != "" || c.SMTPHost != "" }

// HasSummarizer reports whether a real summarization provider is configured.
func (c *Config) HasSummarizer() bool { return c.AnthropicAPIKey != "" || c.OpenAIAPIKey != "" }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// cleanKey strips whitespace and rejects the placeholder values that ship in
// example env files, so a templated key behaves like no key at all.
func cleanKey(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "REPLACE_WITH_YOUR_API_KEY", "your-api-key", "your_resend_api_key", "re_YOUR_API_KEY_HERE":
		return ""
	}
	return v
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
