package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config holds validated process configuration. Load fails closed: a missing
// required secret aborts startup instead of limping along without it.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	Port        int

	DatabaseURL string
	DatabaseCA  string

	RedisURL string

	LLMAPIKey        string
	LLMModel         string
	LLMChatModel     string
	LLMTimeout       time.Duration
	LLMMaxContextLen int

	IdPAudience string
	IdPJWKSURL  string

	StorageAccountName string
	StorageAccountKey  string
	StorageContainer   string

	DefaultBusinessName string
	DefaultGSTNumber    string

	RateLimit RateLimitConfig
}

// RateLimitConfig carries per-tier sliding-window maxima.
type RateLimitConfig struct {
	Window         time.Duration
	FreeMax        int
	ProMax         int
	EnterpriseMax  int
	ReadMultiplier int
}

// Load reads configuration from the environment (and .env in development)
// and validates required fields.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "chatorder"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: normalizeEnvironment(getenv("ENVIRONMENT", EnvDevelopment)),
		Port:        getenvInt("PORT", 3000),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DatabaseCA:  strings.TrimSpace(os.Getenv("DATABASE_CA_CERT")),

		RedisURL: getenv("REDIS_URL", "redis://localhost:6379"),

		LLMAPIKey:        strings.TrimSpace(os.Getenv("LLM_API_KEY")),
		LLMModel:         getenv("LLM_MODEL", "claude-3-5-haiku-latest"),
		LLMChatModel:     getenv("LLM_CHAT_MODEL", "claude-sonnet-4-5"),
		LLMTimeout:       time.Duration(getenvInt("LLM_TIMEOUT_MS", 60000)) * time.Millisecond,
		LLMMaxContextLen: getenvInt("LLM_MAX_CONTEXT_CHARS", 12000),

		IdPAudience: strings.TrimSpace(os.Getenv("IDP_AUDIENCE")),
		IdPJWKSURL:  strings.TrimSpace(os.Getenv("IDP_JWKS_URL")),

		StorageAccountName: strings.TrimSpace(os.Getenv("STORAGE_ACCOUNT_NAME")),
		StorageAccountKey:  strings.TrimSpace(os.Getenv("STORAGE_ACCOUNT_KEY")),
		StorageContainer:   getenv("STORAGE_CONTAINER", "invoices"),

		DefaultBusinessName: getenv("DEFAULT_BUSINESS_NAME", "My Business"),
		DefaultGSTNumber:    getenv("DEFAULT_GST_NUMBER", ""),

		RateLimit: RateLimitConfig{
			Window:         time.Duration(getenvInt("RATE_LIMIT_WINDOW_MINUTES", 15)) * time.Minute,
			FreeMax:        getenvInt("RATE_LIMIT_FREE_MAX", 100),
			ProMax:         getenvInt("RATE_LIMIT_PRO_MAX", 1000),
			EnterpriseMax:  getenvInt("RATE_LIMIT_ENTERPRISE_MAX", 10000),
			ReadMultiplier: getenvInt("RATE_LIMIT_READ_MULTIPLIER", 5),
		},

	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations missing required secrets.
func (c Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.LLMAPIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}
	if c.IdPAudience == "" {
		missing = append(missing, "IDP_AUDIENCE")
	}
	if c.IdPJWKSURL == "" {
		missing = append(missing, "IDP_JWKS_URL")
	}
	if c.StorageAccountName == "" {
		missing = append(missing, "STORAGE_ACCOUNT_NAME")
	}
	if c.StorageAccountKey == "" {
		missing = append(missing, "STORAGE_ACCOUNT_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("invalid PORT")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func normalizeEnvironment(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case EnvProduction:
		return EnvProduction
	case EnvTest:
		return EnvTest
	default:
		return EnvDevelopment
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
