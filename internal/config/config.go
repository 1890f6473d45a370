// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.plantia/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - LLM: provider, model, temperature, embedder
//   - Storage: PostgreSQL connection for the knowledge store
//   - Dynamic configs: base directory for topic and agent definitions,
//     reload interval (see internal/configstore)
//   - Serve: listen address, CORS, rate limiting, API token stub
//   - Observability: OTLP trace export
//
// Security: sensitive data (passwords, tokens) is never logged; values are
// masked in MarshalJSON.
// Validation: range checks in validation.go with sentinel errors for
// Go-idiomatic checking via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidProvider indicates the LLM provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidConfigDir indicates the dynamic config directory is invalid.
	ErrInvalidConfigDir = errors.New("invalid config directory")

	// ErrInvalidReloadInterval indicates the reload interval is out of range.
	ErrInvalidReloadInterval = errors.New("invalid reload interval")

	// ErrInvalidHistoryLimit indicates the session history limit is out of range.
	ErrInvalidHistoryLimit = errors.New("invalid history limit")

	// ErrInvalidQuestionLength indicates the max question length is out of range.
	ErrInvalidQuestionLength = errors.New("invalid max question length")
)

// LLM provider identifiers used in Config.Provider.
const (
	ProviderOllama   = "ollama"
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultReloadInterval is the minimum time between dynamic config
	// re-scans (the reload window).
	DefaultReloadInterval = 30 * time.Second

	// DefaultHistoryMaxMessages bounds per-session chat history.
	DefaultHistoryMaxMessages = 20

	// MaxAllowedHistoryMessages is the absolute maximum to prevent OOM.
	MaxAllowedHistoryMessages = 1000

	// DefaultMaxQuestionLength bounds incoming questions.
	DefaultMaxQuestionLength = 2000
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update
// MarshalJSON.
type Config struct {
	// LLM provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "ollama" (default), "gemini"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // e.g. "llama3.1", "gemini-2.5-flash"
	Temperature float32 `mapstructure:"temperature" json:"temperature"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Embeddings
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Dynamic configuration (topics + agents)
	ConfigDir      string        `mapstructure:"config_dir" json:"config_dir"`
	ReloadInterval time.Duration `mapstructure:"reload_interval" json:"reload_interval"`
	DefaultAgent   string        `mapstructure:"default_agent" json:"default_agent"`

	// Chat behavior
	HistoryMaxMessages int `mapstructure:"history_max_messages" json:"history_max_messages"`
	MaxQuestionLength  int `mapstructure:"max_question_length" json:"max_question_length"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Serve mode
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	APIToken    string   `mapstructure:"api_token" json:"api_token"` // SENSITIVE: masked in MarshalJSON; empty disables the check
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Observability
	Otel OtelConfig `mapstructure:"otel" json:"otel"`
}

// OtelConfig configures OTLP trace export.
type OtelConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".plantia")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Fail-fast validation
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// LLM defaults
	viper.SetDefault("provider", ProviderOllama)
	viper.SetDefault("model_name", "llama3.1")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("embedder_model", "llama3.1")

	// Dynamic config defaults
	viper.SetDefault("config_dir", "./data/configs")
	viper.SetDefault("reload_interval", DefaultReloadInterval)
	viper.SetDefault("default_agent", "general")

	// Chat defaults
	viper.SetDefault("history_max_messages", DefaultHistoryMaxMessages)
	viper.SetDefault("max_question_length", DefaultMaxQuestionLength)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "plantia")
	viper.SetDefault("postgres_password", "plantia_dev_password")
	viper.SetDefault("postgres_db_name", "plantia")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Serve defaults
	viper.SetDefault("cors_origins", []string{"http://localhost:3000", "http://localhost:8080"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	// Observability defaults
	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.endpoint", "localhost:4318")
	viper.SetDefault("otel.service_name", "plantia")
	viper.SetDefault("otel.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Hardcoded strings can't fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "PLANTIA_PROVIDER")
	mustBind("model_name", "PLANTIA_MODEL_NAME")
	mustBind("ollama_host", "PLANTIA_OLLAMA_HOST")
	mustBind("embedder_model", "PLANTIA_EMBEDDER_MODEL")
	mustBind("config_dir", "PLANTIA_CONFIG_DIR")
	mustBind("default_agent", "PLANTIA_DEFAULT_AGENT")
	mustBind("api_token", "PLANTIA_API_TOKEN")
	mustBind("cors_origins", "PLANTIA_CORS_ORIGINS")
	mustBind("trust_proxy", "PLANTIA_TRUST_PROXY")
	mustBind("rate_burst", "PLANTIA_RATE_BURST")
	mustBind("otel.enabled", "PLANTIA_OTEL_ENABLED")
	mustBind("otel.endpoint", "PLANTIA_OTEL_ENDPOINT")

	// NOTE: GEMINI_API_KEY is read directly by Genkit when provider is
	// "gemini"; validation checks its presence based on the selected
	// provider in cfg.Validate().
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked; longer secrets show the
// first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - APIToken
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.APIToken = maskSecret(a.APIToken)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// DatabaseURL returns the PostgreSQL connection URL.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword,
		c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
