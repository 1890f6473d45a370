package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider validation
	validProviders := []string{ProviderOllama, ProviderGemini, ProviderGoogleAI}
	if !slices.Contains(validProviders, c.Provider) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidProvider, c.Provider, validProviders)
	}

	// Gemini reads its key from the environment; fail fast before serving
	// requests rather than on the first generation call.
	if c.Provider == ProviderGemini || c.Provider == ProviderGoogleAI {
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q",
				ErrInvalidProvider, c.Provider)
		}
	}

	if c.Provider == ProviderOllama && c.OllamaHost == "" {
		return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
	}

	// 2. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 3. Dynamic config validation
	if c.ConfigDir == "" {
		return fmt.Errorf("%w: config_dir cannot be empty", ErrInvalidConfigDir)
	}

	if c.ReloadInterval < time.Second || c.ReloadInterval > time.Hour {
		return fmt.Errorf("%w: must be between 1s and 1h, got %s", ErrInvalidReloadInterval, c.ReloadInterval)
	}

	// 4. Chat behavior validation
	if c.HistoryMaxMessages < 1 || c.HistoryMaxMessages > MaxAllowedHistoryMessages {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidHistoryLimit, MaxAllowedHistoryMessages, c.HistoryMaxMessages)
	}

	if c.MaxQuestionLength < 1 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidQuestionLength, c.MaxQuestionLength)
	}

	// 5. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "plantia_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"warning", "change postgres_password in config.yaml for production deployments")
	}

	return nil
}
