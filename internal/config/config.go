package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrMissingAPIKey is returned by Load when no model API key is configured.
var ErrMissingAPIKey = errors.New("missing required config: model API key. " +
	"Set llm.api_key in the config file or the CHUNKDIM_LLM_API_KEY environment variable")

type Config struct {
	Server     ServerConfig
	LLM        LLMConfig
	Generation GenerationConfig
	Extraction ExtractionConfig
	Storage    StorageConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type LLMConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float64
	MaxTokens         int
	RequestsPerSecond float64
}

type GenerationConfig struct {
	BatchSize   int
	InputPrice  float64
	OutputPrice float64
}

type ExtractionConfig struct {
	// Model overrides LLM.Model for chunk identification when set.
	Model        string
	ModelTimeout time.Duration
	AutoGenerate bool
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 4100},
		LLM: LLMConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "anthropic/claude-sonnet-4",
			Temperature: 0.5,
			MaxTokens:   2048,
		},
		Generation: GenerationConfig{
			BatchSize:   3,
			InputPrice:  0.000003,
			OutputPrice: 0.000015,
		},
		Extraction: ExtractionConfig{
			ModelTimeout: 240 * time.Second,
		},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
	}
}

// ExtractionModel is the model used for chunk identification.
func (c Config) ExtractionModel() string {
	if c.Extraction.Model != "" {
		return c.Extraction.Model
	}
	return c.LLM.Model
}

// SlogLevel maps log.level onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Load reads configuration from the TOML file at FilePath, then applies
// CHUNKDIM_* environment overrides. It fails when no API key is set.
func Load() (Config, error) {
	b, err := newTOMLBackend(FilePath())
	if err != nil {
		return Config{}, err
	}
	return loadWith(b)
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return Config{}, ErrMissingAPIKey
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Generation.BatchSize < 1 {
		return fmt.Errorf("generation.batch_size must be at least 1, got %d", c.Generation.BatchSize)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be at least 1, got %d", c.LLM.MaxTokens)
	}
	if c.Extraction.ModelTimeout <= 0 {
		return fmt.Errorf("extraction.model_timeout must be positive, got %s", c.Extraction.ModelTimeout)
	}
	return nil
}
