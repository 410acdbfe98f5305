package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CHUNKDIM_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "llm.base_url", typ: kString, env: "CHUNKDIM_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "CHUNKDIM_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.model", typ: kString, env: "CHUNKDIM_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.temperature", typ: kFloat, env: "CHUNKDIM_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "llm.max_tokens", typ: kInt, env: "CHUNKDIM_LLM_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxTokens },
	},
	{
		key: "llm.requests_per_second", typ: kFloat, env: "CHUNKDIM_LLM_REQUESTS_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.LLM.RequestsPerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.RequestsPerSecond },
	},
	{
		key: "generation.batch_size", typ: kInt, env: "CHUNKDIM_GENERATION_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Generation.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.BatchSize },
	},
	{
		key: "generation.input_price", typ: kFloat, env: "CHUNKDIM_GENERATION_INPUT_PRICE",
		apply:   func(cfg *Config, v any) { cfg.Generation.InputPrice = v.(float64) },
		extract: func(cfg Config) any { return cfg.Generation.InputPrice },
	},
	{
		key: "generation.output_price", typ: kFloat, env: "CHUNKDIM_GENERATION_OUTPUT_PRICE",
		apply:   func(cfg *Config, v any) { cfg.Generation.OutputPrice = v.(float64) },
		extract: func(cfg Config) any { return cfg.Generation.OutputPrice },
	},
	{
		key: "extraction.model", typ: kString, env: "CHUNKDIM_EXTRACTION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Extraction.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Extraction.Model },
	},
	{
		key: "extraction.model_timeout", typ: kDuration, env: "CHUNKDIM_EXTRACTION_MODEL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Extraction.ModelTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Extraction.ModelTimeout },
	},
	{
		key: "extraction.auto_generate", typ: kBool, env: "CHUNKDIM_EXTRACTION_AUTO_GENERATE",
		apply:   func(cfg *Config, v any) { cfg.Extraction.AutoGenerate = v.(bool) },
		extract: func(cfg Config) any { return cfg.Extraction.AutoGenerate },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CHUNKDIM_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "CHUNKDIM_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parseValue converts raw text into the Go type of a key.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	}
	return raw, nil
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		var (
			v   any
			ok  bool
			err error
		)
		switch s.typ {
		case kString:
			v, ok, err = b.GetString(s.key)
		case kInt:
			v, ok, err = b.GetInt(s.key)
		case kFloat:
			v, ok, err = b.GetFloat(s.key)
		case kBool:
			v, ok, err = b.GetBool(s.key)
		case kDuration:
			var raw string
			raw, ok, err = b.GetString(s.key)
			if err == nil && ok {
				v, err = time.ParseDuration(raw)
			}
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok {
			s.apply(cfg, v)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using configured value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
