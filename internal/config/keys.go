package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
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
		key: "server.port", typ: kInt, env: "SITECRAFT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.base_url", typ: kString, env: "SITECRAFT_SERVER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.BaseURL },
	},
	{
		key: "model.backend", typ: kString, env: "SITECRAFT_MODEL_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Model.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.Backend },
	},
	{
		key: "model.temperature", typ: kFloat, env: "SITECRAFT_MODEL_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Model.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Model.Temperature },
	},
	{
		key: "gemini.api_key", typ: kString, env: "SITECRAFT_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.model", typ: kString, env: "SITECRAFT_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SITECRAFT_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "SITECRAFT_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SITECRAFT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "generation.inter_call_delay", typ: kDuration, env: "SITECRAFT_GENERATION_INTER_CALL_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Generation.InterCallDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generation.InterCallDelay },
	},
	{
		key: "generation.max_attempts", typ: kInt, env: "SITECRAFT_GENERATION_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Generation.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.MaxAttempts },
	},
	{
		key: "generation.retry_delay", typ: kDuration, env: "SITECRAFT_GENERATION_RETRY_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Generation.RetryDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generation.RetryDelay },
	},
	{
		key: "generation.overload_delay", typ: kDuration, env: "SITECRAFT_GENERATION_OVERLOAD_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Generation.OverloadDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generation.OverloadDelay },
	},
	{
		key: "generation.call_timeout", typ: kDuration, env: "SITECRAFT_GENERATION_CALL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Generation.CallTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generation.CallTimeout },
	},
	{
		key: "generation.max_components", typ: kInt, env: "SITECRAFT_GENERATION_MAX_COMPONENTS",
		apply:   func(cfg *Config, v any) { cfg.Generation.MaxComponents = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.MaxComponents },
	},
	{
		key: "log.level", typ: kString, env: "SITECRAFT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "SITECRAFT_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
}

func specFor(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts a raw string into the key's value type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(strings.TrimSpace(raw))
	case kFloat:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case kDuration:
		return time.ParseDuration(strings.TrimSpace(raw))
	default:
		return raw, nil
	}
}

// applyBackend copies stored values into cfg. Unparsable values keep the
// default and log a warning; backend read failures are returned.
func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		var (
			v   any
			ok  bool
			err error
		)
		if s.typ == kInt {
			v, ok, err = b.GetInt(s.key)
		} else {
			var raw string
			raw, ok, err = b.GetString(s.key)
			if ok && err == nil {
				v, err = s.parse(raw)
				if err != nil {
					slog.Warn("ignoring invalid config value", "key", s.key, "value", raw, "error", err)
					continue
				}
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
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("ignoring invalid environment value", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
