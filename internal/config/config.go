package config

import (
	"fmt"
	"strings"
	"time"
)

// Model backends.
const (
	BackendAuto   = ""
	BackendGemini = "gemini"
	BackendOllama = "ollama"
)

type Config struct {
	Server     ServerConfig
	Model      ModelConfig
	Gemini     GeminiConfig
	Ollama     OllamaConfig
	Storage    StorageConfig
	Generation GenerationConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
	// BaseURL is where CLI commands reach the server. Empty means the local
	// server on Port.
	BaseURL string
}

type ModelConfig struct {
	// Backend is "gemini", "ollama" or empty to pick gemini when an API key
	// is available.
	Backend     string
	Temperature float64
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type StorageConfig struct {
	DataDir string
}

type GenerationConfig struct {
	InterCallDelay time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
	OverloadDelay  time.Duration
	CallTimeout    time.Duration
	MaxComponents  int
}

type LogConfig struct {
	Level string
	// File, when set, receives logs through a rotating writer.
	File string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Model: ModelConfig{
			Temperature: 0.7,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "qwen2.5-coder",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Generation: GenerationConfig{
			InterCallDelay: 6 * time.Second,
			MaxAttempts:    2,
			RetryDelay:     6 * time.Second,
			OverloadDelay:  15 * time.Second,
			CallTimeout:    30 * time.Second,
			MaxComponents:  5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ServerURL returns the address clients should use to reach the server.
func (c Config) ServerURL() string {
	if c.Server.BaseURL != "" {
		return strings.TrimRight(c.Server.BaseURL, "/")
	}
	return fmt.Sprintf("http://127.0.0.1:%d", c.Server.Port)
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.sitecraft.app) and the
// Gemini API key falls back to macOS Keychain.
// On Linux the backend is a YAML file at $XDG_CONFIG_HOME/sitecraft/config.yaml
// and the key falls back to $XDG_DATA_HOME/sitecraft/secrets.yaml.
//
// Environment variables (SITECRAFT_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Gemini.APIKey == "" {
		if key, err := kc.Get("sitecraft", "gemini_api_key"); err == nil && key != "" {
			cfg.Gemini.APIKey = key
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Model.Backend {
	case BackendAuto, BackendOllama:
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("missing required config: Gemini API key. "+
				"Set it via environment variable SITECRAFT_GEMINI_API_KEY%s", apiKeyHint())
		}
	default:
		return fmt.Errorf("invalid model.backend %q: want %q or %q", c.Model.Backend, BackendGemini, BackendOllama)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Generation.MaxAttempts < 1 {
		return fmt.Errorf("generation.max_attempts must be at least 1, got %d", c.Generation.MaxAttempts)
	}
	if c.Generation.MaxComponents < 3 {
		return fmt.Errorf("generation.max_components must be at least 3, got %d", c.Generation.MaxComponents)
	}
	return nil
}

// keychainReader reads from macOS Keychain via the security CLI, or from the
// secrets file on other platforms.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
