package engine

import (
	"context"
	"fmt"
)

// Backend names accepted by Detect.
const (
	BackendGemini = "gemini"
	BackendOllama = "ollama"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend       string
	GeminiAPIKey  string
	GeminiModel   string
	OllamaBaseURL string
	OllamaModel   string
	Temperature   float32
}

// Detect constructs the configured backend. An empty backend selects Gemini
// when an API key is present and the local Ollama server otherwise.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendOllama
		if cfg.GeminiAPIKey != "" {
			backend = BackendGemini
		}
	}
	switch backend {
	case BackendGemini:
		return NewGeminiEngine(ctx, GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			Temperature: cfg.Temperature,
		})
	case BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.OllamaModel, float64(cfg.Temperature)), nil
	default:
		return nil, fmt.Errorf("unknown model backend %q (want %s or %s)", backend, BackendGemini, BackendOllama)
	}
}
