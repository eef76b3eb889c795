package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/kalambet/sitecraft/internal/ollama"
)

// Engine abstracts the text-generation backend (Gemini or a local Ollama
// server). The analyzer, the component generator and the chat patcher all
// take an Engine, so tests substitute a fake and the process bootstrap owns
// the real client's lifecycle.
type Engine interface {
	// Chat sends messages to the configured model and returns the reply text.
	// When jsonSchema is non-nil, structured JSON output is requested.
	Chat(ctx context.Context, messages []Message, jsonSchema *Schema) (string, error)

	// IsRunning reports whether the backend is reachable and configured.
	IsRunning(ctx context.Context) bool

	// Name identifies the backend and model, e.g. "gemini/gemini-2.5-flash".
	Name() string
}

// ModelManager is implemented by backends that can list and download models.
type ModelManager interface {
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
	Model() string
}

var (
	// ErrOverloaded marks a call rejected because the service is over capacity.
	// Callers wait longer before retrying these.
	ErrOverloaded = errors.New("model service overloaded")

	// ErrEmptyResponse is returned when the backend replies with no text.
	ErrEmptyResponse = errors.New("empty response from model")
)

// IsOverloaded reports whether err signals an overloaded backend: the
// ErrOverloaded sentinel, a provider error carrying status 503 or
// UNAVAILABLE, or an uncoded error whose message says "overloaded".
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOverloaded) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusServiceUnavailable || apiErr.Status == "UNAVAILABLE"
	}
	var se *ollama.StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusServiceUnavailable
	}
	return strings.Contains(strings.ToLower(err.Error()), "overloaded")
}
