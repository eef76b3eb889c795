package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kalambet/sitecraft/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client      *ollama.Client
	model       string
	temperature float64
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL, model string, temperature float64) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL), model: model, temperature: temperature}
}

func (e *OllamaEngine) Chat(ctx context.Context, messages []Message, jsonSchema *Schema) (string, error) {
	req := ollama.ChatRequest{Model: e.model, Messages: make([]ollama.Message, len(messages))}
	for i, m := range messages {
		req.Messages[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	// engine.Schema marshals to the JSON schema Ollama expects.
	if jsonSchema != nil {
		req.Format = jsonSchema
	}
	if e.temperature > 0 {
		req.Options = &ollama.Options{Temperature: e.temperature}
	}

	resp, err := e.client.Chat(ctx, req)
	if err != nil {
		var se *ollama.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusServiceUnavailable {
			return "", fmt.Errorf("%w: %v", ErrOverloaded, err)
		}
		return "", err
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Message.Content, nil
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) Name() string {
	return "ollama/" + e.model
}

func (e *OllamaEngine) Model() string {
	return e.model
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}
