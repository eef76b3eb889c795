package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	// BaseURL overrides the API endpoint; empty uses the public endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiEngine generates text with the Gemini API.
type GeminiEngine struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiEngine creates the API client once; it is reused for every call.
func NewGeminiEngine(ctx context.Context, cfg GeminiConfig) (*GeminiEngine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is not configured (set SITECRAFT_GEMINI_API_KEY)")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiEngine{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (e *GeminiEngine) Chat(ctx context.Context, messages []Message, jsonSchema *Schema) (string, error) {
	system, rest := Split(messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	config := &genai.GenerateContentConfig{}
	if e.temperature > 0 {
		t := e.temperature
		config.Temperature = &t
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if jsonSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseJsonSchema = jsonSchema
	}

	result, err := e.client.Models.GenerateContent(ctx, e.model, contents, config)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if result == nil {
		return "", ErrEmptyResponse
	}
	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// IsRunning reports whether a client is configured. It does not spend a
// request against the quota.
func (e *GeminiEngine) IsRunning(_ context.Context) bool {
	return e.client != nil
}

func (e *GeminiEngine) Name() string {
	return "gemini/" + e.model
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusServiceUnavailable || apiErr.Status == "UNAVAILABLE" {
			return fmt.Errorf("gemini generate: %w: %s", ErrOverloaded, apiErr.Message)
		}
		return fmt.Errorf("gemini generate: %w", apiErr)
	}
	return fmt.Errorf("gemini generate: %w", err)
}
