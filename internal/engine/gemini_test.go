package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/kalambet/sitecraft/internal/ollama"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiEngine {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	e, err := NewGeminiEngine(context.Background(), GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-2.5-flash",
		BaseURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("NewGeminiEngine: %v", err)
	}
	return e
}

func TestGeminiEngine_Chat(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"components\":[\"header\"]}"}]}}]}`))
	})

	out, err := e.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "You plan websites."},
		{Role: RoleUser, Content: "bakery"},
	}, &Schema{Type: "object", Properties: map[string]SchemaProperty{"components": {Type: "array", Items: &SchemaProperty{Type: "string"}}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `{"components":["header"]}` {
		t.Errorf("out = %q", out)
	}
	if !strings.HasSuffix(gotPath, "models/gemini-2.5-flash:generateContent") {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if _, ok := gotBody["systemInstruction"]; !ok {
		t.Error("system message should be sent as systemInstruction")
	}
	contents, _ := gotBody["contents"].([]any)
	if len(contents) != 1 {
		t.Errorf("contents = %v, want only the user message", contents)
	}
}

func TestGeminiEngine_Overloaded(t *testing.T) {
	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":503,"message":"The model is overloaded. Please try again later.","status":"UNAVAILABLE"}}`))
	})

	_, err := e.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if !errors.Is(err, ErrOverloaded) {
		t.Fatalf("err = %v, want ErrOverloaded", err)
	}
	if !IsOverloaded(err) {
		t.Error("IsOverloaded should be true")
	}
}

func TestGeminiEngine_OtherAPIError(t *testing.T) {
	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
	})

	_, err := e.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if IsOverloaded(err) {
		t.Errorf("400 should not be classified as overload: %v", err)
	}
}

func TestGeminiEngine_EmptyText(t *testing.T) {
	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":""}]}}]}`))
	})

	if _, err := e.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestIsOverloaded_Messages(t *testing.T) {
	cases := map[string]bool{
		"The model is Overloaded":           true,
		"upstream returned 503":             false,
		"request 5031 failed: bad argument": false,
		"context deadline exceeded":         false,
		"status 429: quota exhausted":       false,
		"wrote 1503 bytes before the reset": false,
	}
	for msg, want := range cases {
		if got := IsOverloaded(errors.New(msg)); got != want {
			t.Errorf("IsOverloaded(%q) = %v, want %v", msg, got, want)
		}
	}
	if IsOverloaded(nil) {
		t.Error("IsOverloaded(nil) = true")
	}
}

func TestIsOverloaded_StatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{genai.APIError{Code: http.StatusServiceUnavailable, Message: "try later"}, true},
		{fmt.Errorf("wrapped: %w", genai.APIError{Status: "UNAVAILABLE"}), true},
		{genai.APIError{Code: http.StatusBadRequest, Message: "prompt mentions 503 overloaded servers"}, false},
		{&ollama.StatusError{Op: "chat", StatusCode: http.StatusServiceUnavailable}, true},
		{fmt.Errorf("chat: %w", &ollama.StatusError{Op: "chat", StatusCode: http.StatusNotFound, Body: "model 503b not found"}), false},
		{fmt.Errorf("call: %w", ErrOverloaded), true},
	}
	for _, tt := range cases {
		if got := IsOverloaded(tt.err); got != tt.want {
			t.Errorf("IsOverloaded(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestSplit(t *testing.T) {
	sys, rest := Split([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleSystem, Content: "b"},
	})
	if sys != "a\n\nb" {
		t.Errorf("system = %q", sys)
	}
	if len(rest) != 1 || rest[0].Content != "u" {
		t.Errorf("rest = %v", rest)
	}
}
