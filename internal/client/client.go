// Package client talks to a running sitecraft server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/sitecraft/internal/site"
)

// ErrUnreachable is returned when no server answers at the base URL
// (connection refused, DNS failure). It wraps the transport error.
var ErrUnreachable = errors.New("server unreachable")

// StatusError is a non-2xx response from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the sitecraft API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. A nil httpClient selects one with a 30s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Plan is the response of the analyze endpoint.
type Plan struct {
	Components    []string `json:"components"`
	Reasoning     string   `json:"reasoning"`
	ExpectedCount int      `json:"expectedCount"`
	Source        string   `json:"source,omitempty"`
}

// Generation is the response of the generate endpoint.
type Generation struct {
	UserID        string   `json:"userId"`
	ExpectedCount int      `json:"expectedCount"`
	Components    []string `json:"components"`
}

// ChatRequest is an edit instruction for one component.
type ChatRequest struct {
	Message             string                       `json:"message"`
	CompletedComponents []string                     `json:"completedComponents,omitempty"`
	CurrentFiles        map[string]map[string]string `json:"currentFiles,omitempty"`
	UserInput           *site.GenerationRequest      `json:"userInput,omitempty"`
	UserID              string                       `json:"userId,omitempty"`
}

// ChatReply is the server's answer to a ChatRequest.
type ChatReply struct {
	Content         string            `json:"content"`
	ComponentTarget *string           `json:"componentTarget"`
	ChangeType      *string           `json:"changeType"`
	UpdatedCode     map[string]string `json:"updatedCode"`
}

// ComponentEvent is one entry of a session's generation history.
type ComponentEvent struct {
	Component string    `json:"component"`
	Source    string    `json:"source"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	SaveError string    `json:"saveError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the server-side record of a generation run.
type Session struct {
	ID            string                 `json:"id"`
	Status        string                 `json:"status"`
	Components    []string               `json:"components"`
	Reasoning     string                 `json:"reasoning"`
	PlanSource    string                 `json:"planSource"`
	ExpectedCount int                    `json:"expectedCount"`
	Saved         int                    `json:"saved"`
	Summary       json.RawMessage        `json:"summary,omitempty"`
	Events        []ComponentEvent       `json:"events"`
	Request       site.GenerationRequest `json:"request"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

type envelope struct {
	Success    bool                         `json:"success"`
	Error      string                       `json:"error,omitempty"`
	Message    string                       `json:"message,omitempty"`
	Data       json.RawMessage              `json:"data,omitempty"`
	Files      map[string]map[string]string `json:"files,omitempty"`
	Components []string                     `json:"components,omitempty"`
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]any
	return c.call(ctx, http.MethodGet, "/health", nil, &out)
}

// Analyze asks the server for a component plan.
func (c *Client) Analyze(ctx context.Context, req site.GenerationRequest) (Plan, error) {
	var env envelope
	if err := c.call(ctx, http.MethodPost, "/api/analyze-components", map[string]any{"userInput": req}, &env); err != nil {
		return Plan{}, err
	}
	var p Plan
	return p, unmarshalData(env, &p)
}

// Generate starts an asynchronous generation run.
func (c *Client) Generate(ctx context.Context, req site.GenerationRequest) (Generation, error) {
	var env envelope
	if err := c.call(ctx, http.MethodPost, "/api/generate-website", map[string]any{"userInput": req}, &env); err != nil {
		return Generation{}, err
	}
	var g Generation
	return g, unmarshalData(env, &g)
}

// CreateFolder pre-creates the session directory.
func (c *Client) CreateFolder(ctx context.Context, userID string) error {
	var env envelope
	return c.call(ctx, http.MethodPost, "/api/manage-files", map[string]any{
		"action": "createFolder",
		"userId": userID,
	}, &env)
}

// SaveComponent stores an artifact, replacing any previous version.
func (c *Client) SaveComponent(ctx context.Context, userID, id string, a site.Artifact) error {
	files := a.Files(id)
	if a.Description != "" {
		files["description"] = a.Description
	}
	var env envelope
	return c.call(ctx, http.MethodPost, "/api/manage-files", map[string]any{
		"action":        "saveComponent",
		"userId":        userID,
		"componentName": id,
		"files":         files,
	}, &env)
}

// GetFiles returns every component persisted for the session so far.
func (c *Client) GetFiles(ctx context.Context, userID string) (site.Site, error) {
	var env envelope
	err := c.call(ctx, http.MethodPost, "/api/manage-files", map[string]any{
		"action": "getFiles",
		"userId": userID,
	}, &env)
	if err != nil {
		return nil, err
	}
	out := make(site.Site, len(env.Files))
	for id, files := range env.Files {
		out[id] = site.ArtifactFromFiles(id, files)
	}
	return out, nil
}

// Chat sends an edit instruction.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	var reply ChatReply
	err := c.call(ctx, http.MethodPost, "/api/process-chat-message", req, &reply)
	return reply, err
}

// Session returns the server-side record of a generation run.
func (c *Client) Session(ctx context.Context, id string) (Session, error) {
	var env envelope
	if err := c.call(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &env); err != nil {
		return Session{}, err
	}
	var s Session
	return s, unmarshalData(env, &s)
}

// SessionSummary is one entry of the session list.
type SessionSummary struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	ExpectedCount int       `json:"expectedCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Sessions lists the most recent sessions first.
func (c *Client) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	var env envelope
	if err := c.call(ctx, http.MethodGet, "/api/sessions?limit="+strconv.Itoa(limit), nil, &env); err != nil {
		return nil, err
	}
	var out []SessionSummary
	return out, unmarshalData(env, &out)
}

// Download streams the session archive into w and returns the bytes written.
func (c *Client) Download(ctx context.Context, userID string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/download-website?userId="+url.QueryEscape(userID), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, statusError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if unreachable(err) {
			return nil, fmt.Errorf("%w at %s: %w", ErrUnreachable, c.baseURL, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	if env, ok := out.(*envelope); ok && !env.Success {
		return fmt.Errorf("%s: %s", path, env.Error)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &StatusError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Error != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

func unmarshalData(env envelope, v any) error {
	if len(env.Data) == 0 {
		return errors.New("response has no data")
	}
	return json.Unmarshal(env.Data, v)
}

func unreachable(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
