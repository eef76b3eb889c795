// Package api exposes site generation over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/sitecraft/internal/analyzer"
	"github.com/kalambet/sitecraft/internal/chat"
	"github.com/kalambet/sitecraft/internal/events"
	"github.com/kalambet/sitecraft/internal/files"
	"github.com/kalambet/sitecraft/internal/site"
	"github.com/kalambet/sitecraft/internal/storage"
)

const maxRequestBodySize = 4 << 20 // 4MB

// Planner produces a component plan for a request.
type Planner interface {
	Plan(ctx context.Context, req site.GenerationRequest) analyzer.Analysis
}

// Patcher applies chat edits to existing components.
type Patcher interface {
	Patch(ctx context.Context, req chat.PatchRequest) chat.Reply
}

// Deps holds the collaborators of the HTTP and MCP surfaces.
type Deps struct {
	Store   *storage.Store
	Files   *files.Store
	Planner Planner
	Patcher Patcher
	Bus     *events.Bus  // optional; without it the event stream is not served
	Metrics http.Handler // optional; served on /metrics
}

// NewHandler returns the HTTP surface of the service.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze-components", handleAnalyze(deps))
		r.Post("/generate-website", handleGenerate(deps))
		r.Post("/manage-files", handleManageFiles(deps))
		r.Post("/process-chat-message", handleChat(deps))
		r.Get("/download-website", handleDownload(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Get("/sessions/{id}", handleGetSession(deps))
		if deps.Bus != nil {
			r.Get("/sessions/{id}/events", handleEvents(deps))
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	})
}

func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
