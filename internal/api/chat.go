package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kalambet/sitecraft/internal/chat"
	"github.com/kalambet/sitecraft/internal/files"
	"github.com/kalambet/sitecraft/internal/site"
	"github.com/kalambet/sitecraft/internal/storage"
)

type chatBody struct {
	Message             string                       `json:"message"`
	CompletedComponents []string                     `json:"completedComponents"`
	CurrentFiles        map[string]map[string]string `json:"currentFiles"`
	UserInput           *site.GenerationRequest      `json:"userInput"`
	UserID              string                       `json:"userId"`
}

func (b chatBody) patchRequest(deps Deps) chat.PatchRequest {
	req := chat.PatchRequest{
		Message: strings.TrimSpace(b.Message),
		Current: make(site.Site, len(b.CurrentFiles)),
	}
	for id, fs := range b.CurrentFiles {
		id = site.NormalizeID(id)
		if a := site.ArtifactFromFiles(id, fs); a.Markup != "" {
			req.Current[id] = a
		}
	}
	for _, id := range b.CompletedComponents {
		req.Known = append(req.Known, site.NormalizeID(id))
	}
	if b.UserInput != nil {
		req.Request = *b.UserInput
	}
	if b.UserID != "" && files.ValidSessionID(b.UserID) && deps.Files.Exists(b.UserID) {
		req.SessionID = b.UserID
	}
	return req
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body chatBody
		if err := decodeBody(w, r, &body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(body.Message) == "" {
			httpError(w, http.StatusBadRequest, "message is required")
			return
		}

		req := body.patchRequest(deps)
		reply := deps.Patcher.Patch(r.Context(), req)
		recordEdit(r.Context(), deps, req.SessionID, reply)
		writeJSON(w, http.StatusOK, reply)
	}
}

// recordEdit appends a persisted chat edit to the session history.
func recordEdit(ctx context.Context, deps Deps, sessionID string, reply chat.Reply) {
	if !reply.Saved || sessionID == "" || reply.ComponentTarget == nil {
		return
	}
	err := deps.Store.RecordComponentEvent(context.WithoutCancel(ctx), storage.ComponentEvent{
		SessionID:   sessionID,
		ComponentID: *reply.ComponentTarget,
		Source:      chat.SourceChat,
	})
	if err != nil {
		slog.Warn("recording chat edit", "session_id", sessionID, "error", err)
	}
}
