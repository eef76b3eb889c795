package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/sitecraft/internal/analyzer"
	"github.com/kalambet/sitecraft/internal/files"
	"github.com/kalambet/sitecraft/internal/site"
	"github.com/kalambet/sitecraft/internal/storage"
	"github.com/kalambet/sitecraft/internal/worker"
)

// requestBody accepts the request either wrapped as {"userInput": {...}} or bare.
type requestBody struct {
	UserInput *site.GenerationRequest `json:"userInput"`
	site.GenerationRequest
}

func (b requestBody) request() site.GenerationRequest {
	if b.UserInput != nil {
		return *b.UserInput
	}
	return b.GenerationRequest
}

type generation struct {
	UserID        string   `json:"userId"`
	ExpectedCount int      `json:"expectedCount"`
	Components    []string `json:"components"`
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body requestBody
		if err := decodeBody(w, r, &body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		req := body.request()
		if err := req.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}

		plan := deps.Planner.Plan(r.Context(), req)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": plan})
	}
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body requestBody
		if err := decodeBody(w, r, &body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		req := body.request()
		if err := req.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}

		gen, err := startGeneration(r.Context(), deps, req)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to start generation: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": gen})
	}
}

// startGeneration plans req, records a session with its own artifact
// directory and queues the generation job. Components appear in the store
// as the worker produces them.
func startGeneration(ctx context.Context, deps Deps, req site.GenerationRequest) (generation, error) {
	plan := deps.Planner.Plan(ctx, req)

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return generation{}, fmt.Errorf("encoding request: %w", err)
	}
	planJSON, err := json.Marshal(plan.Components)
	if err != nil {
		return generation{}, fmt.Errorf("encoding plan: %w", err)
	}

	id := uuid.New().String()
	if err := deps.Files.Create(id); err != nil {
		return generation{}, err
	}
	err = deps.Store.CreateSession(ctx, storage.Session{
		ID:            id,
		RequestJSON:   string(reqJSON),
		PlanJSON:      string(planJSON),
		Reasoning:     plan.Reasoning,
		PlanSource:    plan.Source,
		ExpectedCount: plan.ExpectedCount,
	})
	if err != nil {
		return generation{}, err
	}
	jobID, err := worker.Enqueue(ctx, deps.Store, id)
	if err != nil {
		return generation{}, fmt.Errorf("enqueueing generation: %w", err)
	}

	slog.Info("generation queued", "session_id", id, "job_id", jobID, "components", plan.Components)
	return generation{UserID: id, ExpectedCount: plan.ExpectedCount, Components: plan.Components}, nil
}

type manageFilesBody struct {
	Action        string            `json:"action"`
	UserID        string            `json:"userId"`
	ComponentName string            `json:"componentName"`
	Files         map[string]string `json:"files"`
}

func handleManageFiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noCache(w)

		var body manageFilesBody
		if err := decodeBody(w, r, &body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if body.UserID == "" {
			httpError(w, http.StatusBadRequest, "userId is required")
			return
		}

		switch body.Action {
		case "createFolder":
			if err := deps.Files.Create(body.UserID); err != nil {
				fileError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "folder created"})

		case "saveComponent":
			if body.ComponentName == "" || len(body.Files) == 0 {
				httpError(w, http.StatusBadRequest, "componentName and files are required")
				return
			}
			id := site.NormalizeID(body.ComponentName)
			a := site.ArtifactFromFiles(id, body.Files)
			if a.Markup == "" {
				httpError(w, http.StatusBadRequest, "component %s has no markup", id)
				return
			}
			if err := deps.Files.Write(body.UserID, id, a); err != nil {
				fileError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "component " + id + " saved"})

		case "getFiles":
			s, err := deps.Files.ReadAll(body.UserID)
			if err != nil {
				fileError(w, err)
				return
			}
			out := make(map[string]map[string]string, len(s))
			for id, a := range s {
				out[id] = a.Files(id)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success":    true,
				"files":      out,
				"components": s.IDs(),
			})

		default:
			httpError(w, http.StatusBadRequest, "unknown action %q", body.Action)
		}
	}
}

func fileError(w http.ResponseWriter, err error) {
	if errors.Is(err, files.ErrInvalidID) {
		httpError(w, http.StatusBadRequest, "%v", err)
		return
	}
	httpError(w, http.StatusInternalServerError, "file operation failed: %v", err)
}

func handleDownload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noCache(w)
		id := r.URL.Query().Get("userId")
		if id == "" {
			httpError(w, http.StatusBadRequest, "userId is required")
			return
		}
		if !files.ValidSessionID(id) {
			httpError(w, http.StatusBadRequest, "invalid userId")
			return
		}

		sess, found, err := findSession(r.Context(), deps, id)
		if err != nil {
			slog.Error("download: loading session", "session_id", id, "error", err)
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		title := "Website"
		if found {
			var req site.GenerationRequest
			if json.Unmarshal([]byte(sess.RequestJSON), &req) == nil {
				title = req.BrandName()
			}
		}

		var buf bytes.Buffer
		n, err := deps.Files.Archive(&buf, id, title)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "building archive: %v", err)
			return
		}
		if n == 0 {
			httpError(w, http.StatusNotFound, "no components found for %s", id)
			return
		}

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", files.ArchiveName(id)))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

type componentEvent struct {
	Component string    `json:"component"`
	Source    string    `json:"source"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	SaveError string    `json:"saveError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type sessionView struct {
	ID            string                 `json:"id"`
	Status        string                 `json:"status"`
	Components    []string               `json:"components"`
	Reasoning     string                 `json:"reasoning"`
	PlanSource    string                 `json:"planSource"`
	ExpectedCount int                    `json:"expectedCount"`
	Saved         int                    `json:"saved"`
	Summary       json.RawMessage        `json:"summary,omitempty"`
	Events        []componentEvent       `json:"events"`
	Request       site.GenerationRequest `json:"request"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// findSession looks up the stored record of a session. Sessions that only
// exist on disk report found == false with a nil error.
func findSession(ctx context.Context, deps Deps, id string) (sess storage.Session, found bool, err error) {
	sess, err = deps.Store.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Session{}, false, nil
	}
	if err != nil {
		return storage.Session{}, false, fmt.Errorf("loading session %s: %w", id, err)
	}
	return sess, true, nil
}

func loadSession(ctx context.Context, deps Deps, id string) (sessionView, error) {
	sess, err := deps.Store.GetSession(ctx, id)
	if err != nil {
		return sessionView{}, err
	}
	view := sessionView{
		ID:            sess.ID,
		Status:        sess.Status,
		Reasoning:     sess.Reasoning,
		PlanSource:    sess.PlanSource,
		ExpectedCount: sess.ExpectedCount,
		Events:        []componentEvent{},
		CreatedAt:     sess.CreatedAt,
		UpdatedAt:     sess.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(sess.PlanJSON), &view.Components); err != nil {
		return sessionView{}, fmt.Errorf("decoding plan: %w", err)
	}
	if err := json.Unmarshal([]byte(sess.RequestJSON), &view.Request); err != nil {
		return sessionView{}, fmt.Errorf("decoding request: %w", err)
	}
	if sess.SummaryJSON != "" {
		view.Summary = json.RawMessage(sess.SummaryJSON)
	}
	if view.Saved, err = deps.Files.Count(id); err != nil {
		return sessionView{}, err
	}

	evs, err := deps.Store.ListComponentEvents(ctx, id)
	if err != nil {
		return sessionView{}, err
	}
	for _, ev := range evs {
		view.Events = append(view.Events, componentEvent{
			Component: ev.ComponentID,
			Source:    ev.Source,
			Attempts:  ev.Attempts,
			Error:     ev.Error,
			SaveError: ev.SaveError,
			CreatedAt: ev.CreatedAt,
		})
	}
	return view, nil
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		view, err := loadSession(r.Context(), deps, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "session %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to load session: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": view})
	}
}

type sessionListItem struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	ExpectedCount int       `json:"expectedCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		sessions, err := deps.Store.ListSessions(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list sessions: %v", err)
			return
		}
		out := make([]sessionListItem, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, sessionListItem{ID: s.ID, Status: s.Status, ExpectedCount: s.ExpectedCount, CreatedAt: s.CreatedAt})
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

var _ Planner = (*analyzer.Analyzer)(nil)
