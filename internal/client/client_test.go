package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/sitecraft/internal/events"
	"github.com/kalambet/sitecraft/internal/site"
)

func TestGetFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/manage-files" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["action"] != "getFiles" || body["userId"] != "u1" {
			t.Errorf("body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"files": map[string]map[string]string{
				"hero": {"hero.html": "<section/>", "hero.css": ".h{}", "hero.js": ""},
			},
			"components": []string{"hero"},
		})
	}))
	defer srv.Close()

	got, err := New(srv.URL, nil).GetFiles(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetFiles: %v", err)
	}
	if got["hero"].Markup != "<section/>" || got["hero"].Style != ".h{}" {
		t.Errorf("got %+v", got)
	}
}

func TestGetFiles_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(addr, nil).GetFiles(context.Background(), "u1")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "userId is required"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).GetFiles(context.Background(), "")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusBadRequest || se.Message != "userId is required" {
		t.Errorf("StatusError = %+v", se)
	}
	if errors.Is(err, ErrUnreachable) {
		t.Error("HTTP error reported as unreachable")
	}
}

func TestAnalyzeAndGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserInput site.GenerationRequest `json:"userInput"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.UserInput.WebsiteType != "restaurant" {
			t.Errorf("userInput = %+v", body.UserInput)
		}
		switch r.URL.Path {
		case "/api/analyze-components":
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{
				"components": []string{"header", "hero", "footer", "about-us"}, "reasoning": "r", "expectedCount": 4,
			}})
		case "/api/generate-website":
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{
				"userId": "u-123", "expectedCount": 4, "components": []string{"header", "hero", "footer", "about-us"},
			}})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	req := site.GenerationRequest{BusinessDescription: "Pizza", WebsiteType: "restaurant"}
	plan, err := c.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.ExpectedCount != 4 || plan.Components[2] != "footer" {
		t.Errorf("plan = %+v", plan)
	}
	gen, err := c.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.UserID != "u-123" || gen.ExpectedCount != 4 {
		t.Errorf("generation = %+v", gen)
	}
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Message != "make the header blue" || req.UserID != "u1" {
			t.Errorf("request = %+v", req)
		}
		target, change := "header", "style"
		json.NewEncoder(w).Encode(ChatReply{
			Content:         "done",
			ComponentTarget: &target,
			ChangeType:      &change,
			UpdatedCode:     map[string]string{"header.html": "<header/>"},
		})
	}))
	defer srv.Close()

	reply, err := New(srv.URL, nil).Chat(context.Background(), ChatRequest{Message: "make the header blue", UserID: "u1"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.ComponentTarget == nil || *reply.ComponentTarget != "header" || reply.UpdatedCode["header.html"] != "<header/>" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("userId") != "u1" {
			t.Errorf("query = %v", r.URL.Query())
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write([]byte("PK-fake"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := New(srv.URL, nil).Download(context.Background(), "u1", &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != 7 || buf.String() != "PK-fake" {
		t.Errorf("n = %d, body = %q", n, buf.String())
	}
}

func TestSubscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/u1/events" {
			t.Errorf("path = %s", r.URL.Path)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		conn.WriteJSON(events.Event{Kind: events.KindComponentSaved, SessionID: "u1", Component: "hero", Saved: 1})
		conn.WriteJSON(events.Event{Kind: events.KindGenerationCompleted, SessionID: "u1", Saved: 1})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := New(srv.URL, nil).Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	var kinds []string
	for ev := range ch {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[1] != events.KindGenerationCompleted {
		t.Errorf("kinds = %v", kinds)
	}
}
