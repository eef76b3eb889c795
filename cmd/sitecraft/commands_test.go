package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/sitecraft/internal/client"
	"github.com/kalambet/sitecraft/internal/events"
	"github.com/kalambet/sitecraft/internal/poller"
	"github.com/kalambet/sitecraft/internal/site"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type testServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	files    map[string]map[string]string
	// stream serves the session event websocket; nil answers 404.
	stream func(conn *websocket.Conn)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{files: map[string]map[string]string{}}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}
		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{Method: r.Method, Path: r.URL.RequestURI(), Body: body})
		files, stream := ts.files, ts.stream
		ts.mu.Unlock()

		if strings.HasSuffix(r.URL.Path, "/events") && stream != nil {
			upgrader := websocket.Upgrader{}
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			stream(conn)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "POST /api/analyze-components":
			w.Write([]byte(`{"success":true,"data":{"components":["header","hero","footer","about-us"],"reasoning":"Keyword-based selection for a restaurant website","expectedCount":4,"source":"fallback"}}`))
		case "POST /api/generate-website":
			w.Write([]byte(`{"success":true,"data":{"userId":"sess-1","expectedCount":2,"components":["header","footer"]}}`))
		case "POST /api/manage-files":
			json.NewEncoder(w).Encode(map[string]any{"success": true, "files": files})
		case "POST /api/process-chat-message":
			w.Write([]byte(`{"content":"Updated the header styling.","componentTarget":"header","changeType":"style","updatedCode":{"header.css":"header{color:blue}"}}`))
		case "GET /api/sessions":
			w.Write([]byte(`{"success":true,"data":[{"id":"sess-1","status":"completed","expectedCount":2,"createdAt":"2026-01-02T03:04:05Z"}]}`))
		case "GET /api/sessions/sess-1":
			w.Write([]byte(`{"success":true,"data":{"id":"sess-1","status":"running","expectedCount":2}}`))
		case "GET /api/download-website":
			if r.URL.Query().Get("userId") != "sess-1" {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"success":false,"error":"no components found"}`))
				return
			}
			w.Header().Set("Content-Type", "application/zip")
			zw := zip.NewWriter(w)
			f, _ := zw.Create("index.html")
			f.Write([]byte("<html></html>"))
			zw.Close()
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"success":false,"error":"not found"}`))
		}
	}))
	t.Cleanup(ts.server.Close)

	prev := newClient
	newClient = func() (*client.Client, error) {
		return client.New(ts.server.URL, ts.server.Client()), nil
	}
	t.Cleanup(func() { newClient = prev })
	return ts
}

func (ts *testServer) setFiles(files map[string]map[string]string) {
	ts.mu.Lock()
	ts.files = files
	ts.mu.Unlock()
}

func (ts *testServer) setStream(stream func(conn *websocket.Conn)) {
	ts.mu.Lock()
	ts.stream = stream
	ts.mu.Unlock()
}

func (ts *testServer) count(path string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for _, r := range ts.requests {
		if strings.HasPrefix(r.Path, path) {
			n++
		}
	}
	return n
}

func (ts *testServer) lastRequest(path string) (recordedRequest, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for i := len(ts.requests) - 1; i >= 0; i-- {
		if strings.HasPrefix(ts.requests[i].Path, path) {
			return ts.requests[i], true
		}
	}
	return recordedRequest{}, false
}

// runCommand executes the root command with fresh flag values and returns
// what it printed to stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func fastPolling(t *testing.T) {
	t.Helper()
	prev := pollConfig
	pollConfig = poller.Config{
		BaseInterval: 5 * time.Millisecond,
		Increment:    time.Millisecond,
		MaxInterval:  10 * time.Millisecond,
		MaxAttempts:  20,
		MaxFailures:  3,
		MinPolls:     10,
		MinFraction:  0.6,
		ReadTimeout:  time.Second,
	}
	t.Cleanup(func() { pollConfig = prev })
}

func TestAnalyzePrintsPlan(t *testing.T) {
	ts := newTestServer(t)

	out, err := runCommand(t, "analyze", "--description", "Family pizza place", "--type", "restaurant", "--features", "about, contact")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, want := range []string{"1. header", "4. about-us", "Keyword-based selection"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	req, ok := ts.lastRequest("/api/analyze-components")
	if !ok {
		t.Fatal("analyze request not sent")
	}
	input, _ := req.Body["userInput"].(map[string]any)
	if input["websiteType"] != "restaurant" {
		t.Errorf("websiteType = %v", input["websiteType"])
	}
	feats, _ := input["selectedFeatures"].([]any)
	if len(feats) != 2 || feats[0] != "about" || feats[1] != "contact" {
		t.Errorf("selectedFeatures = %v", feats)
	}
}

func TestAnalyzeRejectsEmptyRequest(t *testing.T) {
	newTestServer(t)
	if _, err := runCommand(t, "analyze"); err == nil {
		t.Fatal("expected error for empty request")
	}
}

func TestGenerateWithoutWait(t *testing.T) {
	newTestServer(t)
	out, err := runCommand(t, "generate", "--type", "portfolio")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.TrimSpace(out) != "sess-1" {
		t.Errorf("output = %q, want session id", out)
	}
}

func TestGenerateWaitPollsUntilReady(t *testing.T) {
	ts := newTestServer(t)
	fastPolling(t)
	ts.setFiles(map[string]map[string]string{
		"header": {"header.html": "<header id=\"header\"></header>", "header.css": "", "header.js": ""},
		"footer": {"footer.html": "<footer id=\"footer\"></footer>", "footer.css": "", "footer.js": ""},
	})

	out, err := runCommand(t, "generate", "--type", "portfolio", "--wait")
	if err != nil {
		t.Fatalf("generate --wait: %v", err)
	}
	if !strings.Contains(out, "sess-1") {
		t.Errorf("output missing session id:\n%s", out)
	}
	if !strings.Contains(out, "header") || !strings.Contains(out, "footer") {
		t.Errorf("output missing sections:\n%s", out)
	}
}

func TestWatchUsesSessionExpectedCount(t *testing.T) {
	ts := newTestServer(t)
	fastPolling(t)
	ts.setFiles(map[string]map[string]string{
		"header": {"header.html": "<header></header>"},
		"footer": {"footer.html": "<footer></footer>"},
	})

	out, err := runCommand(t, "watch", "sess-1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if _, ok := ts.lastRequest("/api/sessions/sess-1"); !ok {
		t.Error("expected session lookup")
	}
	if !strings.Contains(out, "footer") {
		t.Errorf("output missing footer:\n%s", out)
	}
}

func sendEvents(conn *websocket.Conn, evs ...events.Event) {
	for _, ev := range evs {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

func closeStream(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func TestWatchStreamFinishedSession(t *testing.T) {
	ts := newTestServer(t)
	fastPolling(t)
	ts.setFiles(map[string]map[string]string{
		"header": {"header.html": "<header></header>"},
		"footer": {"footer.html": "<footer></footer>"},
	})
	ts.setStream(func(conn *websocket.Conn) {
		sendEvents(conn, events.Event{
			Kind: events.KindSnapshot, SessionID: "sess-1", Status: "completed",
			Components: []string{"header", "footer"}, Saved: 2, Expected: 2, Done: true,
		})
		closeStream(conn)
	})

	out, err := runCommand(t, "watch", "sess-1", "--expected", "2", "--stream")
	if err != nil {
		t.Fatalf("watch --stream: %v", err)
	}
	if !strings.Contains(out, "footer") {
		t.Errorf("output missing footer:\n%s", out)
	}
	if n := ts.count("/api/manage-files"); n != 1 {
		t.Errorf("manage-files requests = %d, want 1 (no polling)", n)
	}
}

func TestWatchStreamCompletesMidStream(t *testing.T) {
	ts := newTestServer(t)
	fastPolling(t)
	ts.setFiles(map[string]map[string]string{
		"header": {"header.html": "<header></header>"},
		"footer": {"footer.html": "<footer></footer>"},
	})
	ts.setStream(func(conn *websocket.Conn) {
		sendEvents(conn,
			events.Event{Kind: events.KindSnapshot, SessionID: "sess-1", Status: "generating", Expected: 2},
			events.Event{Kind: events.KindComponentSaved, SessionID: "sess-1", Component: "header", Source: "model", Saved: 1, Expected: 2},
			events.Event{Kind: events.KindComponentSaved, SessionID: "sess-1", Component: "footer", Source: "model", Saved: 2, Expected: 2},
			events.Event{Kind: events.KindGenerationCompleted, SessionID: "sess-1", Saved: 2, Expected: 2},
		)
		closeStream(conn)
	})

	out, err := runCommand(t, "watch", "sess-1", "--expected", "2", "--stream")
	if err != nil {
		t.Fatalf("watch --stream: %v", err)
	}
	if !strings.Contains(out, "header") || !strings.Contains(out, "footer") {
		t.Errorf("output missing sections:\n%s", out)
	}
	if n := ts.count("/api/manage-files"); n != 1 {
		t.Errorf("manage-files requests = %d, want 1 (no polling)", n)
	}
}

func TestWatchStreamIdleFallsBackToPolling(t *testing.T) {
	ts := newTestServer(t)
	fastPolling(t)
	prev := streamIdle
	streamIdle = 50 * time.Millisecond
	t.Cleanup(func() { streamIdle = prev })

	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })
	ts.setFiles(map[string]map[string]string{
		"header": {"header.html": "<header></header>"},
		"footer": {"footer.html": "<footer></footer>"},
	})
	ts.setStream(func(conn *websocket.Conn) {
		sendEvents(conn, events.Event{Kind: events.KindSnapshot, SessionID: "sess-1", Status: "generating", Expected: 2})
		<-hang
	})

	done := make(chan struct{})
	var (
		out string
		err error
	)
	go func() {
		defer close(done)
		out, err = runCommand(t, "watch", "sess-1", "--expected", "2", "--stream")
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch --stream did not fall back from an idle stream")
	}
	if err != nil {
		t.Fatalf("watch --stream: %v", err)
	}
	if !strings.Contains(out, "footer") {
		t.Errorf("output missing footer:\n%s", out)
	}
}

func TestWatchStreamUnavailableFallsBackToPolling(t *testing.T) {
	ts := newTestServer(t)
	fastPolling(t)
	ts.setFiles(map[string]map[string]string{
		"header": {"header.html": "<header></header>"},
		"footer": {"footer.html": "<footer></footer>"},
	})

	out, err := runCommand(t, "watch", "sess-1", "--expected", "2", "--stream")
	if err != nil {
		t.Fatalf("watch --stream: %v", err)
	}
	if !strings.Contains(out, "footer") {
		t.Errorf("output missing footer:\n%s", out)
	}
	if _, ok := ts.lastRequest("/api/sessions/sess-1/events"); !ok {
		t.Error("expected an attempt to open the event stream")
	}
}

func TestWatchUnknownSessionNeedsExpected(t *testing.T) {
	newTestServer(t)
	fastPolling(t)
	if _, err := runCommand(t, "watch", "missing"); err == nil || !strings.Contains(err.Error(), "--expected") {
		t.Fatalf("err = %v, want hint about --expected", err)
	}
}

func TestFilesJSON(t *testing.T) {
	ts := newTestServer(t)
	ts.setFiles(map[string]map[string]string{
		"hero": {"hero.html": "<section id=\"hero\"></section>", "hero.css": ".hero{}", "hero.js": ""},
	})

	out, err := runCommand(t, "files", "sess-1", "--json")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if got["hero.css"] != ".hero{}" {
		t.Errorf("hero.css = %q", got["hero.css"])
	}
}

func TestSessionsList(t *testing.T) {
	ts := newTestServer(t)
	out, err := runCommand(t, "sessions", "--limit", "5")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, "sess-1") || !strings.Contains(out, "completed") {
		t.Errorf("output = %q", out)
	}
	if req, _ := ts.lastRequest("/api/sessions"); req.Path != "/api/sessions?limit=5" {
		t.Errorf("path = %q", req.Path)
	}
}

func TestChatSendsMessage(t *testing.T) {
	ts := newTestServer(t)
	out, err := runCommand(t, "chat", "sess-1", "make", "the", "header", "blue", "--show-code")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(out, "Updated the header styling.") || !strings.Contains(out, "--- header.css ---") {
		t.Errorf("output = %q", out)
	}
	req, _ := ts.lastRequest("/api/process-chat-message")
	if req.Body["message"] != "make the header blue" || req.Body["userId"] != "sess-1" {
		t.Errorf("body = %v", req.Body)
	}
}

func TestDownloadWritesArchive(t *testing.T) {
	newTestServer(t)
	path := filepath.Join(t.TempDir(), "site.zip")

	if _, err := runCommand(t, "download", "sess-1", "-o", path); err != nil {
		t.Fatalf("download: %v", err)
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 || zr.File[0].Name != "index.html" {
		t.Errorf("archive entries = %v", zr.File)
	}
}

func TestDownloadMissingSessionRemovesFile(t *testing.T) {
	newTestServer(t)
	path := filepath.Join(t.TempDir(), "none.zip")

	_, err := runCommand(t, "download", "other", "-o", path)
	if err == nil || !strings.Contains(err.Error(), "no sections yet") {
		t.Fatalf("err = %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Errorf("partial archive left behind: %v", statErr)
	}
}

func TestReadRequestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "request.yaml")
	content := `businessDescription: Yoga studio in Lisbon
websiteType: fitness
selectedFeatures: [gallery, pricing]
colorScheme: dark
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	req, err := readRequestFile(path)
	if err != nil {
		t.Fatalf("readRequestFile: %v", err)
	}
	if req.WebsiteType != "fitness" || req.ColorScheme != site.SchemeDark {
		t.Errorf("req = %+v", req)
	}
	if len(req.SelectedFeatures) != 2 || req.SelectedFeatures[1] != "pricing" {
		t.Errorf("features = %v", req.SelectedFeatures)
	}

	if _, err := readRequestFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFlagsOverrideRequestFile(t *testing.T) {
	ts := newTestServer(t)
	path := filepath.Join(t.TempDir(), "request.yaml")
	os.WriteFile(path, []byte("websiteType: fitness\ncolorScheme: dark\n"), 0o644)

	if _, err := runCommand(t, "analyze", "--from", path, "--scheme", "light"); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	req, _ := ts.lastRequest("/api/analyze-components")
	input, _ := req.Body["userInput"].(map[string]any)
	if input["websiteType"] != "fitness" || input["colorScheme"] != "light" {
		t.Errorf("userInput = %v", input)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"gallery", []string{"gallery"}},
		{"about, contact ,,pricing", []string{"about", "contact", "pricing"}},
	}
	for _, tt := range tests {
		got := splitList(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestColorize(t *testing.T) {
	prev := noColor
	t.Cleanup(func() { noColor = prev })

	noColor = true
	if got := colorize(colorRed, "x"); got != "x" {
		t.Errorf("colorize with noColor = %q", got)
	}
	noColor = false
	if got := colorize(colorRed, "x"); got != colorRed+"x"+colorReset {
		t.Errorf("colorize = %q", got)
	}
}

func TestProgressLine(t *testing.T) {
	u := poller.Update{
		State:      poller.StatePolling,
		Components: site.Site{"header": {}, "hero": {}},
		Expected:   5,
		Attempts:   4,
		Failures:   1,
	}
	if got, want := progressLine(u), "polling 2/5 (attempt 4), 1 failed reads"; got != want {
		t.Errorf("progressLine = %q, want %q", got, want)
	}
}

func TestEventLine(t *testing.T) {
	tests := []struct {
		ev   events.Event
		want string
	}{
		{events.Event{Kind: events.KindGenerationStarted, Expected: 4}, "generation started (4 components)"},
		{events.Event{Kind: events.KindComponentSaved, Component: "hero", Source: "fallback", Saved: 2, Expected: 4, Error: "overloaded"}, "hero saved from fallback (2/4): overloaded"},
		{events.Event{Kind: events.KindComponentUpdated, Component: "header", Source: "chat"}, "header updated from chat"},
		{events.Event{Kind: events.KindGenerationCompleted, Saved: 4, Expected: 4}, "generation completed (4/4 saved)"},
		{events.Event{Kind: events.KindSnapshot, Status: "generating", Saved: 1, Expected: 3}, "session generating, 1/3 sections saved"},
		{events.Event{Kind: events.KindSnapshot, Saved: 2, Done: true}, "2 sections saved"},
		{events.Event{Kind: "other"}, "other"},
	}
	for _, tt := range tests {
		if got := eventLine(tt.ev); got != tt.want {
			t.Errorf("eventLine(%s) = %q, want %q", tt.ev.Kind, got, tt.want)
		}
	}
}
