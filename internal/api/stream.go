package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kalambet/sitecraft/internal/events"
	"github.com/kalambet/sitecraft/internal/files"
	"github.com/kalambet/sitecraft/internal/storage"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The stream is read-only progress data for a session id the caller
	// already knows.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// safeConn serializes writes on a websocket connection.
type safeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *safeConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *safeConn) writeControl(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(messageType, data, time.Now().Add(writeWait))
}

// closeNormal tells the client the stream is over.
func (c *safeConn) closeNormal(reason string) error {
	return c.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}

// statusCheckPeriod is how often an open stream rereads the session status,
// so runs that end without a completion event still close the stream.
var statusCheckPeriod = 5 * time.Second

// snapshot describes the persisted state of a session as an event.
func snapshot(ctx context.Context, deps Deps, id string) (events.Event, error) {
	ev := events.Event{Kind: events.KindSnapshot, SessionID: id, Timestamp: time.Now()}
	sess, found, err := findSession(ctx, deps, id)
	if err != nil {
		return events.Event{}, err
	}
	s, err := deps.Files.ReadAll(id)
	if err != nil {
		return events.Event{}, fmt.Errorf("reading components of %s: %w", id, err)
	}
	ev.Components = s.IDs()
	ev.Saved = len(ev.Components)
	if !found {
		// Nothing generates sessions the store does not know about.
		ev.Done = true
		return ev, nil
	}
	ev.Status = sess.Status
	ev.Expected = sess.ExpectedCount
	ev.Done = sess.Status == storage.StatusCompleted || sess.Status == storage.StatusFailed
	return ev, nil
}

// handleEvents streams a session's progress. The stream opens with a
// snapshot of the persisted state and ends once the session is finished.
// Events published before the connection was opened are not replayed; the
// snapshot covers them.
func handleEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !files.ValidSessionID(id) {
			httpError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "session_id", id, "error", err)
			return
		}
		sc := &safeConn{conn: conn}
		defer conn.Close()

		// Subscribe before reading the snapshot so nothing falls in between.
		evs, cancel := deps.Bus.Subscribe(id)
		defer cancel()

		// sendSnapshot reports whether the stream should stay open. With
		// onlyDone set, snapshots of running sessions are not sent.
		sendSnapshot := func(onlyDone bool) bool {
			snap, err := snapshot(r.Context(), deps, id)
			if err != nil {
				slog.Error("event stream snapshot failed", "session_id", id, "error", err)
				sc.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "loading session"))
				return false
			}
			if onlyDone && !snap.Done {
				return true
			}
			if err := sc.writeJSON(snap); err != nil {
				slog.Debug("websocket write failed", "session_id", id, "error", err)
				return false
			}
			if snap.Done {
				sc.closeNormal(snap.Status)
				return false
			}
			return true
		}
		if !sendSnapshot(false) {
			return
		}

		// Reads only service control frames and detect disconnects.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		check := time.NewTicker(statusCheckPeriod)
		defer check.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-readDone:
				return
			case ev, ok := <-evs:
				if !ok {
					return
				}
				if err := sc.writeJSON(ev); err != nil {
					slog.Debug("websocket write failed", "session_id", id, "error", err)
					return
				}
				if ev.Kind == events.KindGenerationCompleted {
					sc.closeNormal("completed")
					return
				}
			case <-check.C:
				if !sendSnapshot(true) {
					return
				}
			case <-ping.C:
				if err := sc.writeControl(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
