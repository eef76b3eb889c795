package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/kalambet/sitecraft/internal/events"
)

// Subscribe opens the session's event stream. The returned channel is
// closed when ctx is cancelled or the server ends the stream.
func (c *Client) Subscribe(ctx context.Context, sessionID string) (<-chan events.Event, error) {
	wsURL, err := c.websocketURL("/api/sessions/" + url.PathEscape(sessionID) + "/events")
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if unreachable(err) {
			return nil, fmt.Errorf("%w at %s: %w", ErrUnreachable, c.baseURL, err)
		}
		return nil, fmt.Errorf("opening event stream: %w", err)
	}

	out := make(chan events.Event, 16)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	go func() {
		defer close(out)
		defer stop()
		defer conn.Close()
		for {
			var ev events.Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Debug("event stream ended", "session_id", sessionID, "error", err)
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) websocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
