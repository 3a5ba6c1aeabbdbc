package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// WebSocketTransport dials the assistant backend over a WebSocket.
type WebSocketTransport struct {
	// ReadLimit caps the size of one inbound frame. Zero keeps the library
	// default.
	ReadLimit  int64
	HTTPHeader http.Header
	HTTPClient *http.Client
}

// Dial opens a WebSocket connection to url.
func (t *WebSocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	ws, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: t.HTTPHeader,
		HTTPClient: t.HTTPClient,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if t.ReadLimit > 0 {
		ws.SetReadLimit(t.ReadLimit)
	}
	return &wsConn{ws: ws}, nil
}

// wsConn adapts websocket.Conn to Conn.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			if code := websocket.CloseStatus(err); code != -1 {
				slog.Debug("WebSocket closed by backend", "code", code)
			}
			return nil, err
		}
		if typ != websocket.MessageText {
			slog.Debug("Ignoring binary WebSocket frame", "bytes", len(data))
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	err := c.ws.Close(websocket.StatusNormalClosure, "session ended")
	if err != nil && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
