package slamon

import (
	"context"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"
)

// StatusNormalClosure is the close code sent on an intentional disconnect.
const StatusNormalClosure = int(websocket.StatusNormalClosure)

const defaultReadLimit = 1 << 20

// Conn is one open duplex transport. Write must be safe for concurrent use.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close(code int, reason string) error
}

// Dialer opens transports. The dial must honour ctx cancellation; the channel
// uses it to enforce the open timeout and to abort on Disconnect.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// ============================================================================
// WebSocket transport
// ============================================================================

// WebSocketDialer dials with nhooyr.io/websocket. Cookies in the HTTP client's
// jar ride along on the upgrade request, matching the ambient session
// credential the authorization probe uses.
type WebSocketDialer struct {
	HTTPClient *http.Client
	Header     http.Header
	ReadLimit  int64
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	opts := &websocket.DialOptions{HTTPHeader: d.Header}
	if d.HTTPClient != nil {
		// websocket.Dial rejects clients with a Timeout; ctx bounds the dial.
		hc := *d.HTTPClient
		hc.Timeout = 0
		opts.HTTPClient = &hc
	}

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, frame []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

func (c *wsConn) Close(code int, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}
