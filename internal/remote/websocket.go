package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketClient talks to a remote agent over a websocket.
type WebSocketClient struct {
	name   string
	url    string
	conn   *websocket.Conn
	reqID  int
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewWebSocketClient dials url.
func NewWebSocketClient(ctx context.Context, name, url string, logger *slog.Logger) (*WebSocketClient, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	logger.Info("connected to remote agent", "name", name, "url", url)
	return &WebSocketClient{
		name:   name,
		url:    url,
		conn:   conn,
		logger: logger,
	}, nil
}

// Name returns the client identifier
func (c *WebSocketClient) Name() string {
	return c.name
}

// Call sends a request and waits for its response, honoring the context deadline.
func (c *WebSocketClient) Call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("client is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)

	c.reqID++
	request, err := newRequest(c.reqID, method, params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := c.conn.WriteJSON(request); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	var response JSONRPCResponse
	if err := c.conn.ReadJSON(&response); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	return decodeResponse(response, request.ID, result)
}

// Close sends a close frame and closes the connection.
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()

	c.logger.Info("closed remote agent connection", "name", c.name)
	return err
}
