package transport

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// WSClient is a websocket-backed Sender. It pushes incoming frames to the
// registered handler and reconnects with backoff until its context ends.
type WSClient struct {
	url     string
	logger  *zap.Logger
	handler Handler

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	cancel    context.CancelFunc

	// OnConnect is invoked after each successful (re)connect, before the
	// read loop starts. Used to trigger a drain of pending messages.
	OnConnect func()
	// OnDisconnect is invoked after the read loop ends, before the next
	// dial attempt.
	OnDisconnect func()
}

// SetHandler installs the incoming-frame handler. Call before Start.
func (c *WSClient) SetHandler(h Handler) {
	c.handler = h
}

// NewWSClient creates a websocket client for the given endpoint.
func NewWSClient(url string, handler Handler, logger *zap.Logger) *WSClient {
	return &WSClient{url: url, handler: handler, logger: logger}
}

// Start runs the connect/read/reconnect loop until the context ends.
func (c *WSClient) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Stop terminates the connection loop.
func (c *WSClient) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// IsConnected reports whether a live connection is established.
func (c *WSClient) IsConnected() bool {
	return c.connected.Load()
}

// Send writes a frame on the current connection.
func (c *WSClient) Send(ctx context.Context, f *Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (c *WSClient) run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			c.logger.Warn("transport dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		conn.SetReadLimit(1 << 22)

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.connected.Store(true)
		c.logger.Info("transport connected")
		if c.OnConnect != nil {
			c.OnConnect()
		}

		c.readLoop(ctx, conn)

		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		c.logger.Warn("transport disconnected")
		if c.OnDisconnect != nil {
			c.OnDisconnect()
		}
	}
}

func (c *WSClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("transport frame decode failed", zap.Error(err))
			continue
		}
		if c.handler != nil {
			c.handler(&f)
		}
	}
}
