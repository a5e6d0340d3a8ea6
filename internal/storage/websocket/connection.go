package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/mapmark/mapmark/pkg/ipc"
)

const (
	sendChSize   = 256
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// connection manages a WebSocket connection with a single write goroutine.
// Replies are routed to waiting callers by request id.
type connection struct {
	mu      sync.Mutex
	conn    *ws.Conn
	sendCh  chan []byte
	pending map[string]chan ipc.AckMessage
	done    chan struct{} // closed on shutdown
	closed  bool

	wsURL  string
	secret string

	// backoff before the first reconnect attempt
	initialBackoff time.Duration

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:         make(chan []byte, sendChSize),
		pending:        make(map[string]chan ipc.AckMessage),
		done:           make(chan struct{}),
		initialBackoff: time.Second,
		logger:         logger,
	}
}

// dial connects to the WebSocket server and starts read/write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writeLoop(conn)
	go c.readLoop(conn)

	return nil
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh and writes messages to conn.
// It returns on error or shutdown; a reconnect starts a fresh loop.
func (c *connection) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				go c.reconnect(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

// readLoop reads ack messages from the server and routes them to waiters.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var ack ipc.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != ipc.TypeAck {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[ack.ID]
		delete(c.pending, ack.ID)
		c.mu.Unlock()

		if !ok {
			c.logger.Debug("Ack for unknown request, dropping", "for", ack.For, "id", ack.ID)
			continue
		}
		ch <- ack
	}
}

// reconnect replaces a broken connection, retrying with exponential
// backoff. Requests in flight on the old connection fail with ErrClosed.
func (c *connection) reconnect(broken *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != broken {
		// already shut down, or another loop is handling it
		c.mu.Unlock()
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.failPendingLocked()
	c.mu.Unlock()

	backoff := c.initialBackoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		go c.writeLoop(conn)
		go c.readLoop(conn)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// failPendingLocked wakes every waiter with a closed-connection ack. c.mu must be held.
func (c *connection) failPendingLocked() {
	for id, ch := range c.pending {
		ch <- ipc.AckMessage{Type: ipc.TypeAck, ID: id, Error: ipc.ErrClosed.Error()}
		delete(c.pending, id)
	}
}

// request sends env and blocks until the matching ack arrives, the
// timeout expires or ctx is done.
func (c *connection) request(ctx context.Context, env ipc.Envelope, timeout time.Duration) (ipc.AckMessage, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return ipc.AckMessage{}, fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}

	ch := make(chan ipc.AckMessage, 1)
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return ipc.AckMessage{}, fmt.Errorf("%s: %w", env.Type, ipc.ErrClosed)
	}
	c.pending[env.ID] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
	}

	select {
	case c.sendCh <- data:
	default:
		forget()
		return ipc.AckMessage{}, fmt.Errorf("%s: send queue full", env.Type)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		if ack.Error == ipc.ErrClosed.Error() && ack.For == "" {
			return ack, fmt.Errorf("%s: %w", env.Type, ipc.ErrClosed)
		}
		return ack, nil
	case <-timer.C:
		forget()
		return ipc.AckMessage{}, fmt.Errorf("%s: %w", env.Type, ipc.ErrTimeout)
	case <-ctx.Done():
		forget()
		return ipc.AckMessage{}, ctx.Err()
	case <-c.done:
		return ipc.AckMessage{}, fmt.Errorf("%s: %w", env.Type, ipc.ErrClosed)
	}
}

// close sends a WebSocket close frame and shuts down all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.failPendingLocked()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
