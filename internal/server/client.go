// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client represents one live WebSocket connection. Its id is minted at
// upgrade time, is stable for the connection's lifetime, and never reused
// while the connection lives.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string

	// closed and rooms are guarded by the hub's mutex.
	closed bool
	rooms  map[string]struct{}

	limiter        *tokenBucket
	limit          RateLimitConfig
	maxMessageSize int64
	logger         *slog.Logger
	closeOnce      sync.Once
}

// NewClient creates a Client for an upgraded connection. The send channel is
// buffered so broadcasts never block the hub.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg *Config, logger *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		rooms:          make(map[string]struct{}),
		limiter:        newTokenBucket(cfg.RateLimit),
		limit:          cfg.RateLimit,
		maxMessageSize: cfg.MaxMessageSize,
		logger:         logger,
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string {
	return c.id
}

// close tears down the underlying connection once; the read pump then drives
// unregistration and the disconnect cleanup.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.conn == nil {
			return
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("error closing connection", "connection_id", c.id, "error", err)
		}
	})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("error setting read deadline", "connection_id", c.id, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("error setting read deadline in pong handler", "connection_id", c.id, "error", err)
		}
		return nil
	})
}

// logReadError logs the read failure at a severity matching how expected it
// is. Every read error terminates the pump.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("message exceeded maximum size",
			"connection_id", c.id, "max_bytes", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Info("client disconnected", "connection_id", c.id)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.logger.Info("client connection closed", "connection_id", c.id)
	default:
		c.logger.Warn("websocket read error", "connection_id", c.id, "error", err)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.close()
	}()

	c.setupReadConnection()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			break
		}

		if c.limiter != nil && !c.limiter.allow() {
			c.logger.Warn("rate limit exceeded, discarding event",
				"connection_id", c.id,
				"burst", c.limit.Burst,
				"refill_interval", c.limit.RefillInterval)
			continue
		}

		if c.hub.session != nil {
			c.hub.session.Dispatch(c.id, frame)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("error setting write deadline", "connection_id", c.id, "error", err)
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeFrame(frame) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("error setting write deadline for ping", "connection_id", c.id, "error", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeFrame writes one frame plus any frames already queued, one WebSocket
// text message each so clients receive one JSON envelope per message.
func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error writing message", "connection_id", c.id, "error", err)
		}
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			return false
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
			if !isExpectedCloseError(err) {
				c.logger.Warn("error writing queued message", "connection_id", c.id, "error", err)
			}
			return false
		}
	}
	return true
}
