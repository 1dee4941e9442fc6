// Package websocket provides a transport-only wrapper around
// github.com/gorilla/websocket: an Upgrader plus a Conn that gives the
// Message Hub a non-blocking Send and separate read/write pumps. It carries
// no knowledge of the wire protocol spoken over it — that is pkg/api/v1's
// job; this package only moves bytes.
package websocket

import (
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/flowlane/agentd/internal/common/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB
)

// Upgrader upgrades an incoming HTTP request to a WebSocket connection.
type Upgrader struct {
	inner gorilla.Upgrader
}

// NewUpgrader builds an Upgrader with generous buffer sizes and a
// permissive origin check left to the caller (the daemon has no HTTP
// façade of its own — §1 Non-goals — so CORS policy is the embedder's).
func NewUpgrader(checkOrigin func(r *http.Request) bool) *Upgrader {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Upgrader{inner: gorilla.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}}
}

// Upgrade promotes an HTTP request to a Conn with the given send buffer
// depth (grounded on streaming.Client's buffered send channel).
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request, sendBuffer int, log *logger.Logger) (*Conn, error) {
	ws, err := u.inner.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(ws, sendBuffer, log), nil
}

// Conn wraps a *gorilla.Conn with a buffered, non-blocking Send and
// separate read/write pumps, matching the teacher's streaming.Client
// pattern generalized from a hub-specific struct into a reusable
// transport type.
type Conn struct {
	ws   *gorilla.Conn
	send chan []byte
	log  *logger.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps an established *gorilla.Conn.
func NewConn(ws *gorilla.Conn, sendBuffer int, log *logger.Logger) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		log:    log,
		closed: make(chan struct{}),
	}
}

// Send enqueues data for the write pump without blocking. It returns false
// (a drop, never a block) if the connection is closed or its send buffer
// is full — backpressure policy the Hub only ever observes as a failed
// delivery count (§5 Backpressure).
func (c *Conn) Send(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the connection has not yet been closed.
func (c *Conn) IsOpen() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// ReadLoop blocks reading frames off the wire, invoking handler for each.
// It returns when the connection closes or the handler asks to stop by
// returning a non-nil error. Ping/pong keepalive is configured here.
func (c *Conn) ReadLoop(handler func(data []byte) error) error {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if err := handler(data); err != nil {
			return err
		}
	}
}

// WritePump drains the send channel to the wire and sends periodic pings.
// It MUST run in its own goroutine for the lifetime of the connection.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(gorilla.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(gorilla.TextMessage, data); err != nil {
				if c.log != nil {
					c.log.Debug("websocket write failed", zap.Error(err))
				}
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(gorilla.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
