package hub

import (
	"github.com/flowlane/agentd/pkg/websocket"
)

// wsConnection adapts a transport-layer *websocket.Conn to the Hub's
// Connection interface by pairing it with a stable client id, grounded on
// the teacher's streaming.Client (id + send-channel wrapper around a raw
// *gorilla.Conn).
type wsConnection struct {
	id   string
	conn *websocket.Conn
}

// NewWSConnection wraps an upgraded transport connection for registration
// with the Hub.
func NewWSConnection(id string, conn *websocket.Conn) Connection {
	return &wsConnection{id: id, conn: conn}
}

func (c *wsConnection) ID() string         { return c.id }
func (c *wsConnection) Send(b []byte) bool { return c.conn.Send(b) }
func (c *wsConnection) IsOpen() bool       { return c.conn.IsOpen() }
