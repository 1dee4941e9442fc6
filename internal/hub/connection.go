package hub

// Connection is the transport-agnostic abstraction the Hub routes frames
// to (§4.1 "Connection abstraction"). The Hub never assumes a specific
// transport — implementers buffer or drop per their own connection policy,
// but Send MUST NOT block the router.
type Connection interface {
	// ID is the connection's unique client id.
	ID() string

	// Send delivers a single already-encoded frame. It MUST NOT block; a
	// false return means the frame was dropped (full buffer, closed
	// connection, or any transport-level failure) and counts against the
	// delivery report's Failed total.
	Send(frame []byte) bool

	// IsOpen reports whether the connection is still usable.
	IsOpen() bool
}
