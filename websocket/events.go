package websocket

// OpenHandler is invoked once when the opening handshake completes and
// the connection reaches StateOpen.
type OpenHandler func(c *Conn)

// MessageHandler is invoked for each text frame received from the peer.
type MessageHandler func(c *Conn, message string)

// CloseHandler is invoked exactly once when an open connection reaches
// StateClosed, with the close code and reason. For a close initiated by
// the peer these come from the close frame body; a locally initiated
// close reports CloseNormalClosure, and a failed connection reports
// CloseAbnormalClosure or CloseProtocolError.
type CloseHandler func(c *Conn, code int, reason string)

// ErrorHandler is invoked when the connection fails after the handshake:
// a socket-level I/O failure or an unrecoverable framing violation. It
// fires at most once, before the close handler. Errors from Send are
// returned to the caller instead.
type ErrorHandler func(c *Conn, err error)

// OnOpen sets the handler invoked when the connection opens.
// Handlers must be set before Connect.
func (c *Conn) OnOpen(h OpenHandler) {
	c.onOpen = h
}

// OnMessage sets the handler invoked for each received text message.
// Handlers must be set before Connect.
func (c *Conn) OnMessage(h MessageHandler) {
	c.onMessage = h
}

// OnClose sets the handler invoked when the connection closes.
// Handlers must be set before Connect.
func (c *Conn) OnClose(h CloseHandler) {
	c.onClose = h
}

// OnError sets the handler invoked when the connection fails.
// Handlers must be set before Connect.
func (c *Conn) OnError(h ErrorHandler) {
	c.onError = h
}
