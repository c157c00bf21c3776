// Package websocket implements a client for the WebSocket protocol
// defined in RFC 6455.
//
// This package provides an event-driven client transport including:
//   - Opening handshake via Dialer, with TLS, proxy CONNECT and
//     subprotocol negotiation
//   - Masked text message sending over a single connection
//   - Incremental frame decoding with transparent ping/pong handling
//   - Open, message, close and error callbacks
//   - Structured logging via log/slog and optional Prometheus metrics
//
// Example:
//
//	conn := websocket.NewConn(websocket.Config{
//	    URL: "wss://example.com/stream",
//	})
//
//	conn.OnMessage(func(c *websocket.Conn, message string) {
//	    log.Println("received:", message)
//	})
//	conn.OnClose(func(c *websocket.Conn, code int, reason string) {
//	    log.Println("closed:", code, reason)
//	})
//
//	if err := conn.Connect(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	if err := conn.Send("hello"); err != nil {
//	    log.Fatal(err)
//	}
//
// Concurrency:
//
// Send and Close may be called from any goroutine; frame writes are
// serialized internally and each message is written as a single frame.
// Handlers run sequentially on the connection's read goroutine, in
// frame arrival order. Calling Send or Close from inside a handler is
// allowed.
//
// Lifecycle:
//
// A Conn moves through StateConnecting, StateOpen and StateClosing to
// StateClosed and is single use. The close handler fires exactly once
// for a connection that reached StateOpen, whether the close was
// initiated locally, by the peer, or by a failure. Done returns a
// channel that is closed on teardown, and Err reports the terminal
// status.
//
// Incoming binary and continuation frames are not supported by this
// client and are dropped without error. Pings are answered with pongs
// automatically.
package websocket
