package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vitalvas/tether/wire"
)

// defaultReadBufferSize is the size of the socket read chunk. Frames
// larger than one chunk are assembled across successive reads.
const defaultReadBufferSize = 4096

// State identifies the lifecycle stage of a Conn.
type State int32

const (
	// StateConnecting is the initial state before Connect succeeds.
	StateConnecting State = iota

	// StateOpen means the handshake completed and messages may flow.
	StateOpen

	// StateClosing means teardown has started and the close frame, if
	// any, has been queued. No further messages are sent or delivered.
	StateClosing

	// StateClosed is the terminal state. A closed Conn cannot be reused.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config contains options for a client connection.
type Config struct {
	// URL is the ws:// or wss:// endpoint to connect to.
	URL string

	// Header specifies additional headers to send with the handshake
	// request, such as Authorization or Origin.
	Header http.Header

	// Dialer performs the opening handshake.
	// If nil, DefaultDialer is used.
	Dialer *Dialer

	// HandshakeTimeout overrides the dialer's handshake timeout.
	// Zero leaves the dialer's value in effect.
	HandshakeTimeout time.Duration

	// Logger is used for connection lifecycle and protocol events.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// Metrics records connection and traffic counters.
	// If nil, no metrics are recorded.
	Metrics *Metrics
}

// Conn is a client WebSocket connection.
//
// A Conn is single use: Connect may be called at most once, and a
// closed Conn cannot be reopened. Send and Close are safe for
// concurrent use. Handlers run on the connection's read goroutine, so
// a blocking handler stalls frame delivery.
type Conn struct {
	id      string
	config  Config
	logger  *slog.Logger
	metrics *Metrics

	state   atomic.Int32
	started atomic.Bool

	// writeMu serializes socket writes and guards netConn.
	writeMu sync.Mutex
	netConn net.Conn

	subprotocol string

	// buf holds received bytes not yet consumed as complete frames.
	// Only the read goroutine touches it.
	buf []byte

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	onOpen    OpenHandler
	onMessage MessageHandler
	onClose   CloseHandler
	onError   ErrorHandler
}

// NewConn returns an unconnected Conn for the given configuration.
// Register handlers before calling Connect.
func NewConn(config Config) *Conn {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New().String()

	return &Conn{
		id:      id,
		config:  config,
		logger:  logger.With("conn_id", id),
		metrics: config.Metrics,
		done:    make(chan struct{}),
	}
}

// Connect performs the opening handshake and starts the read loop. It
// returns once the connection reaches StateOpen; received messages and
// the eventual close are then delivered through the registered
// handlers.
//
// A handshake failure is returned directly and fires no events. Connect
// may be called at most once per Conn; a second call, or a call after
// Close, returns ErrAlreadyConnected.
func (c *Conn) Connect(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}

	if State(c.state.Load()) != StateConnecting {
		return ErrAlreadyConnected
	}

	dialer := c.config.Dialer
	if dialer == nil {
		dialer = DefaultDialer
	}
	if c.config.HandshakeTimeout != 0 {
		d := *dialer
		d.HandshakeTimeout = c.config.HandshakeTimeout
		dialer = &d
	}

	c.logger.Debug("connecting", "url", c.config.URL)

	start := time.Now()
	netConn, resp, err := dialer.DialContext(ctx, c.config.URL, c.config.Header)
	c.metrics.observeConnect(err, time.Since(start))
	if err != nil {
		c.closeOnce.Do(func() {
			c.closeErr = err
			c.state.Store(int32(StateClosed))
			close(c.done)
		})
		return err
	}

	c.writeMu.Lock()
	c.netConn = netConn
	c.writeMu.Unlock()

	if resp != nil {
		c.subprotocol = resp.Header.Get("Sec-WebSocket-Protocol")
	}

	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		// Close raced the handshake; the connection never opened.
		netConn.Close()
		return ErrAlreadyConnected
	}

	c.metrics.connOpened()
	c.logger.Debug("connection open",
		"url", c.config.URL,
		"remote_addr", netConn.RemoteAddr().String(),
		"subprotocol", c.subprotocol,
	)

	if c.onOpen != nil {
		c.onOpen(c)
	}

	go c.readLoop()

	return nil
}

// Send writes message to the peer as a single masked text frame. It
// blocks until the frame is handed to the socket and may be called from
// multiple goroutines.
//
// Send returns ErrNotConnected unless the connection is in StateOpen.
func (c *Conn) Send(message string) error {
	if State(c.state.Load()) != StateOpen {
		return ErrNotConnected
	}

	frame, err := wire.EncodeText([]byte(message))
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Recheck under the lock so no data frame follows the close frame.
	if State(c.state.Load()) != StateOpen {
		return ErrNotConnected
	}

	if _, err := c.netConn.Write(frame); err != nil {
		return &TransportError{Op: "write", Err: err}
	}

	c.metrics.messageSent(len(frame))

	return nil
}

// Close sends a close frame if the connection is open, closes the
// socket and moves the connection to StateClosed. It is idempotent,
// safe to call in any state and always returns nil.
func (c *Conn) Close() error {
	c.shutdown("local", CloseNormalClosure, "", nil, true)
	return nil
}

// readLoop pulls bytes off the socket and feeds them through the frame
// decoder until the connection dies.
func (c *Conn) readLoop() {
	chunk := make([]byte, defaultReadBufferSize)

	for {
		n, err := c.netConn.Read(chunk)
		if n > 0 {
			c.metrics.bytesRead(n)
			c.buf = append(c.buf, chunk[:n]...)
			if !c.processBuffer() {
				return
			}
		}
		if err != nil {
			c.handleReadError(err)
			return
		}
	}
}

// processBuffer decodes every complete frame in the receive buffer and
// dispatches them in arrival order. It reports whether the read loop
// should keep going.
func (c *Conn) processBuffer() bool {
	frames, consumed, err := wire.Decode(c.buf)

	for _, frame := range frames {
		// A handler may have closed the connection mid-batch.
		if State(c.state.Load()) != StateOpen {
			return false
		}
		if !c.dispatch(frame) {
			return false
		}
	}

	if consumed > 0 {
		c.buf = c.buf[:copy(c.buf, c.buf[consumed:])]
	}

	if err != nil {
		c.fail(err)
		return false
	}

	return true
}

// dispatch handles a single decoded frame. It reports whether the read
// loop should keep going.
func (c *Conn) dispatch(frame wire.Frame) bool {
	// Frames from the server must not be masked per RFC 6455, section 5.1.
	if frame.Masked {
		c.fail(wire.ErrMaskedFrame)
		return false
	}

	switch frame.Opcode {
	case wire.OpcodeText:
		c.metrics.messageReceived()
		if c.onMessage != nil {
			c.onMessage(c, string(frame.Payload))
		}

	case wire.OpcodePing:
		c.answerPing(frame.Payload)

	case wire.OpcodeClose:
		code, reason := parseClosePayload(frame.Payload)
		c.shutdown("peer", code, reason, &CloseError{Code: code, Text: reason}, true)
		return false

	default:
		// Binary, continuation and pong frames are dropped. Unsolicited
		// pongs are tolerated per RFC 6455, section 5.5.3.
		c.logger.Debug("frame dropped", "opcode", frame.Opcode.String())
		c.metrics.frameDropped(frame.Opcode.String())
	}

	return true
}

// answerPing replies with a pong carrying the ping's payload per
// RFC 6455, section 5.5.3. Write failures are left for the read loop
// to surface.
func (c *Conn) answerPing(payload []byte) {
	frame, err := wire.EncodePong(payload)
	if err != nil {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if State(c.state.Load()) != StateOpen {
		return
	}

	if _, err := c.netConn.Write(frame); err != nil {
		c.logger.Debug("pong write failed", "error", err)
		return
	}

	c.logger.Debug("ping answered", "payload_len", len(payload))
	c.metrics.pongSent(len(frame))
}

// handleReadError classifies a socket read failure. EOF means the peer
// went away without a close frame and is reported as an abnormal
// closure. Errors observed after local teardown are the read loop
// seeing its own socket close and are not reported.
func (c *Conn) handleReadError(err error) {
	if State(c.state.Load()) != StateOpen || errors.Is(err, net.ErrClosed) {
		return
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		cause := &CloseError{Code: CloseAbnormalClosure}
		c.shutdown("peer", CloseAbnormalClosure, "", cause, false)
		return
	}

	terr := &TransportError{Op: "read", Err: err}
	c.emitError(terr)
	c.shutdown("error", CloseAbnormalClosure, "", terr, false)
}

// fail tears the connection down after a protocol violation, reporting
// the violation through the error handler first.
func (c *Conn) fail(err error) {
	c.emitError(err)
	c.shutdown("error", CloseProtocolError, "", err, false)
}

func (c *Conn) emitError(err error) {
	c.logger.Error("connection error", "error", err)
	if c.onError != nil {
		c.onError(c, err)
	}
}

// shutdown moves the connection to StateClosed exactly once. The close
// frame is only sent, and the close handler only fires, if the
// connection had reached StateOpen. The handler runs after the Once
// body completes, so a Close call from inside the handler takes the
// idempotent path instead of re-entering the Once.
func (c *Conn) shutdown(initiator string, code int, reason string, cause error, sendClose bool) {
	fireClose := false
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosing)))

		c.writeMu.Lock()
		if c.netConn != nil {
			if prev == StateOpen && sendClose {
				// Best effort close frame per RFC 6455, section 5.5.1.
				_ = c.netConn.SetWriteDeadline(time.Now().Add(time.Second))
				_, _ = c.netConn.Write(wire.EncodeClose())
			}
			c.netConn.Close()
		}
		c.writeMu.Unlock()

		c.closeErr = cause
		c.state.Store(int32(StateClosed))

		if prev == StateOpen {
			c.metrics.connClosed(initiator)
			c.logger.Debug("connection closed",
				"initiator", initiator,
				"code", code,
				"reason", reason,
			)
			fireClose = true
		}

		close(c.done)
	})

	if fireClose && c.onClose != nil {
		c.onClose(c, code, reason)
	}
}

// Err returns the terminal status of the connection once it is closed.
//
// It returns nil while the connection is live and after a clean local
// close. A close initiated by the peer is reported as *CloseError, with
// CloseAbnormalClosure standing in when the peer vanished without a
// close frame. A handshake, transport or protocol failure is reported
// as the error that caused it.
func (c *Conn) Err() error {
	if State(c.state.Load()) != StateClosed {
		return nil
	}
	return c.closeErr
}

// Done returns a channel that is closed when the connection reaches
// StateClosed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// State returns the current connection state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// ID returns the unique identifier assigned to this connection. It is
// attached to every log line the connection emits.
func (c *Conn) ID() string {
	return c.id
}

// Subprotocol returns the subprotocol negotiated during the handshake,
// or the empty string if none was agreed.
func (c *Conn) Subprotocol() string {
	return c.subprotocol
}

// LocalAddr returns the local network address, or nil before Connect.
func (c *Conn) LocalAddr() net.Addr {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.netConn == nil {
		return nil
	}
	return c.netConn.LocalAddr()
}

// RemoteAddr returns the remote network address, or nil before Connect.
func (c *Conn) RemoteAddr() net.Addr {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.netConn == nil {
		return nil
	}
	return c.netConn.RemoteAddr()
}
