package websocket

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// DefaultDialer is a dialer with all fields set to the default values.
var DefaultDialer = &Dialer{}

// defaultHandshakeTimeout bounds the opening handshake when no timeout
// is configured. The wait covers dialing and the upgrade exchange;
// steady-state reads after the handshake are unbounded.
const defaultHandshakeTimeout = 10 * time.Second

// Dialer contains options for the opening handshake with a WebSocket server.
type Dialer struct {
	// NetDial specifies the dial function for creating TCP connections.
	NetDial func(network, addr string) (net.Conn, error)

	// NetDialContext specifies the dial function for creating TCP connections with context.
	NetDialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	// NetDialTLSContext specifies the dial function for creating TLS connections with context.
	NetDialTLSContext func(ctx context.Context, network, addr string) (net.Conn, error)

	// Proxy specifies a function to return a proxy for a given Request.
	Proxy func(*http.Request) (*url.URL, error)

	// TLSClientConfig specifies the TLS configuration to use with tls.Client.
	TLSClientConfig *tls.Config

	// HandshakeTimeout specifies the duration for the handshake to complete.
	// Zero means the default of 10 seconds.
	HandshakeTimeout time.Duration

	// Subprotocols specifies the client's requested subprotocols.
	Subprotocols []string

	// Jar specifies the cookie jar.
	Jar http.CookieJar
}

// Dial performs the opening handshake and returns the upgraded network
// connection ready for frame traffic.
func (d *Dialer) Dial(urlStr string, requestHeader http.Header) (net.Conn, *http.Response, error) {
	return d.DialContext(context.Background(), urlStr, requestHeader)
}

// DialContext performs the client-side opening handshake per RFC 6455,
// section 4.1, with the provided context. On success the returned
// net.Conn carries framed WebSocket traffic; any bytes the server sent
// after the upgrade response are preserved and will be returned by the
// connection's Read before fresh socket data.
//
// A non-101 or malformed upgrade response fails with ErrBadHandshake
// and the response is returned for inspection. Exceeding the handshake
// timeout fails with ErrHandshakeTimeout.
func (d *Dialer) DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (net.Conn, *http.Response, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, nil, err
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, nil, errors.New("websocket: bad scheme")
	}

	if u.Host == "" {
		return nil, nil, errors.New("websocket: empty host")
	}

	hostPort := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "http":
			hostPort = net.JoinHostPort(u.Host, "80")
		case "https":
			hostPort = net.JoinHostPort(u.Host, "443")
		}
	}

	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = defaultHandshakeTimeout
	}
	deadline := time.Now().Add(timeout)

	// The context bounds the dial and TLS handshake; the socket
	// deadline bounds the upgrade exchange that follows.
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	netConn, err := d.dial(ctx, u, hostPort)
	if err != nil {
		if isTimeoutError(err) {
			return nil, nil, ErrHandshakeTimeout
		}
		return nil, nil, err
	}

	if err := netConn.SetDeadline(deadline); err != nil {
		netConn.Close()
		return nil, nil, err
	}

	conn, resp, err := d.doHandshake(netConn, u, requestHeader)
	if err != nil {
		netConn.Close()
		if isTimeoutError(err) {
			return nil, resp, ErrHandshakeTimeout
		}
		return nil, resp, err
	}

	if err := netConn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, resp, err
	}

	return conn, resp, nil
}

func (d *Dialer) dial(ctx context.Context, u *url.URL, hostPort string) (net.Conn, error) {
	// Check for proxy configuration.
	var proxyURL *url.URL
	if d.Proxy != nil {
		req := &http.Request{URL: u}
		var err error
		proxyURL, err = d.Proxy(req)
		if err != nil {
			return nil, err
		}
	}

	// If proxy is configured, connect through proxy.
	if proxyURL != nil {
		return d.dialProxy(ctx, proxyURL, u, hostPort)
	}

	if u.Scheme == "https" {
		if d.NetDialTLSContext != nil {
			return d.NetDialTLSContext(ctx, "tcp", hostPort)
		}

		tlsConn, err := d.dialTLS(ctx, hostPort, u.Hostname())
		if err != nil {
			return nil, err
		}
		return tlsConn, nil
	}

	if d.NetDialContext != nil {
		return d.NetDialContext(ctx, "tcp", hostPort)
	}

	if d.NetDial != nil {
		return d.NetDial("tcp", hostPort)
	}

	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", hostPort)
}

func (d *Dialer) dialProxy(ctx context.Context, proxyURL *url.URL, targetURL *url.URL, hostPort string) (net.Conn, error) {
	proxyHost := proxyURL.Host
	if proxyURL.Port() == "" {
		proxyHost = net.JoinHostPort(proxyURL.Hostname(), "80")
	}

	// Connect to proxy server.
	var dialer net.Dialer
	proxyConn, err := dialer.DialContext(ctx, "tcp", proxyHost)
	if err != nil {
		return nil, err
	}

	// Send HTTP CONNECT request.
	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: hostPort},
		Host:   hostPort,
		Header: make(http.Header),
	}

	// Add proxy authorization if present.
	if proxyURL.User != nil {
		username := proxyURL.User.Username()
		password, _ := proxyURL.User.Password()
		auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		connectReq.Header.Set("Proxy-Authorization", "Basic "+auth)
	}

	if err := connectReq.Write(proxyConn); err != nil {
		proxyConn.Close()
		return nil, err
	}

	// Read proxy response.
	br := bufio.NewReader(proxyConn)
	resp, err := http.ReadResponse(br, connectReq)
	if err != nil {
		proxyConn.Close()
		return nil, err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		proxyConn.Close()
		return nil, errors.New("websocket: proxy CONNECT failed: " + resp.Status)
	}

	// For wss://, upgrade to TLS.
	if targetURL.Scheme == "https" {
		tlsConfig := d.TLSClientConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		} else {
			tlsConfig = tlsConfig.Clone()
		}
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = targetURL.Hostname()
		}

		tlsConn := tls.Client(proxyConn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			proxyConn.Close()
			return nil, err
		}
		return tlsConn, nil
	}

	return proxyConn, nil
}

func (d *Dialer) dialTLS(ctx context.Context, hostPort, serverName string) (net.Conn, error) {
	tlsConfig := d.TLSClientConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	} else {
		tlsConfig = tlsConfig.Clone()
	}

	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = serverName
	}

	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(netConn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		netConn.Close()
		return nil, err
	}

	return tlsConn, nil
}

// doHandshake performs the upgrade request and response validation per
// RFC 6455, section 4.1. The returned net.Conn is netConn, wrapped if
// the response reader buffered bytes past the headers so that no early
// frames are lost.
func (d *Dialer) doHandshake(netConn net.Conn, u *url.URL, requestHeader http.Header) (net.Conn, *http.Response, error) {
	// Generate 16-byte random challenge key per RFC 6455, section 4.1.
	challengeKey := generateChallengeKey()

	// Build handshake request per RFC 6455, section 4.1.
	req := &http.Request{
		Method:     http.MethodGet,
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Host:       u.Host,
	}

	for k, vs := range requestHeader {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	// Set required headers per RFC 6455, section 4.1.
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", challengeKey)
	req.Header.Set("Sec-WebSocket-Version", websocketVersion)

	if len(d.Subprotocols) > 0 {
		req.Header.Set("Sec-WebSocket-Protocol", strings.Join(d.Subprotocols, ", "))
	}

	if d.Jar != nil {
		for _, cookie := range d.Jar.Cookies(u) {
			req.AddCookie(cookie)
		}
	}

	if err := req.Write(netConn); err != nil {
		return nil, nil, err
	}

	br := bufio.NewReader(netConn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, nil, err
	}

	if d.Jar != nil {
		if rc := resp.Cookies(); len(rc) > 0 {
			d.Jar.SetCookies(u, rc)
		}
	}

	// Validate server response per RFC 6455, section 4.1.
	if resp.StatusCode != http.StatusSwitchingProtocols {
		defer resp.Body.Close()
		return nil, resp, ErrBadHandshake
	}

	if !strings.EqualFold(resp.Header.Get("Upgrade"), "websocket") {
		return nil, resp, ErrBadHandshake
	}

	if !strings.EqualFold(resp.Header.Get("Connection"), "upgrade") {
		return nil, resp, ErrBadHandshake
	}

	// Validate Sec-WebSocket-Accept per RFC 6455, section 4.2.2, item 5.4.
	expectedAccept := computeAcceptKey(challengeKey)
	if resp.Header.Get("Sec-WebSocket-Accept") != expectedAccept {
		return nil, resp, ErrBadHandshake
	}

	// Validate subprotocol per RFC 6455, section 4.2.2.
	// Server must return a subprotocol that was requested by the client.
	subprotocol := resp.Header.Get("Sec-WebSocket-Protocol")
	if subprotocol != "" && !slices.Contains(d.Subprotocols, subprotocol) {
		return nil, resp, ErrBadHandshake
	}

	// The response reader may have read past the headers into early
	// frame bytes; those must reach the frame layer, not vanish with br.
	conn := netConn
	if n := br.Buffered(); n > 0 {
		remainder := make([]byte, n)
		if _, err := io.ReadFull(br, remainder); err != nil {
			return nil, resp, err
		}
		conn = &bufferedConn{Conn: netConn, r: io.MultiReader(bytes.NewReader(remainder), netConn)}
	}

	return conn, resp, nil
}

// bufferedConn replays handshake read-ahead bytes before reading from
// the socket again. All other net.Conn methods hit the socket directly.
type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// isTimeoutError reports whether err is a deadline expiry, from either
// the handshake deadline on the socket or the caller's context.
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
