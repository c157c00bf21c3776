package websocket

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xws "golang.org/x/net/websocket"
)

func TestInteropEcho(t *testing.T) {
	server := echoServer(t)

	conn := NewConn(Config{URL: wsURL(server)})
	rec := recordEvents(conn)

	require.NoError(t, conn.Connect(context.Background()))
	rec.waitOpen(t)

	require.NoError(t, conn.Send("round trip"))
	assert.Equal(t, "round trip", rec.waitMessage(t))

	require.NoError(t, conn.Close())
	ev := rec.waitClose(t)
	assert.Equal(t, CloseNormalClosure, ev.code)
	assert.NoError(t, conn.Err())
}

func TestInteropXNetEcho(t *testing.T) {
	server := httptest.NewServer(xws.Server{
		Handler: xws.Handler(func(ws *xws.Conn) {
			_, _ = io.Copy(ws, ws)
		}),
	})
	defer server.Close()

	conn := NewConn(Config{URL: wsURL(server)})
	rec := recordEvents(conn)

	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()

	for _, message := range []string{"first", "second", "third"} {
		require.NoError(t, conn.Send(message))
		assert.Equal(t, message, rec.waitMessage(t))
	}
}

func TestInteropServerPing(t *testing.T) {
	upgrader := gorillaws.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}

	pongPayload := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sconn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer sconn.Close()

		sconn.SetPongHandler(func(appData string) error {
			pongPayload <- appData
			return nil
		})

		deadline := time.Now().Add(time.Second)
		if err := sconn.WriteControl(gorillaws.PingMessage, []byte("are-you-there"), deadline); err != nil {
			return
		}

		// Pong handlers run inside ReadMessage.
		for {
			if _, _, err := sconn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	conn := NewConn(Config{URL: wsURL(server)})
	recordEvents(conn)

	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()

	select {
	case payload := <-pongPayload:
		assert.Equal(t, "are-you-there", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pong")
	}
}

func TestInteropServerClose(t *testing.T) {
	upgrader := gorillaws.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}

	peerSawClose := make(chan error, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sconn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer sconn.Close()

		deadline := time.Now().Add(time.Second)
		closeMessage := gorillaws.FormatCloseMessage(gorillaws.CloseGoingAway, "restarting")
		if err := sconn.WriteControl(gorillaws.CloseMessage, closeMessage, deadline); err != nil {
			return
		}

		_, _, err = sconn.ReadMessage()
		peerSawClose <- err
	}))
	defer server.Close()

	conn := NewConn(Config{URL: wsURL(server)})
	rec := recordEvents(conn)

	require.NoError(t, conn.Connect(context.Background()))

	ev := rec.waitClose(t)
	assert.Equal(t, CloseGoingAway, ev.code)
	assert.Equal(t, "restarting", ev.reason)
	assert.True(t, IsCloseError(conn.Err(), CloseGoingAway))
	assert.Equal(t, StateClosed, conn.State())

	// The close echo carries no status code, which the peer reports as
	// CloseNoStatusReceived.
	select {
	case err := <-peerSawClose:
		assert.True(t, gorillaws.IsCloseError(err, gorillaws.CloseNoStatusReceived))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for peer to observe close echo")
	}
}

func TestInteropSubprotocol(t *testing.T) {
	upgrader := gorillaws.Upgrader{
		CheckOrigin:  func(_ *http.Request) bool { return true },
		Subprotocols: []string{"jsonrpc"},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sconn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sconn.Close()
	}))
	defer server.Close()

	conn := NewConn(Config{
		URL:    wsURL(server),
		Dialer: &Dialer{Subprotocols: []string{"jsonrpc", "mqtt"}},
	})
	recordEvents(conn)

	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()

	assert.Equal(t, "jsonrpc", conn.Subprotocol())
}
