package connection_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kseli/kseli-go/internal/connection"
	"github.com/kseli/kseli-go/pkg/protocol"
)

// newChatServer starts an HTTP server that upgrades the first request and
// hands the raw connection to handler on its own goroutine.
func newChatServer(t *testing.T, handler func(conn net.Conn)) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("failed to upgrade: %v", err)
			return
		}
		go handler(conn)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, wsURL string) *connection.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := connection.Dial(ctx, wsURL, "test-token", nil)
	require.NoError(t, err)
	return conn
}

func TestDial_OpensConnection(t *testing.T) {
	wsURL := newChatServer(t, func(conn net.Conn) {
		defer conn.Close()
		_, _, _ = wsutil.ReadClientData(conn)
	})

	conn := dial(t, wsURL)
	conn.Start()
	defer conn.Close(protocol.NormalClosure, "leave")

	assert.Equal(t, connection.StateOpen, conn.State())
}

func TestConn_SendDeliversTextFrame(t *testing.T) {
	received := make(chan string, 1)
	wsURL := newChatServer(t, func(conn net.Conn) {
		defer conn.Close()
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		if op == ws.OpText {
			received <- string(data)
		}
	})

	conn := dial(t, wsURL)
	conn.Start()
	defer conn.Close(protocol.NormalClosure, "leave")

	require.NoError(t, conn.Send("nonce:ciphertext"))

	select {
	case got := <-received:
		assert.Equal(t, "nonce:ciphertext", got)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestConn_SendAfterCloseFails(t *testing.T) {
	wsURL := newChatServer(t, func(conn net.Conn) {
		defer conn.Close()
		_, _, _ = wsutil.ReadClientData(conn)
	})

	conn := dial(t, wsURL)
	conn.Start()
	conn.Close(protocol.NormalClosure, "leave")

	assert.Equal(t, connection.StateClosed, conn.State())
	assert.ErrorIs(t, conn.Send("late"), connection.ErrNotOpen)
}

func TestConn_MessageListenersInRegistrationOrder(t *testing.T) {
	wsURL := newChatServer(t, func(conn net.Conn) {
		defer conn.Close()
		env := protocol.NewJoin(protocol.Participant{ID: 2, Username: "bob", Role: protocol.RoleMember})
		data, _ := env.Encode()
		_ = wsutil.WriteServerMessage(conn, ws.OpText, data)
		_, _, _ = wsutil.ReadClientData(conn)
	})

	order := make(chan int, 2)
	done := make(chan protocol.Envelope, 1)

	conn := dial(t, wsURL)
	defer conn.Close(protocol.NormalClosure, "leave")

	conn.OnMessage(func(protocol.Envelope) { order <- 1 })
	conn.OnMessage(func(env protocol.Envelope) {
		order <- 2
		done <- env
	})
	conn.Start()

	select {
	case env := <-done:
		require.NotNil(t, env.Join)
		assert.Equal(t, "bob", env.Join.Username)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for envelope")
	}
	assert.Equal(t, 1, <-order)
	assert.Equal(t, 2, <-order)
}

func TestConn_UnparseableFrameIsDropped(t *testing.T) {
	wsURL := newChatServer(t, func(conn net.Conn) {
		defer conn.Close()
		_ = wsutil.WriteServerMessage(conn, ws.OpText, []byte("{not json"))
		data, _ := protocol.NewLeave(3).Encode()
		_ = wsutil.WriteServerMessage(conn, ws.OpText, data)
		_, _, _ = wsutil.ReadClientData(conn)
	})

	envelopes := make(chan protocol.Envelope, 2)

	conn := dial(t, wsURL)
	defer conn.Close(protocol.NormalClosure, "leave")
	conn.OnMessage(func(env protocol.Envelope) { envelopes <- env })
	conn.Start()

	select {
	case env := <-envelopes:
		// Only the valid frame survives; the bad one was dropped, not fatal.
		assert.Equal(t, protocol.EnvelopeLeave, env.Type)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for envelope")
	}
	assert.Empty(t, envelopes)
}

func TestConn_LivenessProbeAnsweredWithoutListeners(t *testing.T) {
	pong := make(chan []byte, 1)
	wsURL := newChatServer(t, func(conn net.Conn) {
		defer conn.Close()
		_ = wsutil.WriteServerBinary(conn, protocol.PingFrame)
		for {
			data, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}
			if op == ws.OpBinary {
				pong <- data
				return
			}
		}
	})

	var messages atomic.Int32
	conn := dial(t, wsURL)
	defer conn.Close(protocol.NormalClosure, "leave")
	conn.OnMessage(func(protocol.Envelope) { messages.Add(1) })
	conn.Start()

	select {
	case reply := <-pong:
		assert.Equal(t, protocol.PongFrame, reply)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pong")
	}
	assert.Zero(t, messages.Load(), "liveness probe must not reach message listeners")
}

func TestConn_RemoteCloseDeliveredOnce(t *testing.T) {
	wsURL := newChatServer(t, func(conn net.Conn) {
		defer conn.Close()
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "ban")
		_ = wsutil.WriteServerMessage(conn, ws.OpClose, body)
	})

	events := make(chan connection.CloseEvent, 2)
	conn := dial(t, wsURL)
	conn.OnClose(func(event connection.CloseEvent) { events <- event })
	conn.Start()

	select {
	case event := <-events:
		assert.Equal(t, protocol.NormalClosure, event.Code)
		assert.Equal(t, "ban", event.Reason)
		assert.Equal(t, protocol.ReasonBan, protocol.ClassifyClose(event.Code, event.Reason))
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close event")
	}

	// A local close after the remote one must not produce a second event.
	conn.Close(protocol.NormalClosure, "leave")
	assert.Empty(t, events)
	assert.Equal(t, connection.StateClosed, conn.State())
}

func TestConn_TransportFailureClassifiedAsError(t *testing.T) {
	wsURL := newChatServer(t, func(conn net.Conn) {
		// Drop the TCP connection without a close frame.
		conn.Close()
	})

	events := make(chan connection.CloseEvent, 1)
	conn := dial(t, wsURL)
	conn.OnClose(func(event connection.CloseEvent) { events <- event })
	conn.Start()

	select {
	case event := <-events:
		assert.NotEqual(t, protocol.NormalClosure, event.Code)
		assert.Equal(t, protocol.ReasonError, protocol.ClassifyClose(event.Code, event.Reason))
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close event")
	}
}
