// Package connection manages the single real-time WebSocket connection of
// a chat session: framing, liveness probes, listener fanout, and close
// classification.
package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/kseli/kseli-go/pkg/protocol"
)

// State is the connection lifecycle state. Closed is terminal.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ErrNotOpen is returned by Send outside the OPEN state. Nothing is
// buffered for later delivery.
var ErrNotOpen = errors.New("connection is not open")

// CloseEvent carries the close code and reason observed when the
// connection ended, local or remote.
type CloseEvent struct {
	Code   int
	Reason string
}

// MessageHandler receives decoded envelopes from the read loop.
type MessageHandler func(protocol.Envelope)

// CloseHandler receives the single close event of the connection.
type CloseHandler func(CloseEvent)

// Conn is one real-time duplex connection to the room channel. Listener
// callbacks run on the read loop goroutine, so no two handlers of the
// same Conn ever run concurrently.
type Conn struct {
	conn   net.Conn
	reader io.Reader
	log    *zap.Logger

	mu               sync.RWMutex
	state            State
	messageListeners []MessageHandler
	closeListeners   []CloseHandler

	wmu       sync.Mutex // serializes frame writes
	closeOnce sync.Once  // close event delivery
	startOnce sync.Once
	wg        sync.WaitGroup
}

// Dial opens the room channel addressed by the access token. The read
// loop does not run until Start is called, so listeners registered in
// between cannot miss frames.
func Dial(ctx context.Context, wsURL, token string, log *zap.Logger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}

	c := &Conn{state: StateConnecting, log: log}

	target := wsURL + "/ws/room?token=" + url.QueryEscape(token)
	conn, br, _, err := ws.Dial(ctx, target)
	if err != nil {
		c.state = StateClosed
		return nil, fmt.Errorf("failed to connect to room channel: %w", err)
	}

	c.conn = conn
	c.reader = conn
	if br != nil {
		c.reader = br
	}
	c.state = StateOpen

	return c, nil
}

// Start launches the read loop. Call it after registering listeners.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.readLoop()
	})
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnMessage registers a listener for decoded envelopes. Listeners are
// invoked in registration order and live as long as the connection.
func (c *Conn) OnMessage(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageListeners = append(c.messageListeners, handler)
}

// OnClose registers a listener for the close event.
func (c *Conn) OnClose(handler CloseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeListeners = append(c.closeListeners, handler)
}

// Send writes a text frame. Valid only in the OPEN state.
func (c *Conn) Send(text string) error {
	c.mu.RLock()
	open := c.state == StateOpen
	c.mu.RUnlock()
	if !open {
		return ErrNotOpen
	}

	c.wmu.Lock()
	err := wsutil.WriteClientText(c.conn, []byte(text))
	c.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close requests a graceful shutdown with the given code and reason.
// Idempotent once the connection is closed. Close listeners observe the
// provided code and reason.
func (c *Conn) Close(code int, reason string) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()

	c.wmu.Lock()
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusCode(code), reason))
	c.wmu.Unlock()
	_ = c.conn.Close()

	c.dispatchClose(CloseEvent{Code: code, Reason: reason})
}

// readLoop processes incoming frames in arrival order until the
// connection ends.
func (c *Conn) readLoop() {
	defer c.wg.Done()

	rd := wsutil.NewReader(c.reader, ws.StateClientSide)
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			c.terminate(CloseEvent{Code: int(ws.StatusAbnormalClosure)})
			return
		}

		payload := make([]byte, hdr.Length)
		if _, err := io.ReadFull(rd, payload); err != nil {
			c.terminate(CloseEvent{Code: int(ws.StatusAbnormalClosure)})
			return
		}

		switch hdr.OpCode {
		case ws.OpText:
			env, err := protocol.ParseEnvelope(payload)
			if err != nil {
				c.log.Warn("dropping unparseable text frame", zap.Error(err))
				continue
			}
			c.dispatchMessage(env)

		case ws.OpBinary:
			// 1-byte binary frame is a liveness probe. Answer
			// immediately, never surface it as an envelope.
			if len(payload) == 1 {
				c.wmu.Lock()
				err := wsutil.WriteClientBinary(c.conn, protocol.PongFrame)
				c.wmu.Unlock()
				if err != nil {
					c.log.Warn("failed to answer liveness probe", zap.Error(err))
				}
			}

		case ws.OpClose:
			code, reason := ws.ParseCloseFrameData(payload)
			c.terminate(CloseEvent{Code: int(code), Reason: reason})
			return

		case ws.OpPing:
			c.wmu.Lock()
			_ = wsutil.WriteClientMessage(c.conn, ws.OpPong, payload)
			c.wmu.Unlock()
		}
	}
}

// terminate transitions to CLOSED after a remote close or transport
// failure and delivers the close event.
func (c *Conn) terminate(event CloseEvent) {
	c.mu.Lock()
	alreadyClosed := c.state == StateClosed
	c.state = StateClosed
	c.mu.Unlock()

	if !alreadyClosed {
		c.wmu.Lock()
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		c.wmu.Unlock()
		_ = c.conn.Close()
	}

	c.dispatchClose(event)
}

func (c *Conn) dispatchMessage(env protocol.Envelope) {
	c.mu.RLock()
	listeners := make([]MessageHandler, len(c.messageListeners))
	copy(listeners, c.messageListeners)
	c.mu.RUnlock()

	for _, handler := range listeners {
		handler(env)
	}
}

func (c *Conn) dispatchClose(event CloseEvent) {
	c.closeOnce.Do(func() {
		c.mu.RLock()
		listeners := make([]CloseHandler, len(c.closeListeners))
		copy(listeners, c.closeListeners)
		c.mu.RUnlock()

		for _, handler := range listeners {
			handler(event)
		}
	})
}
