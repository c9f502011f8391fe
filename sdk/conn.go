package feynman

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oduggan21/feynmanV2/pkg/protocol"
)

const defaultDialTimeout = 15 * time.Second

type connState int32

const (
	connIdle connState = iota
	connConnecting
	connOpen
	connClosed
)

// Conn owns the lifecycle of one duplex channel: idle, connecting, open,
// closed. Loss of the channel is terminal for the Conn; callers open a fresh
// one to resume a session.
type Conn struct {
	logger *slog.Logger
	events *emitter

	state      atomic.Int32
	localClose atomic.Bool
	reading    atomic.Bool

	writeMu    sync.Mutex
	closeOnce  sync.Once
	closedOnce sync.Once

	mu sync.Mutex
	ws *websocket.Conn
}

// NewConn creates an idle connection.
func NewConn(logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{logger: logger, events: newEmitter()}
}

// Subscribe registers a handler for one event kind. Handlers run
// synchronously in registration order on the connection's read goroutine.
func (c *Conn) Subscribe(kind EventKind, fn func(Event)) Subscription {
	return c.events.subscribe(kind, fn)
}

// Unsubscribe removes a previously registered handler.
func (c *Conn) Unsubscribe(sub Subscription) {
	c.events.unsubscribe(sub)
}

// IsOpen reports whether the channel is in the open state. Send only
// delivers while open; callers that need delivery must check first.
func (c *Conn) IsOpen() bool {
	return connState(c.state.Load()) == connOpen
}

// Connect opens the underlying duplex channel and sends the init envelope.
// Calling Connect while a channel is already opening or open is a no-op, not
// an error.
func (c *Conn) Connect(ctx context.Context, wsURL string, init protocol.ClientInit) error {
	if !c.state.CompareAndSwap(int32(connIdle), int32(connConnecting)) {
		return nil
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		c.events.emit(TransportErrorEvent{Err: err})
		c.markClosed(websocket.CloseAbnormalClosure, err.Error())
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.state.Store(int32(connOpen))
	c.events.emit(OpenedEvent{})

	if err := c.writeJSON(init); err != nil {
		c.Close()
		return fmt.Errorf("send init: %w", err)
	}

	c.reading.Store(true)
	go c.readLoop(ws)
	return nil
}

// markClosed transitions to the closed state and emits the terminal
// ClosedEvent. Exactly one ClosedEvent fires per connection regardless of
// which path observed the closure first.
func (c *Conn) markClosed(code int, reason string) {
	c.closedOnce.Do(func() {
		c.state.Store(int32(connClosed))
		c.events.emit(ClosedEvent{Code: code, Reason: reason})
	})
}

// Send delivers a structured text envelope. While the channel is not open
// the message is dropped and a diagnostic is emitted instead of an error.
func (c *Conn) Send(msg any) {
	if !c.IsOpen() {
		c.dropSend("text envelope")
		return
	}
	if err := c.writeJSON(msg); err != nil {
		c.logger.Warn("websocket write failed", "err", err)
	}
}

// SendAudioFrame delivers one raw binary PCM frame, bypassing envelope
// framing. Same drop semantics as Send.
func (c *Conn) SendAudioFrame(pcm []byte) {
	if !c.IsOpen() {
		c.dropSend("audio frame")
		return
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return
	}
	c.writeMu.Lock()
	err := ws.WriteMessage(websocket.BinaryMessage, pcm)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn("websocket audio write failed", "err", err)
	}
}

func (c *Conn) dropSend(what string) {
	msg := fmt.Sprintf("dropped %s: connection is not open", what)
	c.logger.Debug(msg)
	c.events.emit(DiagnosticEvent{Message: msg})
}

func (c *Conn) writeJSON(v any) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return errors.New("connection is not open")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteJSON(v)
}

// Close requests graceful shutdown. Outstanding sends are not guaranteed
// delivered.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.localClose.Store(true)
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws == nil {
			c.markClosed(websocket.CloseNormalClosure, "")
			return
		}
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = ws.Close()
		// Without a read loop nothing else can observe the socket error, so
		// the closed transition happens here.
		if !c.reading.Load() {
			c.markClosed(websocket.CloseNormalClosure, "")
		}
	})
}

// readLoop decodes inbound frames and delivers them strictly in arrival
// order. Malformed payloads are dropped with a diagnostic so the rest of the
// system never sees partially-typed data.
func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)
			if !c.localClose.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.events.emit(TransportErrorEvent{Err: err})
			}
			c.markClosed(code, reason)
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text inbound frame", "message_type", messageType)
			continue
		}
		event, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("dropping malformed server frame", "err", err)
			continue
		}
		c.events.emit(ServerMessageEvent{Event: event})
	}
}

func closeDetails(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
