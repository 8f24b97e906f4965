// Package connection drives one peer's websocket lifecycle: a read loop and
// a write loop per connection, a handshake state machine, and heartbeat
// timers, modeled on the teacher's paired read/write goroutines around a
// single *automerge.SyncState.
package connection

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/astromechza/codecollab/internal/wire"
)

// State is a connection's position in the handshake/join state machine.
type State int

const (
	StateNew State = iota
	StateWaitingJoin
	StateJoined
	StateClosed
)

// HandshakeTimeout is the Hello deadline value for a freshly accepted
// connection. Nothing in this package enforces it: a connection that never
// sends Hello is closed only by WriteLoop's StaleTimeout check.
const HandshakeTimeout = 10 * time.Second

// PingInterval is how often WriteLoop sends an unsolicited heartbeat Pong
// (Timestamp 0) to the peer.
const PingInterval = 25 * time.Second

// StaleTimeout is how long without any inbound traffic before a connection
// is considered dead and closed.
const StaleTimeout = 60 * time.Second

// SendQueueSize is the bounded depth of a connection's outbound write
// queue, matching room.OutboxSize: the protocol's default high-water mark
// is 1024 messages or 8 MiB in flight (§4.4/§5) before a peer is
// disconnected with RateLimited.
const SendQueueSize = 1024

// SendQueueByteLimit is the other half of that default high-water mark: a
// connection is disconnected once this many bytes of framed messages sit
// unwritten in its send queue, even if SendQueueSize hasn't been reached.
const SendQueueByteLimit = 8 * 1024 * 1024

// Conn wraps a websocket connection with the framing and state machine the
// sync protocol requires. It owns no room/session logic; callers supply
// handler functions invoked as messages arrive.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	lastSeen    time.Time
	sendQueue   chan []byte
	queuedBytes int64

	// writeMu serializes every write to ws, since gorilla/websocket forbids
	// concurrent writers: WriteLoop's own writes and SendError's
	// out-of-band error frame both go through writeFrame.
	writeMu sync.Mutex
}

// New wraps an already-upgraded websocket connection.
func New(ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		ws:        ws,
		logger:    logger,
		state:     StateNew,
		lastSeen:  time.Now(),
		sendQueue: make(chan []byte, SendQueueSize),
	}
}

// State returns the connection's current handshake state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState transitions the connection's handshake state.
func (c *Conn) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Conn) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = time.Now()
}

func (c *Conn) idleFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastSeen)
}

// Enqueue queues a pre-framed message for delivery on the write loop. If
// the queue is past SendQueueSize or SendQueueByteLimit, the connection is
// considered backpressured and is closed rather than buffering further —
// the publisher must never stall.
func (c *Conn) Enqueue(framed []byte) bool {
	if atomic.LoadInt64(&c.queuedBytes)+int64(len(framed)) > SendQueueByteLimit {
		return false
	}
	select {
	case c.sendQueue <- framed:
		atomic.AddInt64(&c.queuedBytes, int64(len(framed)))
		return true
	default:
		return false
	}
}

// writeFrame serializes every write to the underlying websocket: gorilla's
// Conn forbids concurrent writers, and SendError writes out-of-band
// alongside WriteLoop's own queue-draining writes.
func (c *Conn) writeFrame(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(messageType, data)
}

// SendError frames and writes a ServerError directly to the socket,
// bypassing the send queue so it reaches the peer before the caller closes
// the connection. Used for protocol-level failures that occur before a
// Session's handler ever sees a decoded message (§4.2/§4.4/§7).
func (c *Conn) SendError(code wire.ErrorCode, message string) {
	framed, err := wire.FrameServer(wire.ServerError{Code: code, Message: message})
	if err != nil {
		c.logger.Error("failed to frame error", "err", err)
		return
	}
	if err := c.writeFrame(websocket.BinaryMessage, framed); err != nil {
		c.logger.Warn("failed to write error frame before close", "err", err)
	}
}

// Close closes the underlying websocket connection.
func (c *Conn) Close() error { return c.ws.Close() }

// ReadLoop consumes inbound frames and invokes handle for each successfully
// decoded ClientMessage, until the connection errors, ctx is cancelled, or
// handle returns a non-nil error (treated as fatal to the connection).
func (c *Conn) ReadLoop(ctx context.Context, handle func(wire.ClientMessage) error) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mt, payload, err := c.ws.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "connection: read")
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		c.touch()

		frame, err := wire.DecodeStream(bytes.NewReader(payload))
		if err != nil {
			c.sendDecodeError(err)
			return errors.Wrap(err, "connection: decode frame")
		}
		msg, err := wire.DecodeClient(frame.Payload)
		if err != nil {
			c.sendDecodeError(err)
			return errors.Wrap(err, "connection: decode message")
		}
		if err := handle(msg); err != nil {
			return err
		}
	}
}

// WriteLoop drains the send queue and heartbeat ticker onto the websocket
// until ctx is cancelled. It also enforces StaleTimeout: if no inbound
// traffic has been seen for that long, the connection is closed.
func (c *Conn) WriteLoop(ctx context.Context) error {
	pingTicker := time.NewTicker(PingInterval)
	defer pingTicker.Stop()
	staleTicker := time.NewTicker(StaleTimeout / 4)
	defer staleTicker.Stop()

	for {
		select {
		case framed, ok := <-c.sendQueue:
			if !ok {
				return nil
			}
			atomic.AddInt64(&c.queuedBytes, -int64(len(framed)))
			if err := c.writeFrame(websocket.BinaryMessage, framed); err != nil {
				return errors.Wrap(err, "connection: write")
			}
		case <-pingTicker.C:
			framed, err := wire.FrameServer(wire.ServerPong{Timestamp: 0, ServerTime: time.Now().UnixMilli()})
			if err == nil {
				if err := c.writeFrame(websocket.BinaryMessage, framed); err != nil {
					return errors.Wrap(err, "connection: write heartbeat")
				}
			}
		case <-staleTicker.C:
			if c.idleFor() > StaleTimeout {
				c.SendError(wire.ErrorInvalidMessage, "connection idle past stale timeout")
				return errors.New("connection: stale, no traffic within timeout")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// sendDecodeError classifies a frame/message decode failure and writes the
// matching Error frame before ReadLoop returns and the caller closes the
// connection (§4.2 unknown tags, §4.4 read-loop errors, §7's protocol-error
// taxonomy, scenario 6's version-mismatch case).
func (c *Conn) sendDecodeError(err error) {
	if errors.Is(err, wire.ErrVersionMismatch) {
		c.SendError(wire.ErrorVersionMismatch, err.Error())
		return
	}
	c.SendError(wire.ErrorInvalidMessage, err.Error())
}
