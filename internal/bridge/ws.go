package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/fault"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/metrics"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/protocol"
)

// DefaultMaxPending bounds the pre-open command queue. When the queue is
// full the oldest frame is dropped with a warning (overflow policy
// recorded in DESIGN.md).
const DefaultMaxPending = 256

// WSConfig configures the client-side network adapter.
type WSConfig struct {
	// URL is the ws:// or wss:// endpoint of the shared server.
	URL string

	// Token is the session token presented during the handshake, before
	// any command is accepted. It travels out-of-band (header), never
	// inside a command payload.
	Token string

	// Deployment selects the allow-list; the network adapter serves the
	// web deployment unless configured otherwise.
	Deployment protocol.Deployment

	// MaxPending overrides DefaultMaxPending when > 0.
	MaxPending int

	// Dialer overrides websocket.DefaultDialer (tests).
	Dialer *websocket.Dialer
}

// WS is the network adapter: a persistent socket with outbound buffering
// while the socket is not yet open and reconnect that re-uses the
// registered handlers. Commands are delivered in send order and are never
// dropped nor reordered across an open/close boundary (only queue
// overflow evicts, oldest first).
type WS struct {
	cfg      WSConfig
	handlers *handlerSet
	state    stateSlot

	mu      sync.Mutex
	conn    *websocket.Conn
	dialing bool
	pending [][]byte

	// writeMu serializes all writes on the socket, including the queue
	// flush on (re)connect, so flushed frames always precede new sends.
	writeMu sync.Mutex
}

// NewWS creates a network adapter. The socket is not opened until
// Connect is called; commands sent before then are queued in FIFO order.
func NewWS(cfg WSConfig) *WS {
	if cfg.Deployment == "" {
		cfg.Deployment = protocol.DeploymentWeb
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	return &WS{
		cfg:      cfg,
		handlers: newHandlerSet(),
	}
}

// Connect performs the authenticated handshake and opens the socket. Any
// queued commands are flushed in original order before new sends proceed.
// Calling Connect while already connected, or while another Connect is
// mid-dial, is a no-op. After an unexpected close, calling Connect again
// re-establishes the socket; event handlers survive without
// re-registration.
func (b *WS) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.conn != nil || b.dialing {
		b.mu.Unlock()
		return nil
	}
	b.dialing = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.dialing = false
		b.mu.Unlock()
	}()

	dialer := b.cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if b.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+b.cfg.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, b.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fault.CredentialRejected("session token rejected during handshake")
		}
		if ctx.Err() != nil {
			return fault.New(fault.CodeOf(ctx.Err()), "websocket handshake aborted", ctx.Err())
		}
		return fault.Unreachable("server is not reachable", err)
	}

	b.writeMu.Lock()
	b.mu.Lock()
	b.conn = conn
	queued := b.pending
	b.pending = nil
	b.mu.Unlock()

	var werr error
	for i, frame := range queued {
		if werr = conn.WriteMessage(websocket.TextMessage, frame); werr != nil {
			b.mu.Lock()
			b.conn = nil
			// Unsent frames keep their place at the head of the queue.
			b.pending = append(append([][]byte{}, queued[i:]...), b.pending...)
			b.mu.Unlock()
			break
		}
	}
	b.writeMu.Unlock()

	if werr != nil {
		_ = conn.Close()
		return fault.Unreachable("socket closed while flushing queued commands", werr)
	}

	go b.readPump(conn)
	return nil
}

// Connected reports whether the socket is currently open.
func (b *WS) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// PendingLen reports the depth of the pre-open command queue.
func (b *WS) PendingLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// SendCommand validates the name and either writes the frame immediately
// or queues it until the socket opens.
func (b *WS) SendCommand(name protocol.CommandName, payload json.RawMessage) {
	logger := log.WithComponent("bridge-ws")
	if !protocol.IsValidCommand(b.cfg.Deployment, name) {
		metrics.ProtocolViolations.WithLabelValues("ws-client").Inc()
		logger.Warn().
			Str(log.FieldCommand, string(name)).
			Msg("dropping command with invalid name")
		return
	}
	frame, err := protocol.EncodeCommand(protocol.Command{Name: name, Payload: payload})
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldCommand, string(name)).Msg("failed to encode command")
		return
	}

	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.enqueueLocked(frame, logger)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, frame)
	b.writeMu.Unlock()
	if err != nil {
		// Socket died under us: keep the frame, front of the queue, so a
		// reconnect flush preserves the original send order.
		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
		}
		b.pending = append([][]byte{frame}, b.pending...)
		b.mu.Unlock()
		logger.Warn().Err(err).Str(log.FieldCommand, string(name)).Msg("socket write failed, command queued for reconnect")
		return
	}
	metrics.CommandsDispatched.WithLabelValues(string(name)).Inc()
}

// enqueueLocked appends to the FIFO queue, evicting the oldest frame when
// the bound is reached. Caller holds b.mu.
func (b *WS) enqueueLocked(frame []byte, logger zerolog.Logger) {
	if len(b.pending) >= b.cfg.MaxPending {
		b.pending = b.pending[1:]
		metrics.WSQueueDrops.Inc()
		logger.Warn().Int("max_pending", b.cfg.MaxPending).Msg("pre-open queue full, dropping oldest command")
	}
	b.pending = append(b.pending, frame)
}

func (b *WS) readPump(conn *websocket.Conn) {
	logger := log.WithComponent("bridge-ws")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			if b.conn == conn {
				b.conn = nil
			}
			b.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("socket closed unexpectedly; queued commands and handlers retained")
			}
			return
		}
		evt, err := protocol.DecodeEvent(data)
		if err != nil {
			metrics.ProtocolViolations.WithLabelValues("ws-client").Inc()
			logger.Warn().Err(err).Msg("dropping malformed event frame")
			continue
		}
		if !protocol.IsValidEvent(b.cfg.Deployment, evt.Name) {
			metrics.ProtocolViolations.WithLabelValues("ws-client").Inc()
			logger.Warn().
				Str(log.FieldEventName, string(evt.Name)).
				Msg("dropping event with invalid name")
			continue
		}
		b.handlers.dispatch(evt)
	}
}

// OnEvent registers a handler. Registrations survive socket closure and
// reconnects.
func (b *WS) OnEvent(name protocol.EventName, h Handler) Subscription {
	return b.handlers.add(name, h)
}

// OffEvent removes one handler.
func (b *WS) OffEvent(sub Subscription) {
	b.handlers.remove(sub)
}

// State returns the bridge-local state slot.
func (b *WS) State() json.RawMessage { return b.state.get() }

// SetState replaces the bridge-local state slot.
func (b *WS) SetState(v json.RawMessage) { b.state.set(v) }

// Close closes the socket if open. Queued commands and handlers remain in
// place for a later Connect.
func (b *WS) Close() error {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
