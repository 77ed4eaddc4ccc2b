package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/auth"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/fault"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/metrics"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/protocol"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/session"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/telemetry"
)

const (
	// wsSendBuffer bounds events queued toward one client; a client that
	// cannot drain this falls behind and is disconnected.
	wsSendBuffer = 64

	wsWriteTimeout = 10 * time.Second
)

// wsClient is one upgraded socket bound to one session token.
type wsClient struct {
	conn *websocket.Conn
	// send carries encoded event frames toward the write pump.
	send chan []byte
	// expired is closed by the removal notifier; the write pump flushes
	// queued events, writes closeFrame and closes the socket.
	expired chan struct{}
	// closeFrame is set by the notifier before expired closes; the
	// channel close publishes it to the write pump.
	closeFrame []byte
	// done is closed when the read loop exits, releasing the write pump.
	done chan struct{}
}

func (s *Server) upgrader() websocket.Upgrader {
	allowed := make(map[string]bool)
	for _, o := range s.cfg.Get().CORSOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser client
			}
			return allowed["*"] || allowed[origin]
		},
	}
}

// handleWS upgrades the connection and pumps commands for one session.
// The token arrives out of band (bearer header or session cookie), never
// in the first frame.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractToken(r)
	if _, err := s.sessions.Validate(token); err != nil {
		writeFault(w, fault.CodeNotConnected)
		return
	}

	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	client := &wsClient{
		conn:    conn,
		send:    make(chan []byte, wsSendBuffer),
		expired: make(chan struct{}),
		done:    make(chan struct{}),
	}

	// The notifier runs under the session manager's lock: queue the final
	// event, pick the close frame and signal, nothing more. It fires for
	// expiry and for explicit ends arriving on other channels (HTTP
	// DELETE), so the socket always closes from the owning side.
	_ = s.sessions.OnExpiry(token, func(_ string, cause session.Cause) {
		if cause == session.CauseExpired {
			frame, err := protocol.EncodeEvent(protocol.Event{
				Name:    protocol.EvtSessionExpired,
				Payload: protocol.MustMarshal(protocol.SessionExpiredPayload{Reason: "inactivity"}),
			})
			if err == nil {
				select {
				case client.send <- frame:
				default:
				}
			}
			client.closeFrame = websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired")
		} else {
			client.closeFrame = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
		}
		close(client.expired)
	})

	if !s.sessions.Go(client.writePump) {
		_ = conn.Close()
		return
	}
	s.readLoop(r.Context(), client, token)
}

// writePump serializes all writes to the socket. When the expiry signal
// fires it drains the queued final event and closes the connection.
func (c *wsClient) writePump() {
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case <-c.done:
			return
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-c.expired:
			// Flush anything already queued, then send the close frame the
			// notifier chose.
			for {
				select {
				case frame := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
					if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
						return
					}
				default:
					_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
					_ = c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame)
					return
				}
			}
		}
	}
}

// readLoop consumes command frames until the socket or session dies.
// Every frame counts as session activity.
func (s *Server) readLoop(ctx context.Context, client *wsClient, token string) {
	logger := log.WithComponentFromContext(ctx, "ws")
	defer close(client.done)
	defer func() { _ = client.conn.Close() }()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		if err := s.sessions.Touch(token); err != nil {
			// Session gone; the expiry notifier (if registered) already
			// pushed the final event.
			return
		}

		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			logger.Warn().Err(err).Msg("malformed command frame dropped")
			metrics.ProtocolViolations.WithLabelValues("ws").Inc()
			continue
		}
		if !protocol.IsValidCommand(protocol.DeploymentWeb, cmd.Name) {
			logger.Warn().
				Str(log.FieldCommand, string(cmd.Name)).
				Msg("command not in deployment vocabulary, dropped")
			metrics.ProtocolViolations.WithLabelValues("ws").Inc()
			continue
		}

		metrics.CommandsDispatched.WithLabelValues(string(cmd.Name)).Inc()

		if done := s.dispatchCommand(ctx, client, token, cmd); done {
			return
		}
	}
}

// dispatchCommand routes one validated command. Returns true when the
// socket should close.
func (s *Server) dispatchCommand(ctx context.Context, client *wsClient, token string, cmd protocol.Command) bool {
	switch cmd.Name {
	case protocol.CmdDisconnect:
		s.sessions.End(token)
		_ = client.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnected"),
			time.Now().Add(wsWriteTimeout))
		return true

	case protocol.CmdConnect, protocol.CmdCancelConnection:
		// Web sessions are established and torn down over HTTP; the
		// socket never carries connection management.
		s.sendEvent(client, errorEvent(fault.CodeProtocolViolation,
			"connection management is not available on this channel"))
		return false

	case protocol.CmdSetNamespace:
		p, err := protocol.DecodeNamespace(cmd.Payload)
		if err != nil || p.Namespace == "" {
			s.sendEvent(client, errorEvent(fault.CodeProtocolViolation, "invalid namespace payload"))
			return false
		}
		if err := s.sessions.SetNamespace(token, p.Namespace); err != nil {
			s.sendEvent(client, errorEvent(fault.CodeNotConnected, fault.MessageOf(err)))
			return true
		}
		return s.forward(ctx, client, token, cmd)

	case protocol.CmdOpenTable:
		p, err := protocol.DecodeTable(cmd.Payload)
		if err != nil || p.Table == "" {
			s.sendEvent(client, errorEvent(fault.CodeProtocolViolation, "invalid table payload"))
			return false
		}
		if err := s.sessions.SetTable(token, p.Table); err != nil {
			s.sendEvent(client, errorEvent(fault.CodeNotConnected, fault.MessageOf(err)))
			return true
		}
		return s.forward(ctx, client, token, cmd)

	default:
		return s.forward(ctx, client, token, cmd)
	}
}

// forward hands the command to the session's executor and pushes the
// resulting events back to the client.
func (s *Server) forward(ctx context.Context, client *wsClient, token string, cmd protocol.Command) bool {
	handles, err := s.sessions.Handles(token)
	if err != nil {
		s.sendEvent(client, errorEvent(fault.CodeNotConnected, "no active session"))
		return true
	}
	executor, ok := handles.(Executor)
	if !ok {
		s.sendEvent(client, errorEvent(fault.CodeProtocolViolation, "command not supported by this session"))
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.Get().OperationTimeout)
	defer cancel()

	opCtx, span := telemetry.Tracer("tabled.ws").Start(opCtx, "command "+string(cmd.Name),
		trace.WithAttributes(telemetry.CommandAttributes(string(cmd.Name), "ws")...))
	defer span.End()

	events, err := executor.Execute(opCtx, cmd)
	if err != nil {
		code := fault.CodeOf(err)
		span.SetAttributes(telemetry.ErrorAttributes(string(code))...)
		s.sendEvent(client, errorEvent(code, fault.MessageOf(err)))
		return false
	}
	for _, evt := range events {
		if !protocol.IsValidEvent(protocol.DeploymentWeb, evt.Name) {
			metrics.ProtocolViolations.WithLabelValues("ws").Inc()
			continue
		}
		s.sendEvent(client, evt)
	}
	return false
}

func (s *Server) sendEvent(client *wsClient, evt protocol.Event) {
	frame, err := protocol.EncodeEvent(evt)
	if err != nil {
		return
	}
	select {
	case client.send <- frame:
	default:
		s.logger.Warn().Str(log.FieldEventName, string(evt.Name)).Msg("slow ws client, event dropped")
	}
}

func errorEvent(code fault.Code, msg string) protocol.Event {
	return protocol.Event{
		Name:    protocol.EvtErrorOccurred,
		Payload: protocol.MustMarshal(protocol.ErrorPayload{Code: string(code), Message: msg}),
	}
}
