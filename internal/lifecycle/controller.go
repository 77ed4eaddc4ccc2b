package lifecycle

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/fault"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/protocol"
)

// EmitFunc publishes one event toward the UI side of a bridge. The
// in-process adapter's EmitEvent and the IPC host's SendEvent both fit.
type EmitFunc func(name protocol.EventName, payload json.RawMessage)

// ProgressSink adapts emit into the manager's EventSink: every state
// transition becomes one connectionProgress event. The sink runs under
// the manager's lock, so event handlers reached through emit must not
// call back into the Manager.
func ProgressSink(emit EmitFunc) EventSink {
	return func(p Progress) {
		emit(protocol.EvtConnectionProgress, protocol.MustMarshal(protocol.ProgressPayload{
			Status:  string(p.Status),
			Target:  p.Target,
			Message: p.Message,
			Code:    p.Code,
		}))
	}
}

// Controller is the command-side glue for the single-session deployments
// (desktop shell, embedded panel): it decodes the connection management
// commands arriving on a bridge into manager calls and hands every other
// command to the data layer. Register HandleCommand as the bridge's
// command sink.
type Controller struct {
	ctx    context.Context
	mgr    *Manager
	emit   EmitFunc
	next   func(protocol.Command)
	logger zerolog.Logger
}

// NewController binds mgr to a bridge's command traffic. ctx bounds the
// connection attempts started through this controller; next receives the
// data commands and may be nil while no data layer is attached.
func NewController(ctx context.Context, mgr *Manager, emit EmitFunc, next func(protocol.Command)) *Controller {
	return &Controller{
		ctx:    ctx,
		mgr:    mgr,
		emit:   emit,
		next:   next,
		logger: log.WithComponent("lifecycle"),
	}
}

// HandleCommand consumes one validated command from the bridge.
func (c *Controller) HandleCommand(cmd protocol.Command) {
	switch cmd.Name {
	case protocol.CmdConnect:
		p, err := protocol.DecodeConnect(cmd.Payload)
		if err != nil || p.Server == "" {
			c.logger.Warn().Err(err).Msg("connect command with invalid payload")
			c.emit(protocol.EvtErrorOccurred, protocol.MustMarshal(protocol.ErrorPayload{
				Code:    string(fault.CodeProtocolViolation),
				Message: "connect requires a configured server name",
			}))
			return
		}
		c.mgr.Connect(c.ctx, p.Server)

	case protocol.CmdDisconnect:
		c.mgr.Disconnect()

	case protocol.CmdCancelConnection:
		c.mgr.Cancel()

	default:
		if c.next == nil {
			c.logger.Warn().
				Str(log.FieldCommand, string(cmd.Name)).
				Msg("dropping command: no data layer attached")
			return
		}
		c.next(cmd)
	}
}
