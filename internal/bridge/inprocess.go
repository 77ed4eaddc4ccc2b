package bridge

import (
	"encoding/json"
	"sync"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/metrics"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/protocol"
)

// CommandSink consumes commands on the core side. Each command is
// consumed exactly once.
type CommandSink func(protocol.Command)

// InProcess is the adapter for deployments where UI and core share one
// process (desktop shell, embedded panel without a process boundary).
// Delivery is a direct function call with no serialization.
type InProcess struct {
	deployment protocol.Deployment
	handlers   *handlerSet
	state      stateSlot

	sinkMu sync.RWMutex
	sink   CommandSink
}

// NewInProcess creates an in-process bridge for the given deployment.
func NewInProcess(d protocol.Deployment) *InProcess {
	return &InProcess{
		deployment: d,
		handlers:   newHandlerSet(),
	}
}

// HandleCommands registers the core-side command sink. Safe to call while
// traffic is flowing; commands arriving before registration are dropped.
func (b *InProcess) HandleCommands(sink CommandSink) {
	b.sinkMu.Lock()
	b.sink = sink
	b.sinkMu.Unlock()
}

// SendCommand validates the name and delivers synchronously to the core
// sink. Invalid names are logged and dropped.
func (b *InProcess) SendCommand(name protocol.CommandName, payload json.RawMessage) {
	if !protocol.IsValidCommand(b.deployment, name) {
		metrics.ProtocolViolations.WithLabelValues("inprocess").Inc()
		logger := log.WithComponent("bridge")
		logger.Warn().
			Str(log.FieldCommand, string(name)).
			Str(log.FieldDeployment, string(b.deployment)).
			Msg("dropping command with invalid name")
		return
	}
	b.sinkMu.RLock()
	sink := b.sink
	b.sinkMu.RUnlock()
	if sink == nil {
		logger := log.WithComponent("bridge")
		logger.Warn().
			Str(log.FieldCommand, string(name)).
			Msg("dropping command: no sink registered")
		return
	}
	metrics.CommandsDispatched.WithLabelValues(string(name)).Inc()
	sink(protocol.Command{Name: name, Payload: payload})
}

// EmitEvent dispatches an event from the core side to all registered
// handlers, in registration order.
func (b *InProcess) EmitEvent(name protocol.EventName, payload json.RawMessage) {
	if !protocol.IsValidEvent(b.deployment, name) {
		metrics.ProtocolViolations.WithLabelValues("inprocess").Inc()
		logger := log.WithComponent("bridge")
		logger.Warn().
			Str(log.FieldEventName, string(name)).
			Str(log.FieldDeployment, string(b.deployment)).
			Msg("dropping event with invalid name")
		return
	}
	b.handlers.dispatch(protocol.Event{Name: name, Payload: payload})
}

// EmitLocal synthesizes an event on the consumer side, subject to the same
// name validation as remote events.
func (b *InProcess) EmitLocal(name protocol.EventName, payload json.RawMessage) {
	b.EmitEvent(name, payload)
}

// OnEvent registers a handler for one event name.
func (b *InProcess) OnEvent(name protocol.EventName, h Handler) Subscription {
	return b.handlers.add(name, h)
}

// OffEvent removes one handler; others for the same name stay registered.
func (b *InProcess) OffEvent(sub Subscription) {
	b.handlers.remove(sub)
}

// State returns the bridge-local state slot.
func (b *InProcess) State() json.RawMessage { return b.state.get() }

// SetState replaces the bridge-local state slot.
func (b *InProcess) SetState(v json.RawMessage) { b.state.set(v) }
