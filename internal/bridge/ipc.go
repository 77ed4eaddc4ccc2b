package bridge

import (
	"encoding/json"
	"sync"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/metrics"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/protocol"
)

// Channel is one direction-agnostic serialized pipe across the process
// boundary. The embedded host environment restricts the panel to exactly
// this channel shape, so frames are the only thing that ever crosses.
type Channel interface {
	Send(data []byte) error
	Receive() <-chan []byte
	Close() error
}

// IPC is the panel-side (less trusted) adapter for the embedded
// deployment. Every outbound command name is checked against the
// allow-list before serialization; every inbound event name is checked at
// the boundary before any handler sees it.
type IPC struct {
	deployment protocol.Deployment
	ch         Channel
	handlers   *handlerSet
	state      stateSlot

	closeOnce sync.Once
	done      chan struct{}
}

// NewIPC creates the panel-side adapter and starts its receive loop.
func NewIPC(d protocol.Deployment, ch Channel) *IPC {
	b := &IPC{
		deployment: d,
		ch:         ch,
		handlers:   newHandlerSet(),
		done:       make(chan struct{}),
	}
	go b.receiveLoop()
	return b
}

func (b *IPC) receiveLoop() {
	logger := log.WithComponent("bridge-ipc")
	for {
		select {
		case <-b.done:
			return
		case data, ok := <-b.ch.Receive():
			if !ok {
				return
			}
			evt, err := protocol.DecodeEvent(data)
			if err != nil {
				metrics.ProtocolViolations.WithLabelValues("ipc-panel").Inc()
				logger.Warn().Err(err).Msg("dropping malformed event frame")
				continue
			}
			if !protocol.IsValidEvent(b.deployment, evt.Name) {
				metrics.ProtocolViolations.WithLabelValues("ipc-panel").Inc()
				logger.Warn().
					Str(log.FieldEventName, string(evt.Name)).
					Msg("dropping event with invalid name at boundary")
				continue
			}
			b.handlers.dispatch(evt)
		}
	}
}

// SendCommand validates, serializes and sends one command frame.
func (b *IPC) SendCommand(name protocol.CommandName, payload json.RawMessage) {
	logger := log.WithComponent("bridge-ipc")
	if !protocol.IsValidCommand(b.deployment, name) {
		metrics.ProtocolViolations.WithLabelValues("ipc-panel").Inc()
		logger.Warn().
			Str(log.FieldCommand, string(name)).
			Msg("dropping command with invalid name")
		return
	}
	data, err := protocol.EncodeCommand(protocol.Command{Name: name, Payload: payload})
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldCommand, string(name)).Msg("failed to encode command")
		return
	}
	if err := b.ch.Send(data); err != nil {
		logger.Warn().Err(err).Str(log.FieldCommand, string(name)).Msg("failed to send command")
		return
	}
	metrics.CommandsDispatched.WithLabelValues(string(name)).Inc()
}

// EmitLocal synthesizes an event on the panel side without crossing the
// boundary, subject to the same validation as remote events.
func (b *IPC) EmitLocal(name protocol.EventName, payload json.RawMessage) {
	if !protocol.IsValidEvent(b.deployment, name) {
		metrics.ProtocolViolations.WithLabelValues("ipc-panel").Inc()
		logger := log.WithComponent("bridge-ipc")
		logger.Warn().
			Str(log.FieldEventName, string(name)).
			Msg("dropping local event with invalid name")
		return
	}
	b.handlers.dispatch(protocol.Event{Name: name, Payload: payload})
}

// OnEvent registers a handler for one event name.
func (b *IPC) OnEvent(name protocol.EventName, h Handler) Subscription {
	return b.handlers.add(name, h)
}

// OffEvent removes one handler.
func (b *IPC) OffEvent(sub Subscription) {
	b.handlers.remove(sub)
}

// State returns the bridge-local state slot.
func (b *IPC) State() json.RawMessage { return b.state.get() }

// SetState replaces the bridge-local state slot.
func (b *IPC) SetState(v json.RawMessage) { b.state.set(v) }

// Close stops the receive loop. The channel itself is owned by the host
// environment and is not closed here.
func (b *IPC) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// IPCHost is the privileged side of the boundary. The receiving side can
// act with elevated capability, so every inbound command name is checked
// at the boundary itself, independent of any check the business logic
// performs.
type IPCHost struct {
	deployment protocol.Deployment
	ch         Channel
	sink       CommandSink

	closeOnce sync.Once
	done      chan struct{}
}

// NewIPCHost creates the host-side adapter and starts its receive loop.
func NewIPCHost(d protocol.Deployment, ch Channel, sink CommandSink) *IPCHost {
	h := &IPCHost{
		deployment: d,
		ch:         ch,
		sink:       sink,
		done:       make(chan struct{}),
	}
	go h.receiveLoop()
	return h
}

func (h *IPCHost) receiveLoop() {
	logger := log.WithComponent("bridge-ipc-host")
	for {
		select {
		case <-h.done:
			return
		case data, ok := <-h.ch.Receive():
			if !ok {
				return
			}
			cmd, err := protocol.DecodeCommand(data)
			if err != nil {
				metrics.ProtocolViolations.WithLabelValues("ipc-host").Inc()
				logger.Warn().Err(err).Msg("dropping malformed command frame")
				continue
			}
			if !protocol.IsValidCommand(h.deployment, cmd.Name) {
				metrics.ProtocolViolations.WithLabelValues("ipc-host").Inc()
				logger.Warn().
					Str(log.FieldCommand, string(cmd.Name)).
					Msg("dropping command with invalid name at privileged boundary")
				continue
			}
			metrics.CommandsDispatched.WithLabelValues(string(cmd.Name)).Inc()
			h.sink(cmd)
		}
	}
}

// SendEvent validates, serializes and sends one event frame to the panel.
func (h *IPCHost) SendEvent(name protocol.EventName, payload json.RawMessage) {
	logger := log.WithComponent("bridge-ipc-host")
	if !protocol.IsValidEvent(h.deployment, name) {
		metrics.ProtocolViolations.WithLabelValues("ipc-host").Inc()
		logger.Warn().
			Str(log.FieldEventName, string(name)).
			Msg("dropping event with invalid name")
		return
	}
	data, err := protocol.EncodeEvent(protocol.Event{Name: name, Payload: payload})
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldEventName, string(name)).Msg("failed to encode event")
		return
	}
	if err := h.ch.Send(data); err != nil {
		logger.Warn().Err(err).Str(log.FieldEventName, string(name)).Msg("failed to send event")
	}
}

// Close stops the receive loop.
func (h *IPCHost) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// pipeChannel is an in-memory duplex channel used by tests and by the
// embedded deployment when host and panel share a process.
type pipeChannel struct {
	out chan<- []byte
	in  <-chan []byte

	mu     sync.Mutex
	closed bool
}

// Pipe returns two connected channel endpoints.
func Pipe() (Channel, Channel) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a := &pipeChannel{out: ab, in: ba}
	b := &pipeChannel{out: ba, in: ab}
	return a, b
}

func (p *pipeChannel) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errChannelClosed
	}
	// Copy so the sender can reuse its buffer.
	buf := make([]byte, len(data))
	copy(buf, data)
	p.out <- buf
	return nil
}

func (p *pipeChannel) Receive() <-chan []byte { return p.in }

func (p *pipeChannel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.out)
	}
	return nil
}

var errChannelClosed = &channelClosedError{}

type channelClosedError struct{}

func (*channelClosedError) Error() string { return "ipc channel closed" }
