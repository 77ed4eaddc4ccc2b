// Package bridge implements the transport adapters that carry command and
// event traffic between a table-editor UI and the session core. Three
// adapters share one contract: an in-process adapter (same process, no
// serialization), an IPC adapter (privileged process boundary with the
// allow-list enforced at the boundary itself), and a WebSocket adapter
// (persistent socket with pre-open buffering and reconnect).
package bridge

import (
	"encoding/json"
	"sync"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/protocol"
)

// Handler consumes one event. Zero or more handlers may be registered per
// event name; dispatch order within one bridge follows emission order.
type Handler func(protocol.Event)

// Subscription identifies one registered handler so it can be removed
// without disturbing the others registered for the same name.
type Subscription struct {
	name protocol.EventName
	id   uint64
}

// Bridge is the contract common to all three transport adapters.
type Bridge interface {
	// SendCommand validates the name and delivers the command to the
	// counterpart. Invalid names are logged and dropped, never errors.
	SendCommand(name protocol.CommandName, payload json.RawMessage)

	// OnEvent registers a handler for one event name.
	OnEvent(name protocol.EventName, h Handler) Subscription

	// OffEvent removes exactly the handler identified by sub. Events
	// already in flight to other handlers are unaffected.
	OffEvent(sub Subscription)

	// State and SetState expose a bridge-local opaque slot for UI state
	// that survives reloads of the same logical session. Never transmitted.
	State() json.RawMessage
	SetState(v json.RawMessage)
}

// LocalEmitter is implemented by the in-process and IPC adapters: a
// consumer on the same side can synthesize an event (e.g. to drive a
// state-restore flow after a focus switch) without a remote round trip.
// Names are validated exactly like remote events.
type LocalEmitter interface {
	EmitLocal(name protocol.EventName, payload json.RawMessage)
}

// handlerSet is the registration table shared by all adapters. Dispatch
// snapshots the current registration slice so a handler removed
// mid-dispatch is not invoked for events already in flight.
type handlerSet struct {
	mu     sync.RWMutex
	nextID uint64
	byName map[protocol.EventName][]handlerEntry
}

type handlerEntry struct {
	id uint64
	fn Handler
}

func newHandlerSet() *handlerSet {
	return &handlerSet{byName: make(map[protocol.EventName][]handlerEntry)}
}

func (s *handlerSet) add(name protocol.EventName, h Handler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.byName[name] = append(s.byName[name], handlerEntry{id: s.nextID, fn: h})
	return Subscription{name: name, id: s.nextID}
}

func (s *handlerSet) remove(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.byName[sub.name]
	for i, e := range entries {
		if e.id == sub.id {
			s.byName[sub.name] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// snapshot returns a copy of the handlers registered for name at this
// instant.
func (s *handlerSet) snapshot(name protocol.EventName) []Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.byName[name]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Handler, len(entries))
	for i, e := range entries {
		out[i] = e.fn
	}
	return out
}

func (s *handlerSet) dispatch(evt protocol.Event) {
	for _, fn := range s.snapshot(evt.Name) {
		fn(evt)
	}
}

// stateSlot is the bridge-local key-value slot.
type stateSlot struct {
	mu    sync.RWMutex
	value json.RawMessage
}

func (s *stateSlot) get() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *stateSlot) set(v json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}
