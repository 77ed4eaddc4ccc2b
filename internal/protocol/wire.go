package protocol

import (
	"encoding/json"
	"fmt"
)

// CommandFrame is the single top-level object carried per outbound message
// on serialized transports.
type CommandFrame struct {
	Command CommandName     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventFrame is the single top-level object carried per inbound message.
type EventFrame struct {
	Event   EventName       `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeCommand serializes a command frame.
func EncodeCommand(cmd Command) ([]byte, error) {
	return json.Marshal(CommandFrame{Command: cmd.Name, Payload: cmd.Payload})
}

// DecodeCommand parses a command frame. A malformed frame or an empty name
// is an expected condition from a remote peer, reported as an error for
// the boundary to log and drop.
func DecodeCommand(data []byte) (Command, error) {
	var frame CommandFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Command{}, fmt.Errorf("malformed command frame: %w", err)
	}
	if frame.Command == "" {
		return Command{}, fmt.Errorf("command frame missing name")
	}
	return Command{Name: frame.Command, Payload: frame.Payload}, nil
}

// EncodeEvent serializes an event frame.
func EncodeEvent(evt Event) ([]byte, error) {
	return json.Marshal(EventFrame{Event: evt.Name, Payload: evt.Payload})
}

// DecodeEvent parses an event frame.
func DecodeEvent(data []byte) (Event, error) {
	var frame EventFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Event{}, fmt.Errorf("malformed event frame: %w", err)
	}
	if frame.Event == "" {
		return Event{}, fmt.Errorf("event frame missing name")
	}
	return Event{Name: frame.Event, Payload: frame.Payload}, nil
}
