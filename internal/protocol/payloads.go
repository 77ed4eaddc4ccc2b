package protocol

import "encoding/json"

// ConnectPayload names the configured server identity to connect to.
// Credentials never travel in a command payload; they are resolved
// server-side from the identity (or carried out-of-band on session start).
type ConnectPayload struct {
	Server    string `json:"server"`
	Namespace string `json:"namespace,omitempty"`
}

// ProgressPayload is the body of every connectionProgress event. Status
// mirrors the lifecycle states; Code is a stable fault code, present only
// on failures.
type ProgressPayload struct {
	Status  string `json:"status"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// NamespacePayload selects the active namespace for subsequent table
// operations.
type NamespacePayload struct {
	Namespace string `json:"namespace"`
}

// TablePayload selects a table (and optionally its schema) to edit.
type TablePayload struct {
	Schema string `json:"schema,omitempty"`
	Table  string `json:"table"`
}

// PagePayload requests one page of rows from the open table.
type PagePayload struct {
	Offset  int    `json:"offset"`
	Limit   int    `json:"limit"`
	OrderBy string `json:"orderBy,omitempty"`
	Filter  string `json:"filter,omitempty"`
}

// RowPayload carries one row mutation keyed by the table's ID column.
type RowPayload struct {
	ID     json.RawMessage            `json:"id,omitempty"`
	Values map[string]json.RawMessage `json:"values,omitempty"`
}

// ViewStatePayload is the opaque UI state blob saved and restored across
// panel reloads of the same logical session.
type ViewStatePayload struct {
	State json.RawMessage `json:"state"`
}

// ErrorPayload is the body of every errorOccurred event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionExpiredPayload is pushed once to the owning client right before
// its session is removed.
type SessionExpiredPayload struct {
	Reason string `json:"reason"`
}

// DecodeConnect decodes a connect command payload.
func DecodeConnect(p json.RawMessage) (ConnectPayload, error) {
	var out ConnectPayload
	err := json.Unmarshal(p, &out)
	return out, err
}

// DecodeNamespace decodes a setNamespace command payload.
func DecodeNamespace(p json.RawMessage) (NamespacePayload, error) {
	var out NamespacePayload
	err := json.Unmarshal(p, &out)
	return out, err
}

// DecodeTable decodes an openTable command payload.
func DecodeTable(p json.RawMessage) (TablePayload, error) {
	var out TablePayload
	err := json.Unmarshal(p, &out)
	return out, err
}

// DecodePage decodes a getPage command payload.
func DecodePage(p json.RawMessage) (PagePayload, error) {
	var out PagePayload
	err := json.Unmarshal(p, &out)
	return out, err
}

// DecodeRow decodes an updateRow/insertRow/deleteRow command payload.
func DecodeRow(p json.RawMessage) (RowPayload, error) {
	var out RowPayload
	err := json.Unmarshal(p, &out)
	return out, err
}

// DecodeProgress decodes a connectionProgress event payload.
func DecodeProgress(p json.RawMessage) (ProgressPayload, error) {
	var out ProgressPayload
	err := json.Unmarshal(p, &out)
	return out, err
}

// DecodeError decodes an errorOccurred event payload.
func DecodeError(p json.RawMessage) (ErrorPayload, error) {
	var out ErrorPayload
	err := json.Unmarshal(p, &out)
	return out, err
}

// DecodeSessionExpired decodes a sessionExpired event payload.
func DecodeSessionExpired(p json.RawMessage) (SessionExpiredPayload, error) {
	var out SessionExpiredPayload
	err := json.Unmarshal(p, &out)
	return out, err
}

// MustMarshal encodes a payload struct, panicking only on programmer
// error (unmarshalable types never appear in the payload vocabulary).
func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
