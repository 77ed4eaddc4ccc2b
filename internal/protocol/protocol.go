// Package protocol defines the wire vocabulary exchanged between the
// table-editor UI and the session core: commands (UI intent) and events
// (core notifications). Each deployment carries a closed allow-list; name
// validation is the only trust gate, and it is enforced at every
// transport boundary.
package protocol

import "encoding/json"

// Deployment identifies which host environment a bridge serves. The
// vocabulary differs slightly per deployment (the web deployment adds
// server-pushed session expiry).
type Deployment string

const (
	DeploymentEmbedded Deployment = "embedded"
	DeploymentDesktop  Deployment = "desktop"
	DeploymentWeb      Deployment = "web"
)

// CommandName is a client-to-core message name.
type CommandName string

const (
	CmdConnect          CommandName = "connect"
	CmdDisconnect       CommandName = "disconnect"
	CmdCancelConnection CommandName = "cancelConnection"
	CmdListNamespaces   CommandName = "listNamespaces"
	CmdSetNamespace     CommandName = "setNamespace"
	CmdListTables       CommandName = "listTables"
	CmdOpenTable        CommandName = "openTable"
	CmdGetPage          CommandName = "getPage"
	CmdUpdateRow        CommandName = "updateRow"
	CmdInsertRow        CommandName = "insertRow"
	CmdDeleteRow        CommandName = "deleteRow"
	CmdSaveViewState    CommandName = "saveViewState"
	CmdRestoreViewState CommandName = "restoreViewState"
)

// EventName is a core-to-client message name.
type EventName string

const (
	EvtConnectionProgress EventName = "connectionProgress"
	EvtNamespaces         EventName = "namespaces"
	EvtTables             EventName = "tables"
	EvtTableData          EventName = "tableData"
	EvtRowsChanged        EventName = "rowsChanged"
	EvtViewState          EventName = "viewState"
	EvtSessionExpired     EventName = "sessionExpired"
	EvtErrorOccurred      EventName = "errorOccurred"
)

// Command is a named, immutable client intent. The payload stays opaque
// until a consumer decodes it by name.
type Command struct {
	Name    CommandName
	Payload json.RawMessage
}

// Event is a named, immutable core notification.
type Event struct {
	Name    EventName
	Payload json.RawMessage
}

var commonCommands = []CommandName{
	CmdConnect, CmdDisconnect, CmdCancelConnection,
	CmdListNamespaces, CmdSetNamespace,
	CmdListTables, CmdOpenTable, CmdGetPage,
	CmdUpdateRow, CmdInsertRow, CmdDeleteRow,
	CmdSaveViewState, CmdRestoreViewState,
}

var commonEvents = []EventName{
	EvtConnectionProgress,
	EvtNamespaces, EvtTables, EvtTableData, EvtRowsChanged,
	EvtViewState, EvtErrorOccurred,
}

var (
	commandAllowlist = map[Deployment]map[CommandName]struct{}{}
	eventAllowlist   = map[Deployment]map[EventName]struct{}{}
)

func init() {
	for _, d := range []Deployment{DeploymentEmbedded, DeploymentDesktop, DeploymentWeb} {
		cmds := make(map[CommandName]struct{}, len(commonCommands))
		for _, c := range commonCommands {
			cmds[c] = struct{}{}
		}
		commandAllowlist[d] = cmds

		evts := make(map[EventName]struct{}, len(commonEvents)+1)
		for _, e := range commonEvents {
			evts[e] = struct{}{}
		}
		eventAllowlist[d] = evts
	}
	// Only the shared server ever expires a session out from under a client.
	eventAllowlist[DeploymentWeb][EvtSessionExpired] = struct{}{}
}

// IsValidCommand reports whether name belongs to the deployment's command
// vocabulary. Pure and side-effect free.
func IsValidCommand(d Deployment, name CommandName) bool {
	_, ok := commandAllowlist[d][name]
	return ok
}

// IsValidEvent reports whether name belongs to the deployment's event
// vocabulary. Pure and side-effect free.
func IsValidEvent(d Deployment, name EventName) bool {
	_, ok := eventAllowlist[d][name]
	return ok
}
