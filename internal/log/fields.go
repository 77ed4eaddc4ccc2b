package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldToken     = "token" // only ever logged masked

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Protocol fields
	FieldCommand    = "command"
	FieldEventName  = "event_name"
	FieldDeployment = "deployment"
	FieldBoundary   = "boundary"

	// Connection fields
	FieldTarget    = "target"
	FieldNamespace = "namespace"
	FieldTable     = "table"

	// Path / URL fields
	FieldPath = "path"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldReason   = "reason"
)
