package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Session attributes
	SessionTargetKey    = "session.target"
	SessionNamespaceKey = "session.namespace"
	SessionTableKey     = "session.table"

	// Command attributes
	CommandNameKey     = "command.name"
	CommandBoundaryKey = "command.boundary"

	// Connection attributes
	ConnectTargetKey  = "connect.target"
	ConnectOutcomeKey = "connect.outcome"

	// Error attributes
	ErrorKey     = "error"
	ErrorCodeKey = "error.code"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes creates session-scoped span attributes. Empty values
// are omitted.
func SessionAttributes(target, namespace, table string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if target != "" {
		attrs = append(attrs, attribute.String(SessionTargetKey, target))
	}
	if namespace != "" {
		attrs = append(attrs, attribute.String(SessionNamespaceKey, namespace))
	}
	if table != "" {
		attrs = append(attrs, attribute.String(SessionTableKey, table))
	}
	return attrs
}

// CommandAttributes creates command-dispatch span attributes.
func CommandAttributes(name, boundary string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CommandNameKey, name),
		attribute.String(CommandBoundaryKey, boundary),
	}
}

// ConnectAttributes creates connection-attempt span attributes.
func ConnectAttributes(target, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ConnectTargetKey, target),
		attribute.String(ConnectOutcomeKey, outcome),
	}
}

// ErrorAttributes creates error span attributes from a stable fault
// code.
func ErrorAttributes(code string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorCodeKey, code),
	}
}
