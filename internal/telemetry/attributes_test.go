package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/v1/session", "http://localhost:8088/api/v1/session", 200)
	assert.Len(t, attrs, 4)
	assert.Equal(t, HTTPMethodKey, string(attrs[0].Key))
	assert.Equal(t, "GET", attrs[0].Value.AsString())
	assert.Equal(t, int64(200), attrs[3].Value.AsInt64())
}

func TestSessionAttributes_OmitsEmpty(t *testing.T) {
	assert.Empty(t, SessionAttributes("", "", ""))

	attrs := SessionAttributes("svc-1", "USER", "")
	assert.Len(t, attrs, 2)
	assert.Equal(t, SessionTargetKey, string(attrs[0].Key))
	assert.Equal(t, SessionNamespaceKey, string(attrs[1].Key))
}

func TestCommandAttributes(t *testing.T) {
	attrs := CommandAttributes("getPage", "ws")
	assert.Len(t, attrs, 2)
	assert.Equal(t, "getPage", attrs[0].Value.AsString())
	assert.Equal(t, "ws", attrs[1].Value.AsString())
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes("timeout")
	assert.Len(t, attrs, 2)
	assert.True(t, attrs[0].Value.AsBool())
	assert.Equal(t, "timeout", attrs[1].Value.AsString())
}
