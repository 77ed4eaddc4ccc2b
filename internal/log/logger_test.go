package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_AttachesServiceField(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test-svc"})

	L().Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test-svc", entry["service"])
	assert.Equal(t, "hello", entry["message"])
}

func TestWithComponent_AnnotatesComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test-svc"})

	logger := WithComponent("bridge")
	logger.Warn().Msg("queue full")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "bridge", entry[FieldComponent])
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test-svc"})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithSessionID(ctx, "sess-1")
	logger := WithContext(ctx, Base())
	logger.Info().Msg("correlated")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, "sess-1", entry[FieldSessionID])
}

func TestMiddleware_LogsStatusAndPath(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test-svc"})

	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, "/api/v1/session", entry[FieldPath])
}
