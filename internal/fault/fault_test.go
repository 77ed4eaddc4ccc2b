package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf_ClassifiedError(t *testing.T) {
	err := CredentialRejected("invalid username or password")
	assert.Equal(t, CodeCredentialRejected, CodeOf(err))
	assert.Equal(t, "invalid username or password", MessageOf(err))
}

func TestCodeOf_WrappedClassifiedError(t *testing.T) {
	inner := Timeout("server did not respond within 10s", context.DeadlineExceeded)
	wrapped := fmt.Errorf("probe: %w", inner)
	assert.Equal(t, CodeTimeout, CodeOf(wrapped))
}

func TestCodeOf_ContextErrors(t *testing.T) {
	assert.Equal(t, CodeCancelled, CodeOf(context.Canceled))
	assert.Equal(t, CodeTimeout, CodeOf(context.DeadlineExceeded))
}

func TestCodeOf_UnknownErrorDefaultsToUnreachable(t *testing.T) {
	assert.Equal(t, CodeUnreachable, CodeOf(errors.New("connection refused")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(CodeTimeout))
	assert.True(t, Retryable(CodeUnreachable))
	assert.False(t, Retryable(CodeCredentialRejected))
	assert.False(t, Retryable(CodeCancelled))
	assert.False(t, Retryable(CodeNotConnected))
}

func TestError_UnwrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Unreachable("server is not reachable", cause)
	assert.ErrorIs(t, err, cause)
}
