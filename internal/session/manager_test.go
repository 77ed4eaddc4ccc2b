package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/fault"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/lifecycle"
)

type fakeHandles struct {
	mu     sync.Mutex
	closed int
}

func (h *fakeHandles) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
}

func (h *fakeHandles) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeFactory struct {
	err  error
	made []*fakeHandles
}

func (f *fakeFactory) New(_ context.Context, _ lifecycle.Target, _ lifecycle.Credentials) (Handles, error) {
	if f.err != nil {
		return nil, f.err
	}
	h := &fakeHandles{}
	f.made = append(f.made, h)
	return h, nil
}

// testClock is a manually advanced time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testTarget(name string) lifecycle.Target {
	return lifecycle.Target{Name: name, Host: "127.0.0.1", Port: 52773, Namespace: "USER"}
}

func testCreds() lifecycle.Credentials {
	return lifecycle.Credentials{Username: "_SYSTEM", Secret: []byte("SYS")}
}

func newTestManager(t *testing.T, clock *testClock, timeout time.Duration) (*Manager, *fakeFactory) {
	t.Helper()
	f := &fakeFactory{}
	m := NewManager(f, WithTimeout(timeout), withClock(clock.Now))
	return m, f
}

func TestStartAndValidate(t *testing.T) {
	clock := newTestClock()
	m, f := newTestManager(t, clock, 30*time.Minute)

	token, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
	require.NoError(t, err)
	require.Len(t, token, 64, "token is 32 bytes of entropy, hex-encoded")
	require.Len(t, f.made, 1)

	snap, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "svc-1", snap.Identity)
	assert.Equal(t, "svc-1", snap.Target)
	assert.Equal(t, "USER", snap.Namespace, "namespace defaults from the target")
	assert.Empty(t, snap.Table)
	assert.Equal(t, 1, m.Len())
}

func TestStart_TokensAreUnique(t *testing.T) {
	clock := newTestClock()
	m, _ := newTestManager(t, clock, 30*time.Minute)

	seen := make(map[string]bool)
	for i := 0; i < 16; i++ {
		token, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
		require.NoError(t, err)
		require.False(t, seen[token], "duplicate token issued")
		seen[token] = true
	}
}

func TestStart_ProbeFailureCreatesNothing(t *testing.T) {
	clock := newTestClock()
	f := &fakeFactory{err: fault.CredentialRejected("invalid username or password")}
	m := NewManager(f, withClock(clock.Now))

	creds := testCreds()
	secret := creds.Secret
	_, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), creds)
	require.Error(t, err)
	assert.Equal(t, fault.CodeCredentialRejected, fault.CodeOf(err))
	assert.Equal(t, 0, m.Len())
	for _, b := range secret {
		assert.Zero(t, b, "secret must be zeroed when start fails")
	}
}

func TestValidate_UnknownToken(t *testing.T) {
	clock := newTestClock()
	m, _ := newTestManager(t, clock, 30*time.Minute)

	_, err := m.Validate("deadbeef")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestValidate_SlidingWindow(t *testing.T) {
	clock := newTestClock()
	m, _ := newTestManager(t, clock, 30*time.Minute)

	token, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
	require.NoError(t, err)

	// Validate every 20 minutes: each call refreshes the window, so the
	// session survives well past a single timeout span.
	for i := 0; i < 4; i++ {
		clock.Advance(20 * time.Minute)
		_, err := m.Validate(token)
		require.NoError(t, err, "activity within the window must keep the session alive")
	}

	// Now go silent past the timeout.
	clock.Advance(31 * time.Minute)
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, 0, m.Len())
}

func TestTouch_CountsAsActivity(t *testing.T) {
	clock := newTestClock()
	m, _ := newTestManager(t, clock, 30*time.Minute)

	token, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
	require.NoError(t, err)

	clock.Advance(25 * time.Minute)
	require.NoError(t, m.Touch(token))
	clock.Advance(25 * time.Minute)

	_, err = m.Validate(token)
	assert.NoError(t, err, "touch must have reset the window")
}

func TestExpiry_NotifierFiresOnceBeforeRemoval(t *testing.T) {
	clock := newTestClock()
	m, f := newTestManager(t, clock, 30*time.Minute)

	token, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
	require.NoError(t, err)

	var notified []string
	require.NoError(t, m.OnExpiry(token, func(tok string, cause Cause) {
		notified = append(notified, tok)
		assert.Equal(t, CauseExpired, cause)
		// The session must still be present while the notifier runs. The
		// notifier is invoked under the manager's lock, so inspect the
		// table directly.
		assert.Len(t, m.sessions, 1)
	}))

	clock.Advance(31 * time.Minute)
	_, err = m.Validate(token)
	require.ErrorIs(t, err, ErrNoSession)

	require.Equal(t, []string{token}, notified)
	assert.Equal(t, 1, f.made[0].closeCount())

	// Second validate on the same token: removal already happened, no
	// second notification.
	_, err = m.Validate(token)
	require.ErrorIs(t, err, ErrNoSession)
	assert.Len(t, notified, 1)
}

func TestExpiry_ValidateAndSweepRemoveExactlyOnce(t *testing.T) {
	clock := newTestClock()
	m, f := newTestManager(t, clock, 30*time.Minute)
	sw := &Sweeper{Mgr: m}

	token, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
	require.NoError(t, err)

	notifications := 0
	require.NoError(t, m.OnExpiry(token, func(string, Cause) { notifications++ }))

	clock.Advance(31 * time.Minute)

	// Sweep first, then validate: the second path must find nothing.
	assert.Equal(t, 1, sw.SweepOnce())
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrNoSession)

	assert.Equal(t, 1, notifications, "exactly one expiry notification")
	assert.Equal(t, 1, f.made[0].closeCount(), "handles closed exactly once")
	assert.Equal(t, 0, sw.SweepOnce(), "nothing left to sweep")
}

func TestEnd_NotifiesOwnerExactlyOnce(t *testing.T) {
	clock := newTestClock()
	m, f := newTestManager(t, clock, 30*time.Minute)

	token, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
	require.NoError(t, err)

	var causes []Cause
	require.NoError(t, m.OnExpiry(token, func(_ string, cause Cause) { causes = append(causes, cause) }))

	// Explicit end must reach the notifier so the owning transport can
	// close any live connection for the session.
	m.End(token)
	require.Equal(t, []Cause{CauseEnded}, causes)
	assert.Equal(t, 1, f.made[0].closeCount())
	assert.Equal(t, 0, m.Len())

	m.End(token) // idempotent
	assert.Len(t, causes, 1)
	assert.Equal(t, 1, f.made[0].closeCount())
}

func TestExpiry_ReadPathsRemoveLazily(t *testing.T) {
	ops := []struct {
		name string
		call func(m *Manager, token string) error
	}{
		{"handles", func(m *Manager, token string) error {
			_, err := m.Handles(token)
			return err
		}},
		{"setNamespace", func(m *Manager, token string) error {
			return m.SetNamespace(token, "HSLIB")
		}},
		{"setTable", func(m *Manager, token string) error {
			return m.SetTable(token, "Person")
		}},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			clock := newTestClock()
			m, f := newTestManager(t, clock, 30*time.Minute)

			token, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
			require.NoError(t, err)

			notifications := 0
			require.NoError(t, m.OnExpiry(token, func(string, Cause) { notifications++ }))

			clock.Advance(31 * time.Minute)
			require.ErrorIs(t, op.call(m, token), ErrNoSession)

			assert.Equal(t, 0, m.Len(), "expired session must be removed, not left for the sweeper")
			assert.Equal(t, 1, notifications)
			assert.Equal(t, 1, f.made[0].closeCount())
		})
	}
}

func TestIsolation_TokensNeverCross(t *testing.T) {
	clock := newTestClock()
	m, f := newTestManager(t, clock, 30*time.Minute)

	t1, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
	require.NoError(t, err)
	t2, err := m.Start(context.Background(), "svc-2", testTarget("svc-2"), testCreds())
	require.NoError(t, err)
	require.NotEqual(t, t1, t2)

	h1, err := m.Handles(t1)
	require.NoError(t, err)
	h2, err := m.Handles(t2)
	require.NoError(t, err)
	assert.NotSame(t, h1, h2, "sessions must not share handles")

	require.NoError(t, m.SetNamespace(t1, "HSLIB"))
	require.NoError(t, m.SetTable(t1, "Person"))

	s2, err := m.Validate(t2)
	require.NoError(t, err)
	assert.Equal(t, "USER", s2.Namespace, "one session's context must not leak into another")
	assert.Empty(t, s2.Table)

	m.End(t1)
	_, err = m.Validate(t2)
	assert.NoError(t, err, "ending one session must not touch another")
	assert.Equal(t, 1, f.made[0].closeCount())
	assert.Equal(t, 0, f.made[1].closeCount())
}

func TestSweepOnce_RemovesOnlyAgedSessions(t *testing.T) {
	clock := newTestClock()
	m, _ := newTestManager(t, clock, 30*time.Minute)
	sw := &Sweeper{Mgr: m}

	old, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	fresh, err := m.Start(context.Background(), "svc-2", testTarget("svc-2"), testCreds())
	require.NoError(t, err)

	clock.Advance(15 * time.Minute) // old: 35m idle; fresh: 15m idle
	assert.Equal(t, 1, sw.SweepOnce())

	_, err = m.Validate(old)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = m.Validate(fresh)
	assert.NoError(t, err)
}

func TestSweeper_RunStopsOnContextCancel(t *testing.T) {
	clock := newTestClock()
	m, _ := newTestManager(t, clock, 30*time.Minute)
	sw := &Sweeper{Mgr: m, Interval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop on context cancellation")
	}
}

func TestShutdown_EndsSessionsAndJoinsWorkers(t *testing.T) {
	clock := newTestClock()
	m, f := newTestManager(t, clock, 30*time.Minute)

	token, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
	require.NoError(t, err)

	notifications := 0
	require.NoError(t, m.OnExpiry(token, func(string, Cause) { notifications++ }))

	workerRan := make(chan struct{})
	require.True(t, m.Go(func() { close(workerRan) }))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	<-workerRan

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, notifications, "shutdown removal is silent")
	assert.Equal(t, 1, f.made[0].closeCount())
	assert.False(t, m.Go(func() {}), "no new workers after shutdown")
}

func TestHandles_ExpiredTokenRejected(t *testing.T) {
	clock := newTestClock()
	m, _ := newTestManager(t, clock, 30*time.Minute)

	token, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	_, err = m.Handles(token)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStart_RejectsMissingInputs(t *testing.T) {
	clock := newTestClock()
	m, _ := newTestManager(t, clock, 30*time.Minute)

	_, err := m.Start(context.Background(), "", testTarget("svc-1"), testCreds())
	assert.Error(t, err)

	_, err = m.Start(context.Background(), "svc-1", lifecycle.Target{}, testCreds())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSession))
}
