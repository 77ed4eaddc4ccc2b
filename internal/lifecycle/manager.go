// Package lifecycle drives a single connection attempt from user intent
// to terminal state: at most one in-flight attempt per manager, fresh
// cancellation token per attempt, and a post-await race guard so a late
// result from an abandoned attempt can never mutate state.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/fault"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/metrics"
)

// DefaultConnectTimeout bounds one connection attempt end to end
// (credential fetch + network probe).
const DefaultConnectTimeout = 10 * time.Second

// Manager is the single-session connection lifecycle state machine. The
// desktop and embedded deployments own exactly one; the multi-tenant
// server is the N-session generalization built on the session package.
type Manager struct {
	creds  CredentialSource
	prober Prober
	sink   EventSink

	connectTimeout time.Duration
	logger         zerolog.Logger

	mu       sync.Mutex
	state    State
	identity string // set entering connecting, cleared on idle/disconnected
	// attempt is the cancellation token for the in-flight probe. It exists
	// only while state is connecting; attemptSeq staleness-checks results
	// arriving after the attempt was abandoned.
	attemptSeq    uint64
	attemptCancel context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithConnectTimeout overrides DefaultConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.connectTimeout = d
		}
	}
}

// NewManager creates a lifecycle manager in state idle.
func NewManager(creds CredentialSource, prober Prober, sink EventSink, opts ...Option) *Manager {
	m := &Manager{
		creds:          creds,
		prober:         prober,
		sink:           sink,
		connectTimeout: DefaultConnectTimeout,
		logger:         log.WithComponent("lifecycle"),
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TargetIdentity returns the identity of the current or in-flight target,
// empty when idle or disconnected.
func (m *Manager) TargetIdentity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// transitionLocked flips the state and emits the progress event in the
// same critical section. Caller holds m.mu.
func (m *Manager) transitionLocked(to State, p Progress) {
	from := m.state
	if !canTransition(from, to) {
		// Listed edges are the only legal moves; anything else is a
		// programmer error worth a loud log, not a crash.
		m.logger.Error().
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Msg("illegal lifecycle transition suppressed")
		return
	}
	m.state = to
	m.logger.Debug().
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Str(log.FieldTarget, p.Target).
		Msg("lifecycle transition")
	if m.sink != nil {
		m.sink(p)
	}
}

// Connect starts a connection attempt for the named identity.
//
//   - Already connected to the identical identity: no-op.
//   - Already connecting to the identical identity: no-op.
//   - Connecting to a different identity: the in-flight attempt is
//     cancelled first (exactly one cancelled event for it).
//   - Connected to a different identity: the current connection is
//     disconnected first.
//
// The attempt itself runs asynchronously; its outcome arrives as a
// terminal progress event.
func (m *Manager) Connect(ctx context.Context, identity string) {
	m.mu.Lock()

	switch m.state {
	case StateConnected:
		if m.identity == identity {
			m.mu.Unlock()
			return
		}
		m.transitionLocked(StateDisconnected, Progress{Status: StateDisconnected, Target: m.identity})
		m.identity = ""
	case StateConnecting:
		if m.identity == identity {
			m.mu.Unlock()
			return
		}
		m.abandonAttemptLocked()
		m.transitionLocked(StateCancelled, Progress{
			Status:  StateCancelled,
			Target:  m.identity,
			Code:    string(fault.CodeCancelled),
			Message: "connection attempt superseded",
		})
	}

	m.identity = identity
	m.attemptSeq++
	seq := m.attemptSeq
	attemptCtx, cancel := context.WithCancel(ctx)
	m.attemptCancel = cancel

	m.transitionLocked(StateConnecting, Progress{Status: StateConnecting, Target: identity})
	m.mu.Unlock()

	go m.runAttempt(attemptCtx, seq, identity)
}

// abandonAttemptLocked invalidates the in-flight cancellation token so a
// late-arriving result is recognized as stale. Caller holds m.mu.
func (m *Manager) abandonAttemptLocked() {
	if m.attemptCancel != nil {
		m.attemptCancel()
		m.attemptCancel = nil
	}
	m.attemptSeq++
}

func (m *Manager) runAttempt(ctx context.Context, seq uint64, identity string) {
	ctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	target, creds, err := m.creds.Lookup(ctx, identity)
	if err == nil {
		err = m.prober.Probe(ctx, target, creds)
		// Secret material never outlives the attempt.
		creds.Zero()
	}
	m.finishAttempt(seq, identity, err)
}

// finishAttempt applies the probe outcome — unless the attempt has been
// abandoned in the meantime. This is the race guard: after the await,
// re-check that the token is still the current one before acting.
func (m *Manager) finishAttempt(seq uint64, identity string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attemptSeq != seq || m.state != StateConnecting {
		m.logger.Debug().
			Str(log.FieldTarget, identity).
			Msg("discarding result of abandoned connection attempt")
		return
	}
	m.attemptCancel = nil

	if err == nil {
		metrics.ConnectAttempts.WithLabelValues("connected").Inc()
		m.transitionLocked(StateConnected, Progress{Status: StateConnected, Target: identity})
		return
	}

	code := fault.CodeOf(err)
	metrics.ConnectAttempts.WithLabelValues(string(code)).Inc()
	if code == fault.CodeCancelled {
		m.transitionLocked(StateCancelled, Progress{
			Status:  StateCancelled,
			Target:  identity,
			Code:    string(code),
			Message: "connection attempt cancelled",
		})
		return
	}

	msg := fault.MessageOf(err)
	if code == fault.CodeTimeout {
		msg = "server did not respond within the connection timeout"
	}
	m.transitionLocked(StateError, Progress{
		Status:  StateError,
		Target:  identity,
		Code:    string(code),
		Message: msg,
	})
}

// Cancel aborts an in-flight connection attempt. Safe to call at any
// point during connecting, including immediately before the attempt would
// have completed: the state flips to cancelled here and now, and the
// probe's eventual result is discarded as stale. Outside connecting it is
// a no-op.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnecting {
		return
	}
	m.abandonAttemptLocked()
	metrics.ConnectAttempts.WithLabelValues("cancelled").Inc()
	m.transitionLocked(StateCancelled, Progress{
		Status:  StateCancelled,
		Target:  m.identity,
		Code:    string(fault.CodeCancelled),
		Message: "connection attempt cancelled",
	})
}

// Disconnect tears down the active connection. No-op outside connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return
	}
	identity := m.identity
	m.identity = ""
	m.transitionLocked(StateDisconnected, Progress{Status: StateDisconnected, Target: identity})
}
