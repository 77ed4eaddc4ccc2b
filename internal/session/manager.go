// Package session is the multi-tenant session table for the web
// deployment: per-token credential isolation, sliding-window expiry,
// and a single removal path shared by explicit end, lazy expiry, and
// the periodic sweeper.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/lifecycle"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/metrics"
)

const (
	// DefaultTimeout is the sliding inactivity window after which a
	// session is eligible for removal.
	DefaultTimeout = 30 * time.Minute

	// tokenBytes of entropy per session token; hex-encoded on the wire.
	tokenBytes = 32
)

// ErrNoSession is returned for an unknown or expired token. Callers must
// not be able to distinguish the two cases.
var ErrNoSession = errors.New("no session")

// Handles is the set of per-session capability objects created on start
// (query executor, metadata browser). They are never shared across
// sessions and are closed exactly once on removal.
type Handles interface {
	Close()
}

// HandleFactory builds the handles for a new session. It performs the
// credential probe against the target; a returned error (classified via
// the fault package) means no session is created.
type HandleFactory interface {
	New(ctx context.Context, target lifecycle.Target, creds lifecycle.Credentials) (Handles, error)
}

// ExpiryNotifier is invoked exactly once, before the session is removed,
// when removal is caused by expiry or an explicit end, so the owning
// transport can close the client's connection from its side. Process
// shutdown stays silent. It runs under the manager's lock and must not
// call back into the Manager.
type ExpiryNotifier func(token string, cause Cause)

// session is the internal record. Credentials live only here and are
// zeroed on removal.
type session struct {
	token        string
	identity     string
	target       lifecycle.Target
	creds        lifecycle.Credentials
	handles      Handles
	namespace    string
	table        string
	createdAt    time.Time
	lastActivity time.Time
	onExpiry     ExpiryNotifier
}

// Snapshot is the externally visible view of a session. It never carries
// credential material.
type Snapshot struct {
	Token        string
	Identity     string
	Target       string
	Namespace    string
	Table        string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Manager owns the session table. All lookups are strictly by token;
// there is no enumeration surface that exposes one session's state to
// another's traffic.
type Manager struct {
	factory HandleFactory
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session

	workers registry
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// withClock substitutes the time source. Test hook.
func withClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty session table.
func NewManager(factory HandleFactory, opts ...Option) *Manager {
	m := &Manager{
		factory:  factory,
		timeout:  DefaultTimeout,
		logger:   log.WithComponent("session"),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Start probes the target with the given credentials and, on success,
// stores a new session under a fresh token. The credentials are retained
// in memory for the session's lifetime and zeroed on removal; they are
// never logged or returned.
func (m *Manager) Start(ctx context.Context, identity string, target lifecycle.Target, creds lifecycle.Credentials) (string, error) {
	if identity == "" || target.Host == "" {
		return "", errors.New("session: identity and target are required")
	}

	handles, err := m.factory.New(ctx, target, creds)
	if err != nil {
		creds.Zero()
		return "", err
	}

	token, err := newToken()
	if err != nil {
		handles.Close()
		creds.Zero()
		return "", err
	}

	now := m.now()
	s := &session{
		token:        token,
		identity:     identity,
		target:       target,
		creds:        creds,
		handles:      handles,
		namespace:    target.Namespace,
		createdAt:    now,
		lastActivity: now,
	}

	m.mu.Lock()
	m.sessions[token] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SessionsStarted.Inc()
	metrics.SessionsActive.Set(float64(n))
	m.logger.Info().
		Str(log.FieldSessionID, identity).
		Str(log.FieldTarget, target.Name).
		Int("active", n).
		Msg("session started")
	return token, nil
}

// Validate looks up the token and refreshes its activity timestamp. Any
// successful validation counts as activity — this is the sliding window.
// An expired session is removed here (lazy expiry) through the same path
// the sweeper uses, and its notifier fires before removal.
func (m *Manager) Validate(token string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return Snapshot{}, ErrNoSession
	}
	if m.expiredLocked(s) {
		m.removeLocked(s, CauseExpired)
		return Snapshot{}, ErrNoSession
	}
	s.lastActivity = m.now()
	return snapshotOf(s), nil
}

// Touch refreshes activity for traffic that does not flow through
// Validate, such as individual socket messages.
func (m *Manager) Touch(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return ErrNoSession
	}
	if m.expiredLocked(s) {
		m.removeLocked(s, CauseExpired)
		return ErrNoSession
	}
	s.lastActivity = m.now()
	return nil
}

// End removes the session explicitly. The registered notifier fires so
// any live connection for the session is closed from the owning side.
// Unknown tokens are a no-op.
func (m *Manager) End(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[token]; ok {
		m.removeLocked(s, CauseEnded)
	}
}

// OnExpiry registers the notifier invoked when the session is removed by
// expiry or explicit end, so the owning transport can push a final event
// and close its client. At most one notifier per token; registering
// replaces.
func (m *Manager) OnExpiry(token string, fn ExpiryNotifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return ErrNoSession
	}
	s.onExpiry = fn
	return nil
}

// Handles returns the capability objects for the token without touching
// the activity window. An expired session is removed here, same as in
// Validate.
func (m *Manager) Handles(token string) (Handles, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrNoSession
	}
	if m.expiredLocked(s) {
		m.removeLocked(s, CauseExpired)
		return nil, ErrNoSession
	}
	return s.handles, nil
}

// SetNamespace records the session's current namespace.
func (m *Manager) SetNamespace(token, namespace string) error {
	return m.update(token, func(s *session) { s.namespace = namespace })
}

// SetTable records the session's currently open table.
func (m *Manager) SetTable(token, table string) error {
	return m.update(token, func(s *session) { s.table = table })
}

func (m *Manager) update(token string, fn func(*session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return ErrNoSession
	}
	if m.expiredLocked(s) {
		m.removeLocked(s, CauseExpired)
		return ErrNoSession
	}
	fn(s)
	s.lastActivity = m.now()
	return nil
}

// SetTimeout adjusts the sliding window at runtime; it applies to all
// subsequent expiry checks, existing sessions included.
func (m *Manager) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Go runs fn on a manager-owned goroutine that Shutdown will join.
// Returns false once shutdown has begun.
func (m *Manager) Go(fn func()) bool {
	return m.workers.Go(fn)
}

// Shutdown ends every session and joins manager-owned goroutines,
// bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, s := range m.sessions {
		m.removeLocked(s, CauseShutdown)
	}
	m.mu.Unlock()

	return m.workers.CloseAndWait(ctx)
}

// Cause describes why a session was removed. It is handed to the
// registered notifier and labels the removal metric.
type Cause string

const (
	CauseEnded    Cause = "ended"
	CauseExpired  Cause = "expired"
	CauseShutdown Cause = "shutdown"
)

func (m *Manager) expiredLocked(s *session) bool {
	return m.now().Sub(s.lastActivity) > m.timeout
}

// removeLocked is the only code path that ever deletes a session: End,
// lazy expiry on every read path, the sweeper, and Shutdown all funnel
// here. Notifier first (expiry and explicit end; shutdown is silent),
// then zero credentials, close handles, drop the entry. Caller holds m.mu.
func (m *Manager) removeLocked(s *session, cause Cause) {
	if _, ok := m.sessions[s.token]; !ok {
		return
	}
	if cause != CauseShutdown && s.onExpiry != nil {
		s.onExpiry(s.token, cause)
	}
	s.onExpiry = nil
	s.creds.Zero()
	if s.handles != nil {
		s.handles.Close()
		s.handles = nil
	}
	delete(m.sessions, s.token)

	metrics.SessionsEnded.WithLabelValues(string(cause)).Inc()
	metrics.SessionsActive.Set(float64(len(m.sessions)))
	m.logger.Info().
		Str(log.FieldSessionID, s.identity).
		Str(log.FieldReason, string(cause)).
		Int("active", len(m.sessions)).
		Msg("session removed")
}

func snapshotOf(s *session) Snapshot {
	return Snapshot{
		Token:        s.token,
		Identity:     s.identity,
		Target:       s.target.Name,
		Namespace:    s.namespace,
		Table:        s.table,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}
