package lifecycle

import (
	"context"
	"fmt"
)

// Target describes one remote database server.
type Target struct {
	// Name is the configured identity shown to the user ("svc-1").
	Name      string
	Host      string
	Port      int
	Namespace string
	UseTLS    bool
	// PathPrefix is prepended to management API paths on shared hosts.
	PathPrefix string
}

// BaseURL renders the management endpoint root for this target.
func (t Target) BaseURL() string {
	scheme := "http"
	if t.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, t.Host, t.Port, t.PathPrefix)
}

// Credentials is in-memory-only secret material for one connection
// attempt or one active session.
type Credentials struct {
	Username string
	Secret   []byte
}

// Zero overwrites the secret material in place.
func (c *Credentials) Zero() {
	for i := range c.Secret {
		c.Secret[i] = 0
	}
	c.Secret = nil
}

// CredentialSource resolves a named identity to its target descriptor and
// credentials. The core never persists the secret beyond the attempt or
// session it was fetched for.
type CredentialSource interface {
	Lookup(ctx context.Context, identity string) (Target, Credentials, error)
}

// Prober performs the bounded network probe during connecting. It must
// honor ctx cancellation by aborting the underlying request, and return
// errors classified via the fault package.
type Prober interface {
	Probe(ctx context.Context, target Target, creds Credentials) error
}

// Progress is emitted synchronously with every state transition.
type Progress struct {
	Status State
	// Target is the identity the transition concerns, empty for idle.
	Target string
	// Message is human-readable, present on failures.
	Message string
	// Code is the stable fault code, present on failures.
	Code string
}

// EventSink receives progress notifications. It is invoked synchronously
// with the state change, under the manager's lock, so state and
// notification can never drift; it must not call back into the Manager.
type EventSink func(Progress)
