// Package probe implements the default network prober: a bounded HTTP
// credential check against the target's management endpoint.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/fault"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/lifecycle"
)

// managementPath is the cheapest authenticated endpoint the server
// exposes; a 2xx here proves host, port, and credentials in one round
// trip.
const managementPath = "/api/atelier/"

// HTTP probes targets over their management REST endpoint with Basic
// auth. The zero value is not usable; call New.
type HTTP struct {
	client *http.Client
}

// New creates a prober. The per-attempt deadline comes from the caller's
// context, so the underlying client carries no timeout of its own.
func New() *HTTP {
	return &HTTP{client: &http.Client{}}
}

// NewWithClient substitutes the HTTP client. Test hook, also used for
// custom TLS configuration.
func NewWithClient(client *http.Client) *HTTP {
	return &HTTP{client: client}
}

// Probe performs one credential check, classified for the fault
// taxonomy: cancellation and deadline from ctx, 401/403 as credential
// rejection, connection errors as unreachable.
func (p *HTTP) Probe(ctx context.Context, target lifecycle.Target, creds lifecycle.Credentials) error {
	u := strings.TrimRight(target.BaseURL(), "/") + managementPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fault.Unreachable("invalid target address", err)
	}
	req.SetBasicAuth(creds.Username, string(creds.Secret))

	res, err := p.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return fault.Cancelled("connection attempt cancelled")
		case errors.Is(err, context.DeadlineExceeded):
			return fault.Timeout("server did not respond in time", err)
		default:
			return fault.Unreachable(fmt.Sprintf("cannot reach %s:%d", target.Host, target.Port), err)
		}
	}
	defer res.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fault.CredentialRejected("the server rejected the username or password")
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return nil
	default:
		return fault.Unreachable(fmt.Sprintf("unexpected response %d from management endpoint", res.StatusCode), nil)
	}
}
