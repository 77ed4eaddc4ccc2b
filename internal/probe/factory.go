package probe

import (
	"context"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/lifecycle"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/session"
)

// Factory is the default session.HandleFactory: it validates the
// credentials with a probe, then builds the per-session handles through
// the Build hook. The embedding product supplies Build with its data
// executor; without one the session carries inert handles and data
// commands are refused downstream.
type Factory struct {
	Prober *HTTP
	Build  func(target lifecycle.Target, creds lifecycle.Credentials) session.Handles
}

// New probes the target and builds handles for one session.
func (f *Factory) New(ctx context.Context, target lifecycle.Target, creds lifecycle.Credentials) (session.Handles, error) {
	if err := f.Prober.Probe(ctx, target, creds); err != nil {
		return nil, err
	}
	if f.Build != nil {
		return f.Build(target, creds), nil
	}
	return inertHandles{}, nil
}

type inertHandles struct{}

func (inertHandles) Close() {}
