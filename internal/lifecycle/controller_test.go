package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/bridge"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/fault"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/protocol"
)

// wireController builds an in-process bridge driving a manager through a
// controller, with connectionProgress payloads funneled into a channel.
func wireController(t *testing.T, prober Prober, next func(protocol.Command)) (*bridge.InProcess, *Manager, <-chan protocol.ProgressPayload) {
	t.Helper()
	br := bridge.NewInProcess(protocol.DeploymentDesktop)
	progress := make(chan protocol.ProgressPayload, 8)
	br.OnEvent(protocol.EvtConnectionProgress, func(evt protocol.Event) {
		p, err := protocol.DecodeProgress(evt.Payload)
		assert.NoError(t, err)
		progress <- p
	})
	mgr := NewManager(stubCreds{}, prober, ProgressSink(br.EmitEvent))
	ctrl := NewController(context.Background(), mgr, br.EmitEvent, next)
	br.HandleCommands(ctrl.HandleCommand)
	return br, mgr, progress
}

func recvProgress(t *testing.T, ch <-chan protocol.ProgressPayload) protocol.ProgressPayload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connectionProgress")
		panic("unreachable")
	}
}

func TestController_ConnectFlowsOverBridge(t *testing.T) {
	br, mgr, progress := wireController(t, proberFunc(func(context.Context, Target, Credentials) error {
		return nil
	}), nil)

	br.SendCommand(protocol.CmdConnect, protocol.MustMarshal(protocol.ConnectPayload{Server: "svc-1"}))

	first := recvProgress(t, progress)
	require.Equal(t, string(StateConnecting), first.Status)
	assert.Equal(t, "svc-1", first.Target)

	connected := recvProgress(t, progress)
	require.Equal(t, string(StateConnected), connected.Status)
	assert.Equal(t, "svc-1", connected.Target)

	br.SendCommand(protocol.CmdDisconnect, nil)
	assert.Equal(t, string(StateDisconnected), recvProgress(t, progress).Status)
	assert.Equal(t, StateDisconnected, mgr.State())
}

func TestController_CancelDuringConnect(t *testing.T) {
	br, _, progress := wireController(t, proberFunc(func(ctx context.Context, _ Target, _ Credentials) error {
		<-ctx.Done()
		return ctx.Err()
	}), nil)

	br.SendCommand(protocol.CmdConnect, protocol.MustMarshal(protocol.ConnectPayload{Server: "svc-1"}))
	require.Equal(t, string(StateConnecting), recvProgress(t, progress).Status)

	br.SendCommand(protocol.CmdCancelConnection, nil)
	cancelled := recvProgress(t, progress)
	require.Equal(t, string(StateCancelled), cancelled.Status)
	assert.Equal(t, string(fault.CodeCancelled), cancelled.Code)
}

func TestController_InvalidConnectPayloadEmitsError(t *testing.T) {
	br, mgr, _ := wireController(t, proberFunc(func(context.Context, Target, Credentials) error {
		return nil
	}), nil)

	errs := make(chan protocol.ErrorPayload, 1)
	br.OnEvent(protocol.EvtErrorOccurred, func(evt protocol.Event) {
		p, err := protocol.DecodeError(evt.Payload)
		assert.NoError(t, err)
		errs <- p
	})

	br.SendCommand(protocol.CmdConnect, protocol.MustMarshal(protocol.ConnectPayload{}))

	select {
	case p := <-errs:
		assert.Equal(t, string(fault.CodeProtocolViolation), p.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("no errorOccurred event for the malformed connect")
	}
	assert.Equal(t, StateIdle, mgr.State(), "a rejected connect must not start an attempt")
}

func TestController_DataCommandsPassThrough(t *testing.T) {
	forwarded := make(chan protocol.Command, 2)
	br, _, progress := wireController(t, proberFunc(func(context.Context, Target, Credentials) error {
		return nil
	}), func(cmd protocol.Command) { forwarded <- cmd })

	br.SendCommand(protocol.CmdListTables, nil)
	select {
	case cmd := <-forwarded:
		assert.Equal(t, protocol.CmdListTables, cmd.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("data command never reached the data layer")
	}

	// Connection management stays with the controller.
	br.SendCommand(protocol.CmdConnect, protocol.MustMarshal(protocol.ConnectPayload{Server: "svc-1"}))
	require.Equal(t, string(StateConnecting), recvProgress(t, progress).Status)
	select {
	case cmd := <-forwarded:
		t.Fatalf("connect leaked into the data layer: %s", cmd.Name)
	case <-time.After(50 * time.Millisecond):
	}
}
