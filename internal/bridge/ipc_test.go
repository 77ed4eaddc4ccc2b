package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/protocol"
)

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		panic("unreachable")
	}
}

func TestIPC_CommandCrossesBoundary(t *testing.T) {
	panelCh, hostCh := Pipe()

	received := make(chan protocol.Command, 1)
	host := NewIPCHost(protocol.DeploymentEmbedded, hostCh, func(cmd protocol.Command) {
		received <- cmd
	})
	defer host.Close()

	panel := NewIPC(protocol.DeploymentEmbedded, panelCh)
	defer panel.Close()

	panel.SendCommand(protocol.CmdListNamespaces, nil)

	cmd := waitFor(t, received)
	assert.Equal(t, protocol.CmdListNamespaces, cmd.Name)
}

func TestIPC_EventCrossesBoundary(t *testing.T) {
	panelCh, hostCh := Pipe()

	host := NewIPCHost(protocol.DeploymentEmbedded, hostCh, func(protocol.Command) {})
	defer host.Close()

	panel := NewIPC(protocol.DeploymentEmbedded, panelCh)
	defer panel.Close()

	received := make(chan protocol.Event, 1)
	panel.OnEvent(protocol.EvtNamespaces, func(evt protocol.Event) { received <- evt })

	host.SendEvent(protocol.EvtNamespaces, protocol.MustMarshal([]string{"USER", "SAMPLES"}))

	evt := waitFor(t, received)
	assert.Equal(t, protocol.EvtNamespaces, evt.Name)
}

func TestIPCHost_InvalidCommandBlockedAtBoundary(t *testing.T) {
	panelCh, hostCh := Pipe()

	received := make(chan protocol.Command, 1)
	host := NewIPCHost(protocol.DeploymentEmbedded, hostCh, func(cmd protocol.Command) {
		received <- cmd
	})
	defer host.Close()

	// Bypass the panel adapter entirely and write a raw frame with a name
	// outside the vocabulary: the privileged boundary must drop it even
	// though the sender skipped its own validation.
	raw, err := protocol.EncodeCommand(protocol.Command{Name: protocol.CommandName("execShell")})
	require.NoError(t, err)
	require.NoError(t, panelCh.Send(raw))

	// A valid command sent afterwards proves the loop survived the drop.
	ok, err := protocol.EncodeCommand(protocol.Command{Name: protocol.CmdListTables})
	require.NoError(t, err)
	require.NoError(t, panelCh.Send(ok))

	cmd := waitFor(t, received)
	assert.Equal(t, protocol.CmdListTables, cmd.Name, "only the valid command may pass the boundary")
	assert.Empty(t, received, "invalid command must not be delivered")
}

func TestIPC_MalformedEventFrameDropped(t *testing.T) {
	panelCh, hostCh := Pipe()

	panel := NewIPC(protocol.DeploymentEmbedded, panelCh)
	defer panel.Close()

	received := make(chan protocol.Event, 1)
	panel.OnEvent(protocol.EvtTables, func(evt protocol.Event) { received <- evt })

	require.NoError(t, hostCh.Send([]byte(`{broken`)))

	good, err := protocol.EncodeEvent(protocol.Event{Name: protocol.EvtTables})
	require.NoError(t, err)
	require.NoError(t, hostCh.Send(good))

	evt := waitFor(t, received)
	assert.Equal(t, protocol.EvtTables, evt.Name)
}

func TestIPC_EmitLocal_DoesNotCrossBoundary(t *testing.T) {
	panelCh, hostCh := Pipe()

	hostSaw := make(chan []byte, 1)
	go func() {
		for data := range hostCh.Receive() {
			hostSaw <- data
		}
	}()

	panel := NewIPC(protocol.DeploymentEmbedded, panelCh)
	defer panel.Close()

	var local int
	panel.OnEvent(protocol.EvtViewState, func(protocol.Event) { local++ })
	panel.EmitLocal(protocol.EvtViewState, nil)

	assert.Equal(t, 1, local, "local emission must reach same-side handlers synchronously")
	select {
	case <-hostSaw:
		t.Fatal("local emission must not be transmitted to the remote peer")
	case <-time.After(50 * time.Millisecond):
	}
}
