package bridge

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/protocol"
)

func TestInProcess_SendCommand_DeliversToSinkExactlyOnce(t *testing.T) {
	b := NewInProcess(protocol.DeploymentDesktop)

	var got []protocol.Command
	b.HandleCommands(func(cmd protocol.Command) { got = append(got, cmd) })

	payload := protocol.MustMarshal(protocol.ConnectPayload{Server: "svc-1"})
	b.SendCommand(protocol.CmdConnect, payload)

	require.Len(t, got, 1)
	assert.Equal(t, protocol.CmdConnect, got[0].Name)
}

func TestInProcess_SendCommand_InvalidNameIsDropped(t *testing.T) {
	b := NewInProcess(protocol.DeploymentDesktop)

	called := false
	b.HandleCommands(func(protocol.Command) { called = true })

	b.SendCommand(protocol.CommandName("formatDisk"), nil)

	assert.False(t, called, "invalid command name must never reach the sink")
}

func TestInProcess_SinkRegistrationRacesWithTraffic(t *testing.T) {
	b := NewInProcess(protocol.DeploymentDesktop)

	// Commands flow while the sink is (re)registered; run with -race.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			b.SendCommand(protocol.CmdListTables, nil)
		}
	}()

	var mu sync.Mutex
	var got []protocol.CommandName
	for i := 0; i < 10; i++ {
		b.HandleCommands(func(cmd protocol.Command) {
			mu.Lock()
			got = append(got, cmd.Name)
			mu.Unlock()
		})
	}
	<-done

	b.SendCommand(protocol.CmdGetPage, nil)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	assert.Equal(t, protocol.CmdGetPage, got[len(got)-1], "post-registration command must reach the current sink")
}

func TestInProcess_EmitEvent_AllHandlersInvoked(t *testing.T) {
	b := NewInProcess(protocol.DeploymentDesktop)

	var a, c int
	b.OnEvent(protocol.EvtTables, func(protocol.Event) { a++ })
	b.OnEvent(protocol.EvtTables, func(protocol.Event) { c++ })

	b.EmitEvent(protocol.EvtTables, nil)

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, c)
}

func TestInProcess_OffEvent_LeavesOtherHandlersRegistered(t *testing.T) {
	b := NewInProcess(protocol.DeploymentDesktop)

	var a, c int
	subA := b.OnEvent(protocol.EvtTables, func(protocol.Event) { a++ })
	b.OnEvent(protocol.EvtTables, func(protocol.Event) { c++ })

	b.OffEvent(subA)
	b.EmitEvent(protocol.EvtTables, nil)

	assert.Equal(t, 0, a, "removed handler must not fire")
	assert.Equal(t, 1, c, "remaining handler must keep receiving events")
}

func TestInProcess_DispatchSnapshotsRegistrations(t *testing.T) {
	b := NewInProcess(protocol.DeploymentDesktop)

	// Handler A removes handler B during dispatch. B was part of the
	// snapshot, so it still fires for this event, but not for the next.
	var bCalls int
	var subB Subscription
	b.OnEvent(protocol.EvtTables, func(protocol.Event) { b.OffEvent(subB) })
	subB = b.OnEvent(protocol.EvtTables, func(protocol.Event) { bCalls++ })

	b.EmitEvent(protocol.EvtTables, nil)
	assert.Equal(t, 1, bCalls, "handler removed mid-dispatch still receives the in-flight event")

	b.EmitEvent(protocol.EvtTables, nil)
	assert.Equal(t, 1, bCalls, "handler removed mid-dispatch must not receive later events")
}

func TestInProcess_EmitLocal_ValidatesName(t *testing.T) {
	b := NewInProcess(protocol.DeploymentDesktop)

	var fired int
	b.OnEvent(protocol.EvtViewState, func(protocol.Event) { fired++ })

	b.EmitLocal(protocol.EvtViewState, protocol.MustMarshal(protocol.ViewStatePayload{State: json.RawMessage(`{"col":3}`)}))
	b.EmitLocal(protocol.EvtSessionExpired, nil) // not in the desktop vocabulary

	assert.Equal(t, 1, fired)
}

func TestInProcess_StateSlot_IsBridgeLocal(t *testing.T) {
	b := NewInProcess(protocol.DeploymentDesktop)

	assert.Nil(t, b.State())
	b.SetState(json.RawMessage(`{"scroll":42}`))
	assert.JSONEq(t, `{"scroll":42}`, string(b.State()))

	other := NewInProcess(protocol.DeploymentDesktop)
	assert.Nil(t, other.State(), "state slot must not leak across bridges")
}
