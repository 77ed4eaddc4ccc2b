package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestManager_ShutdownLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := newTestClock()
	m, _ := newTestManager(t, clock, 30*time.Minute)

	for i := 0; i < 3; i++ {
		_, err := m.Start(context.Background(), "svc-1", testTarget("svc-1"), testCreds())
		require.NoError(t, err)
	}

	// Workers block until shutdown releases them.
	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		ok := m.Go(func() { <-release })
		require.True(t, ok)
	}

	sweeper := &Sweeper{Mgr: m, Interval: 10 * time.Millisecond}
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(sweepCtx)
	}()

	close(release)
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(shutdownCtx))

	select {
	case <-sweepDone:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
