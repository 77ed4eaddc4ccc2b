// Package metrics exposes the Prometheus instruments for the session and
// connection core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks the number of live sessions in the manager.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tabled_sessions_active",
		Help: "Current number of active sessions",
	})

	// SessionsStarted counts sessions created since process start.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tabled_sessions_started_total",
		Help: "Total number of sessions started",
	})

	// SessionsEnded counts session removals by cause.
	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabled_sessions_ended_total",
		Help: "Total number of sessions ended, by cause",
	}, []string{"cause"})

	// ConnectAttempts counts lifecycle connection attempts by terminal outcome.
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabled_connect_attempts_total",
		Help: "Total connection attempts by terminal outcome",
	}, []string{"outcome"})

	// CommandsDispatched counts commands accepted by a bridge, by name.
	CommandsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabled_commands_dispatched_total",
		Help: "Total commands accepted at a transport boundary, by name",
	}, []string{"command"})

	// ProtocolViolations counts invalid names dropped at a boundary.
	ProtocolViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabled_protocol_violations_total",
		Help: "Total invalid command/event names dropped, by boundary",
	}, []string{"boundary"})

	// WSQueueDrops counts pre-open command frames evicted from a full queue.
	WSQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tabled_ws_queue_drops_total",
		Help: "Total buffered commands dropped because the pre-open queue was full",
	})
)
