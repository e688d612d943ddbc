package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatcher Metrics
var (
	// DispatcherTicksTotal tracks dispatch cycles by outcome
	DispatcherTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_ticks_total",
			Help: "Total dispatch cycles by outcome (ok/scan_error/skipped_overlap/skipped_not_leader)",
		},
		[]string{"outcome"},
	)

	// DispatcherTickDuration tracks dispatch cycle duration
	DispatcherTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatcher_tick_duration_seconds",
			Help:    "Dispatch cycle duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// DispatchesTotal tracks processed dispatch records by result
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatches_total",
			Help: "Total dispatch records processed by result (completed/retried/failed/update_error)",
		},
		[]string{"result"},
	)

	// DispatchStaleClaimsReleased tracks dispatching records released after claim expiry
	DispatchStaleClaimsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_stale_claims_released_total",
			Help: "Total stale dispatching claims released back to pending",
		},
	)

	// DispatcherBreakerState tracks the scan circuit breaker state (0=closed, 1=half-open, 2=open)
	DispatcherBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_breaker_state",
			Help: "Scan circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// Hub Metrics
var (
	// HubConnectedClients tracks current connected WebSocket clients
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	// HubEventsPublished tracks events fanned out to subscribers
	HubEventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_events_published_total",
			Help: "Total animation events published to the hub",
		},
	)

	// HubSlowClientsEvicted tracks slow clients evicted due to full send buffers
	HubSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_evicted_total",
			Help: "Total slow WebSocket clients evicted due to buffer full",
		},
	)

	// HubPingFailures tracks WebSocket ping failures
	HubPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)
)

// WebSocket Endpoint Metrics
var (
	// WebSocketConnectionsTotal tracks connection attempts by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result (accepted/upgrade_failed/register_failed)",
		},
		[]string{"result"},
	)

	// WebSocketConnectionsRejected tracks rejected connection attempts by reason
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (ip_limit/global_limit/rate_limit)",
		},
		[]string{"reason"},
	)
)

// Instance Coordination Metrics
var (
	// LeaderElections tracks successful leader elections
	LeaderElections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leader_elections_total",
			Help: "Total successful leader elections",
		},
	)

	// IsLeader tracks whether this instance currently leads dispatching
	IsLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "1 if this instance is the dispatch leader, 0 otherwise",
		},
	)
)
