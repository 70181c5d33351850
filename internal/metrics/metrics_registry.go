package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "guardian"

var (
	GatewayState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gateway_state",
		Help:      "Current gateway session state (0 connecting, 1 awaiting hello, 2 identified, 3 ready, 4 closed)",
	})

	GatewayReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_reconnects_total",
		Help:      "Gateway sessions ended, by reason",
	}, []string{"reason"})

	HeartbeatLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_heartbeat_latency_seconds",
		Help:      "Heartbeat to acknowledgement round trip",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_received_total",
		Help:      "Dispatch events received, by type",
	}, []string{"type"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Dispatch events dropped before any handler ran, by reason",
	}, []string{"reason"})

	HandlersInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "handlers_in_flight",
		Help:      "Event handler goroutines currently running",
	})

	Incidents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "incidents_total",
		Help:      "Detector verdicts that produced an incident, by rule",
	}, []string{"rule"})

	Punishments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "punishments_total",
		Help:      "Punishment attempts, by outcome",
	}, []string{"outcome"})

	RemediationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "remediation_request_seconds",
		Help:      "Outbound remediation request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})

	AuditLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_lookups_total",
		Help:      "Audit correlation lookups, by source",
	}, []string{"source"})

	ThreadLockDeletes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "thread_lock_deletes_total",
		Help:      "Threads deleted because the active thread limit was exceeded",
	})
)

// Session state values exported through GatewayState.
const (
	StateConnecting = iota
	StateAwaitingHello
	StateIdentified
	StateReady
	StateClosed
)
