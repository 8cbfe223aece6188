package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the workflow collectors. A nil *Metrics records nothing.
type Metrics struct {
	commands     *prometheus.CounterVec
	commandTime  *prometheus.HistogramVec
	gatewayCalls *prometheus.CounterVec
	gatewayTime  *prometheus.HistogramVec
	lockWait     prometheus.Histogram
	cacheLookups *prometheus.CounterVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modality_workflow",
			Name:      "commands_total",
			Help:      "Lifecycle commands by operation and outcome.",
		}, []string{"operation", "outcome"}),
		commandTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modality_workflow",
			Name:      "command_duration_seconds",
			Help:      "Lifecycle command latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"operation"}),
		gatewayCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modality_workflow",
			Name:      "gateway_calls_total",
			Help:      "Protocol engine calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		gatewayTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modality_workflow",
			Name:      "gateway_call_duration_seconds",
			Help:      "Protocol engine call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"operation"}),
		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "modality_workflow",
			Name:      "session_lock_wait_seconds",
			Help:      "Time spent waiting for exclusive store access.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modality_workflow",
			Name:      "worklist_cache_lookups_total",
			Help:      "Worklist query cache lookups by result.",
		}, []string{"result"}),
	}
}

// ObserveCommand records one lifecycle command
func (m *Metrics) ObserveCommand(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(operation, outcome).Inc()
	m.commandTime.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveGatewayCall records one protocol engine call
func (m *Metrics) ObserveGatewayCall(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(operation, outcome).Inc()
	m.gatewayTime.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveLockWait records how long a sequence waited for the session lock
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

// CacheHit counts a worklist cache hit
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss counts a worklist cache miss
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}
