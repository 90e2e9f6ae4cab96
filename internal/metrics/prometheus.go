package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Embedding NopMetrics keeps the collector forward-compatible when the
// MetricsCollector interface grows; every current method is instrumented.
type PrometheusCollector struct {
	*NopMetrics

	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// Registry metrics
	connectsTotal    prometheus.Counter
	disconnectsTotal *prometheus.CounterVec
	connectedClients prometheus.Gauge
	broadcastsTotal  prometheus.Counter
	broadcastReach   prometheus.Histogram

	// Correlator metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	strayResults    *prometheus.CounterVec
	pendingRequests prometheus.Gauge

	// Presence metrics
	presenceOps   *prometheus.CounterVec
	directoryMode prometheus.Gauge

	// Session metrics
	handshakesCreated  prometheus.Counter
	handshakesConsumed *prometheus.CounterVec
	sessionsStarted    *prometheus.CounterVec
	sessionsEnded      *prometheus.CounterVec
	activeSessions     prometheus.Gauge
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "relay" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "relay"
	}

	return &PrometheusCollector{NopMetrics: NewNop(), reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.connectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "connects_total",
			Help:      "Total client registrations accepted.",
		})

		p.disconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "disconnects_total",
			Help:      "Total client deregistrations by reason.",
		}, []string{"reason"})

		p.connectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "connected_clients",
			Help:      "Current number of live client connections on this instance.",
		})

		p.broadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "broadcasts_total",
			Help:      "Total token-group broadcast fan-outs.",
		})

		p.broadcastReach = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "broadcast_reach",
			Help:      "Group members reached per broadcast.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		})

		p.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "correlator",
			Name:      "requests_total",
			Help:      "Total request frames written to clients by kind.",
		}, []string{"kind"})

		p.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "correlator",
			Name:      "request_duration_seconds",
			Help:      "Seconds between request send and terminal outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		}, []string{"kind", "outcome"})

		p.strayResults = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "correlator",
			Name:      "stray_results_total",
			Help:      "Result frames that matched no pending request.",
		}, []string{"kind"})

		p.pendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "correlator",
			Name:      "pending_requests",
			Help:      "Current number of in-flight correlated requests.",
		})

		p.presenceOps = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "presence",
			Name:      "operations_total",
			Help:      "Presence directory operations by type and result.",
		}, []string{"operation", "result"})

		p.directoryMode = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "presence",
			Name:      "local_only",
			Help:      "Directory mode (1=local-only, 0=distributed).",
		})

		p.handshakesCreated = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "handshakes_created_total",
			Help:      "Total handshakes issued.",
		})

		p.handshakesConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "handshakes_consumed_total",
			Help:      "Handshake consumption attempts by outcome.",
		}, []string{"outcome"})

		p.sessionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "starts_total",
			Help:      "Start-session attempts reaching a terminal state by outcome.",
		}, []string{"outcome"})

		p.sessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "ends_total",
			Help:      "Session teardowns by reason.",
		}, []string{"reason"})

		p.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Current number of live headless sessions.",
		})

		p.reg.MustRegister(p.connectsTotal)
		p.reg.MustRegister(p.disconnectsTotal)
		p.reg.MustRegister(p.connectedClients)
		p.reg.MustRegister(p.broadcastsTotal)
		p.reg.MustRegister(p.broadcastReach)
		p.reg.MustRegister(p.requestsTotal)
		p.reg.MustRegister(p.requestDuration)
		p.reg.MustRegister(p.strayResults)
		p.reg.MustRegister(p.pendingRequests)
		p.reg.MustRegister(p.presenceOps)
		p.reg.MustRegister(p.directoryMode)
		p.reg.MustRegister(p.handshakesCreated)
		p.reg.MustRegister(p.handshakesConsumed)
		p.reg.MustRegister(p.sessionsStarted)
		p.reg.MustRegister(p.sessionsEnded)
		p.reg.MustRegister(p.activeSessions)
	})
}

// RegistryMetrics implementation

// RecordClientConnected increments the registration counter.
func (p *PrometheusCollector) RecordClientConnected() {
	p.ensureRegistered()
	p.connectsTotal.Inc()
}

// RecordClientDisconnected increments the deregistration counter by reason.
func (p *PrometheusCollector) RecordClientDisconnected(reason types.DisconnectReason) {
	p.ensureRegistered()
	p.disconnectsTotal.WithLabelValues(string(reason)).Inc()
}

// SetConnectedClients sets the live connection gauge.
func (p *PrometheusCollector) SetConnectedClients(count int) {
	p.ensureRegistered()
	p.connectedClients.Set(float64(count))
}

// RecordBroadcast records one fan-out and its reach.
func (p *PrometheusCollector) RecordBroadcast(delivered int) {
	p.ensureRegistered()
	p.broadcastsTotal.Inc()
	p.broadcastReach.Observe(float64(delivered))
}

// CorrelatorMetrics implementation

// RecordRequestSent increments the request counter for the kind.
func (p *PrometheusCollector) RecordRequestSent(kind string) {
	p.ensureRegistered()
	p.requestsTotal.WithLabelValues(kind).Inc()
}

// RecordRequestResolved observes the request duration labeled by outcome.
func (p *PrometheusCollector) RecordRequestResolved(kind string, outcome string, duration float64) {
	p.ensureRegistered()
	p.requestDuration.WithLabelValues(kind, outcome).Observe(duration)
}

// RecordStrayResult increments the stray result counter for the kind.
func (p *PrometheusCollector) RecordStrayResult(kind string) {
	p.ensureRegistered()
	p.strayResults.WithLabelValues(kind).Inc()
}

// SetPendingRequests sets the in-flight request gauge.
func (p *PrometheusCollector) SetPendingRequests(count int) {
	p.ensureRegistered()
	p.pendingRequests.Set(float64(count))
}

// PresenceMetrics implementation

// RecordPresenceOperation increments the directory operation counter.
func (p *PrometheusCollector) RecordPresenceOperation(operation string, success bool) {
	p.ensureRegistered()
	result := "success"
	if !success {
		result = "failure"
	}
	p.presenceOps.WithLabelValues(operation, result).Inc()
}

// SetDirectoryMode sets the directory mode gauge.
func (p *PrometheusCollector) SetDirectoryMode(localOnly bool) {
	p.ensureRegistered()
	if localOnly {
		p.directoryMode.Set(1)
	} else {
		p.directoryMode.Set(0)
	}
}

// SessionMetrics implementation

// RecordHandshakeCreated increments the handshake counter.
func (p *PrometheusCollector) RecordHandshakeCreated() {
	p.ensureRegistered()
	p.handshakesCreated.Inc()
}

// RecordHandshakeConsumed increments the consumption counter by outcome.
func (p *PrometheusCollector) RecordHandshakeConsumed(outcome string) {
	p.ensureRegistered()
	p.handshakesConsumed.WithLabelValues(outcome).Inc()
}

// RecordSessionStarted increments the start counter by outcome.
func (p *PrometheusCollector) RecordSessionStarted(outcome string) {
	p.ensureRegistered()
	p.sessionsStarted.WithLabelValues(outcome).Inc()
}

// RecordSessionEnded increments the end counter by reason.
func (p *PrometheusCollector) RecordSessionEnded(reason string) {
	p.ensureRegistered()
	p.sessionsEnded.WithLabelValues(reason).Inc()
}

// SetActiveSessions sets the live session gauge.
func (p *PrometheusCollector) SetActiveSessions(count int) {
	p.ensureRegistered()
	p.activeSessions.Set(float64(count))
}
