package relay

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ssjmarx/The-Gold-Box-sub002/internal/metrics"
)

// NewPrometheusMetrics creates a Prometheus-backed metrics collector under
// the "relay" namespace.
//
// The relay's own /metrics endpoint serves the default registry, so passing
// nil wires the collector to that endpoint.
//
// Parameters:
//   - reg: Target registerer; nil means prometheus.DefaultRegisterer
//
// Returns:
//   - MetricsCollector: Collector to pass to WithMetrics
func NewPrometheusMetrics(reg prometheus.Registerer) MetricsCollector {
	return metrics.NewPrometheus(reg, "")
}
