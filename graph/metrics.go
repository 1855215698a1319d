package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics records engine activity. All metrics live under the
// "loopgraph" namespace:
//
//   - inflight_runs (gauge): runs currently executing.
//   - runs_total (counter, outcome): finished runs by outcome.
//   - step_latency_ms (histogram, node_id, status): node invocation time.
//   - route_decisions_total (counter, node_id, target): routing choices.
//   - router_fallbacks_total (counter, node_id): decisions resolved by a default.
//   - refinement_iterations (histogram): IterationCount of finished runs.
//
// Run IDs are deliberately not used as labels; they are unbounded.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine := graph.New(graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	inflightRuns    prometheus.Gauge
	runs            *prometheus.CounterVec
	stepLatency     *prometheus.HistogramVec
	routeDecisions  *prometheus.CounterVec
	routerFallbacks *prometheus.CounterVec
	iterations      prometheus.Histogram
}

// NewPrometheusMetrics creates the engine metrics and registers them with
// registry, or with the default registerer when registry is nil.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		inflightRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "loopgraph",
			Name:      "inflight_runs",
			Help:      "Number of runs currently executing",
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loopgraph",
			Name:      "runs_total",
			Help:      "Finished runs by outcome",
		}, []string{"outcome"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loopgraph",
			Name:      "step_latency_ms",
			Help:      "Node invocation duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"node_id", "status"}),
		routeDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loopgraph",
			Name:      "route_decisions_total",
			Help:      "Routing decisions by source node and target",
		}, []string{"node_id", "target"}),
		routerFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loopgraph",
			Name:      "router_fallbacks_total",
			Help:      "Routing decisions resolved through the edge or router default",
		}, []string{"node_id"}),
		iterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "loopgraph",
			Name:      "refinement_iterations",
			Help:      "Refinement iterations performed by finished runs",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
	}
}

// The methods below accept a nil receiver so the engine can call them
// unconditionally.

func (pm *PrometheusMetrics) runStarted() {
	if pm == nil {
		return
	}
	pm.inflightRuns.Inc()
}

func (pm *PrometheusMetrics) runFinished(outcome Outcome, iterations int) {
	if pm == nil {
		return
	}
	pm.inflightRuns.Dec()
	pm.runs.WithLabelValues(outcome.String()).Inc()
	pm.iterations.Observe(float64(iterations))
}

func (pm *PrometheusMetrics) recordStep(nodeID string, latency time.Duration, status string) {
	if pm == nil {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

func (pm *PrometheusMetrics) recordRoute(nodeID, target string, fallback bool) {
	if pm == nil {
		return
	}
	pm.routeDecisions.WithLabelValues(nodeID, target).Inc()
	if fallback {
		pm.routerFallbacks.WithLabelValues(nodeID).Inc()
	}
}
