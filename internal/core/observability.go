package core

import (
	"expvar"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives operation telemetry from the service. The noop
// recorder is used when nothing is wired.
type MetricsRecorder interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
	ObserveRuleWarnings(op string, count int)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) ObserveOperation(string, error, time.Duration) {}
func (noopMetricsRecorder) ObserveRuleWarnings(string, int)               {}

// ExpvarMetricsRecorder publishes per-operation counters under an expvar map.
// Cheap default for environments without a Prometheus scrape.
type ExpvarMetricsRecorder struct {
	ops      *expvar.Map
	errors   *expvar.Map
	warnings *expvar.Map
}

// NewExpvarMetricsRecorder registers the expvar maps under the given prefix.
// Registering the same prefix twice panics, matching expvar semantics.
func NewExpvarMetricsRecorder(prefix string) *ExpvarMetricsRecorder {
	if prefix == "" {
		prefix = "plancore"
	}
	return &ExpvarMetricsRecorder{
		ops:      expvar.NewMap(prefix + ".operations"),
		errors:   expvar.NewMap(prefix + ".operation_errors"),
		warnings: expvar.NewMap(prefix + ".rule_warnings"),
	}
}

func (r *ExpvarMetricsRecorder) ObserveOperation(op string, err error, _ time.Duration) {
	r.ops.Add(op, 1)
	if err != nil {
		r.errors.Add(op, 1)
	}
}

func (r *ExpvarMetricsRecorder) ObserveRuleWarnings(op string, count int) {
	if count > 0 {
		r.warnings.Add(op, int64(count))
	}
}

// PrometheusMetricsRecorder exports operation counts, latencies, and rule
// warning counts as Prometheus metrics.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	warnings   *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder builds and registers the collectors on reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plancore",
			Name:      "operations_total",
			Help:      "Service operations by name and success.",
		}, []string{"op", "success"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plancore",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plancore",
			Name:      "rule_warnings_total",
			Help:      "Advisory rule violations surfaced per operation.",
		}, []string{"op"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.latency, r.warnings} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusMetricsRecorder) ObserveOperation(op string, err error, elapsed time.Duration) {
	r.operations.WithLabelValues(op, strconv.FormatBool(err == nil)).Inc()
	r.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (r *PrometheusMetricsRecorder) ObserveRuleWarnings(op string, count int) {
	if count > 0 {
		r.warnings.WithLabelValues(op).Add(float64(count))
	}
}
