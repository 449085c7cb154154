package evidence

import (
	"errors"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "evidence"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Submissions started, by operation.
	Submissions metrics.Counter
	// Failed operations, by operation and error kind.
	Failures metrics.Counter
	// Operations rejected because the same kind was already running.
	BusyRejections metrics.Counter
	// Bytes uploaded to the pinning service.
	UploadBytes metrics.Counter
	// Time from submission to the first confirmation.
	ConfirmationTime metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library
// and registered with the default registry. Optionally, labels can be
// provided along with their values ("foo", "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	return PrometheusMetricsWith(stdprometheus.DefaultRegisterer, namespace, labelsAndValues...)
}

// PrometheusMetricsWith is PrometheusMetrics registering with reg. Metrics
// already registered there are shared, so it can be called once per client.
func PrometheusMetricsWith(reg stdprometheus.Registerer, namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Submissions: prometheus.NewCounter(counterVec(reg, stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "submissions_total",
			Help:      "Number of state-changing operations started.",
		}, withLabels(labels, "operation"))).With(labelsAndValues...),
		Failures: prometheus.NewCounter(counterVec(reg, stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "failures_total",
			Help:      "Number of failed operations.",
		}, withLabels(labels, "operation", "kind"))).With(labelsAndValues...),
		BusyRejections: prometheus.NewCounter(counterVec(reg, stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "busy_rejections_total",
			Help:      "Number of submissions rejected while the same operation was running.",
		}, withLabels(labels, "operation"))).With(labelsAndValues...),
		UploadBytes: prometheus.NewCounter(counterVec(reg, stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "upload_bytes_total",
			Help:      "Bytes pinned through the pinning service.",
		}, labels)).With(labelsAndValues...),
		ConfirmationTime: prometheus.NewHistogram(histogramVec(reg, stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "confirmation_time_seconds",
			Help:      "Time from transaction submission to its first confirmation.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}, withLabels(labels, "operation"))).With(labelsAndValues...),
	}
}

func counterVec(reg stdprometheus.Registerer, opts stdprometheus.CounterOpts, labels []string) *stdprometheus.CounterVec {
	cv := stdprometheus.NewCounterVec(opts, labels)
	if existing, ok := register(reg, cv).(*stdprometheus.CounterVec); ok {
		return existing
	}
	return cv
}

func histogramVec(reg stdprometheus.Registerer, opts stdprometheus.HistogramOpts, labels []string) *stdprometheus.HistogramVec {
	hv := stdprometheus.NewHistogramVec(opts, labels)
	if existing, ok := register(reg, hv).(*stdprometheus.HistogramVec); ok {
		return existing
	}
	return hv
}

// register returns the collector already registered under c's description,
// or nil once c itself is registered.
func register(reg stdprometheus.Registerer, c stdprometheus.Collector) stdprometheus.Collector {
	err := reg.Register(c)
	if err == nil {
		return nil
	}
	var are stdprometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector
	}
	panic(err)
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Submissions:      discard.NewCounter(),
		Failures:         discard.NewCounter(),
		BusyRejections:   discard.NewCounter(),
		UploadBytes:      discard.NewCounter(),
		ConfirmationTime: discard.NewHistogram(),
	}
}

func withLabels(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	return append(append(out, base...), extra...)
}
