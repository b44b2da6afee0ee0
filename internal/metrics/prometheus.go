// Package metrics provides Prometheus metrics for the digit recognition service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage names used with RecordStageLatency.
const (
	StageNormalize = "normalize"
	StageClassify  = "classify"
	StageInterpret = "interpret"
	StageTotal     = "total"
)

// Manager owns every metric the service exports.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	registry       prometheus.Registerer

	// Prediction pipeline
	predictions  *prometheus.CounterVec
	labels       *prometheus.CounterVec
	confidence   prometheus.Histogram
	stageLatency *prometheus.HistogramVec

	// Classifier lifecycle
	modelReady        prometheus.Gauge
	modelLoadDuration prometheus.Gauge
	modelLoadFailures prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager registered on the configured registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "digit",
		subsystem:      "recognizer",
		latencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "predictions_total",
		Help:      "Prediction requests by outcome",
	}, []string{"outcome"})

	m.labels = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "predicted_labels_total",
		Help:      "Successful predictions by digit label",
	}, []string{"label"})

	m.confidence = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "prediction_confidence_percent",
		Help:      "Confidence of successful predictions in percent",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	m.stageLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_duration_milliseconds",
		Help:      "Pipeline stage duration in milliseconds",
		Buckets:   m.latencyBuckets,
	}, []string{"stage"})

	m.modelReady = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_ready",
		Help:      "1 when the classifier is loaded and serving",
	})

	m.modelLoadDuration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_load_duration_milliseconds",
		Help:      "Duration of the last classifier load attempt in milliseconds",
	})

	m.modelLoadFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_load_failures_total",
		Help:      "Failed classifier load attempts",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordPrediction counts one pipeline outcome.
func (m *Manager) RecordPrediction(outcome string) {
	m.predictions.WithLabelValues(outcome).Inc()
}

// RecordLabel counts a successful prediction and its confidence.
func (m *Manager) RecordLabel(label int, confidence float64) {
	m.labels.WithLabelValues(strconv.Itoa(label)).Inc()
	m.confidence.Observe(confidence)
}

// RecordStageLatency records a pipeline stage duration in milliseconds.
func (m *Manager) RecordStageLatency(stage string, ms float64) {
	m.stageLatency.WithLabelValues(stage).Observe(ms)
}

// SetModelReady flips the model readiness gauge.
func (m *Manager) SetModelReady(ready bool) {
	if ready {
		m.modelReady.Set(1)
		return
	}
	m.modelReady.Set(0)
}

// RecordModelLoad records a load attempt.
func (m *Manager) RecordModelLoad(ms float64, failed bool) {
	m.modelLoadDuration.Set(ms)
	if failed {
		m.modelLoadFailures.Inc()
	}
}

// RecordHTTPRequest counts one HTTP request.
func (m *Manager) RecordHTTPRequest(endpoint, method string, status int) {
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(endpoint, method, code).Inc()
}

// RecordHTTPRequestDuration records an HTTP request duration in milliseconds.
func (m *Manager) RecordHTTPRequestDuration(endpoint, method string, status int, ms float64) {
	m.httpRequestDuration.WithLabelValues(endpoint, method, strconv.Itoa(status)).Observe(ms)
}

// Global returns the process-wide manager registered on GetRegistry.
func Global() *Manager {
	return globalManager
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
