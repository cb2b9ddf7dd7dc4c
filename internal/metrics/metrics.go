package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "sentinel_brain_"

// Backend call results.
const (
	ResultSuccess     = "success"
	ResultError       = "error"
	ResultTimeout     = "timeout"
	ResultBreakerOpen = "breaker_open"
)

var (
	registerOnce sync.Once

	decisionsTotal   *prometheus.CounterVec
	decisionErrors   *prometheus.CounterVec
	decisionLatency  *prometheus.HistogramVec
	backendCalls     *prometheus.CounterVec
	backendLatency   *prometheus.HistogramVec
	backendRetries   prometheus.Counter
	readingsReceived *prometheus.CounterVec
	notifications    *prometheus.CounterVec
)

// Init registers the advice metrics with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		decisionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "decisions_total",
				Help: "Decisions made by policy, source and alert flag",
			},
			[]string{"policy", "source", "alert"},
		)
		decisionErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "decision_errors_total",
				Help: "Failed decisions by reason",
			},
			[]string{"reason"},
		)
		decisionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "decision_latency_seconds",
				Help:    "Decision latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		)
		backendCalls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "backend_calls_total",
				Help: "Text-generation backend calls by result",
			},
			[]string{"result"},
		)
		backendLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "backend_latency_seconds",
				Help:    "Text-generation backend latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"result"},
		)
		backendRetries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "backend_retries_total",
				Help: "Retried text-generation backend calls",
			},
		)
		readingsReceived = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mqtt_readings_total",
				Help: "Sensor readings received over MQTT by result",
			},
			[]string{"result"},
		)
		notifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Push notifications by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			decisionsTotal,
			decisionErrors,
			decisionLatency,
			backendCalls,
			backendLatency,
			backendRetries,
			readingsReceived,
			notifications,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision records a successful decision.
func ObserveDecision(policy, source string, alert bool, duration time.Duration) {
	if decisionsTotal == nil {
		return
	}
	alertLabel := "false"
	if alert {
		alertLabel = "true"
	}
	decisionsTotal.WithLabelValues(policy, source, alertLabel).Inc()
	decisionLatency.WithLabelValues(source).Observe(duration.Seconds())
}

func IncDecisionError(reason string) {
	if decisionErrors != nil {
		decisionErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveBackendCall records one text-generation call including its retry.
func ObserveBackendCall(result string, duration time.Duration) {
	if backendCalls == nil {
		return
	}
	backendCalls.WithLabelValues(result).Inc()
	backendLatency.WithLabelValues(result).Observe(duration.Seconds())
}

func IncBackendRetry() {
	if backendRetries != nil {
		backendRetries.Inc()
	}
}

func IncReading(result string) {
	if readingsReceived != nil {
		readingsReceived.WithLabelValues(result).Inc()
	}
}

func IncNotification(result string) {
	if notifications != nil {
		notifications.WithLabelValues(result).Inc()
	}
}
