// Package metrics exposes Prometheus collectors for the relay service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	relayRunsTotal            *prometheus.CounterVec
	relayDownloadAttempts     *prometheus.CounterVec
	relayUploadAttempts       *prometheus.CounterVec
	relayRunDurationSeconds   prometheus.Histogram
	relayEngineUp             prometheus.Gauge
	relayRunsInFlight         prometheus.Gauge
	relayWebhookRequestsTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		relayRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_runs_total",
				Help: "Total number of pipeline runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		relayDownloadAttempts = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_download_attempts_total",
				Help: "Total browser download attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		relayUploadAttempts = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_upload_attempts_total",
				Help: "Total webhook upload attempts, labeled by target and outcome.",
			},
			[]string{"target", "outcome"},
		)

		relayRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_run_duration_seconds",
				Help:    "Histogram of end-to-end pipeline run durations.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		)

		relayEngineUp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_engine_up",
				Help: "Whether the shared automation engine is running.",
			},
		)

		relayRunsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_runs_in_flight",
				Help: "Number of pipeline runs currently executing.",
			},
		)

		relayWebhookRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_webhook_requests_total",
				Help: "Total inbound webhook requests, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// RecordRun counts a terminal run status.
func RecordRun(status string) {
	if relayRunsTotal == nil {
		return
	}
	relayRunsTotal.WithLabelValues(status).Inc()
}

// RecordDownloadAttempt counts one browser download attempt.
func RecordDownloadAttempt(outcome string) {
	if relayDownloadAttempts == nil {
		return
	}
	relayDownloadAttempts.WithLabelValues(outcome).Inc()
}

// RecordUploadAttempt counts one webhook upload attempt.
func RecordUploadAttempt(target, outcome string) {
	if relayUploadAttempts == nil {
		return
	}
	relayUploadAttempts.WithLabelValues(target, outcome).Inc()
}

// ObserveRunDuration records a completed run's wall time.
func ObserveRunDuration(d time.Duration) {
	if relayRunDurationSeconds == nil {
		return
	}
	relayRunDurationSeconds.Observe(d.Seconds())
}

// SetEngineUp reflects engine liveness.
func SetEngineUp(up bool) {
	if relayEngineUp == nil {
		return
	}
	if up {
		relayEngineUp.Set(1)
		return
	}
	relayEngineUp.Set(0)
}

// RunStarted increments the in-flight gauge.
func RunStarted() {
	if relayRunsInFlight == nil {
		return
	}
	relayRunsInFlight.Inc()
}

// RunFinished decrements the in-flight gauge.
func RunFinished() {
	if relayRunsInFlight == nil {
		return
	}
	relayRunsInFlight.Dec()
}

// RecordWebhookRequest counts an inbound trigger, labeled accepted/rejected.
func RecordWebhookRequest(result string) {
	if relayWebhookRequestsTotal == nil {
		return
	}
	relayWebhookRequestsTotal.WithLabelValues(result).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
