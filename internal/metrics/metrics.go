// Package metrics exposes the ingest pipeline's Prometheus counters and
// gauges, following the teacher's telemetry/churn convention of
// package-level collectors registered once in init and updated through
// small exported helpers safe to call from hot paths.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestpipe_submissions_total",
		Help: "Total telemetry submissions by outcome status",
	}, []string{"status"})

	rejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestpipe_rejections_total",
		Help: "Total rejected submissions by reason",
	}, []string{"reason"})

	alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestpipe_alerts_total",
		Help: "Total alerts created by type and severity",
	}, []string{"alert_type", "severity"})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingestpipe_queue_depth",
		Help: "Current number of envelopes buffered in the ingest queue",
	})

	processorDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingestpipe_processor_duration_seconds",
		Help:    "Processor dispatch latency by processor name",
		Buckets: prometheus.DefBuckets,
	}, []string{"processor"})
)

func init() {
	prometheus.MustRegister(submissionsTotal, rejectionsTotal, alertsTotal, queueDepth, processorDuration)
}

// ObserveSubmission records the terminal status of one Submit call.
func ObserveSubmission(status string) {
	submissionsTotal.WithLabelValues(status).Inc()
}

// ObserveRejection records why a submission was rejected.
func ObserveRejection(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveAlert records a newly created alert's type and severity.
func ObserveAlert(alertType, severity string) {
	alertsTotal.WithLabelValues(alertType, severity).Inc()
}

// SetQueueDepth updates the queue depth gauge to the current value.
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// ObserveProcessorDuration records how long a processor took to run.
func ObserveProcessorDuration(name string, d time.Duration) {
	processorDuration.WithLabelValues(name).Observe(d.Seconds())
}

// Handler returns the HTTP handler serving the Prometheus exposition
// format, to be mounted at GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
