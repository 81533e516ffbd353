// Package metrics exposes check outcomes as Prometheus series.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"servermon/internal/domain"
)

// Recorder owns its registry so tests never fight over the global one.
// A nil Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry
	checks   *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	up       *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "servermon_checks_total",
			Help: "Completed checks by endpoint and status.",
		}, []string{"endpoint", "status"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "servermon_check_errors_total",
			Help: "Checks that ended in an operational error.",
		}, []string{"endpoint"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "servermon_response_time_seconds",
			Help:    "Observed response time per check.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		up: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "servermon_endpoint_up",
			Help: "1 when the last check succeeded, 0 otherwise.",
		}, []string{"endpoint"}),
	}
}

// RecordCheck folds one result into the series.
func (r *Recorder) RecordCheck(res *domain.CheckResult) {
	if r == nil {
		return
	}
	r.checks.WithLabelValues(res.EndpointName, string(res.Status)).Inc()
	if res.Status == domain.StatusError {
		r.errors.WithLabelValues(res.EndpointName).Inc()
	}
	if res.ResponseTime > 0 {
		r.duration.WithLabelValues(res.EndpointName).Observe(res.ResponseTime)
	}
	var up float64
	if res.Status == domain.StatusSuccess {
		up = 1
	}
	r.up.WithLabelValues(res.EndpointName).Set(up)
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
