package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	GenerationStarted = prometheus.NewCounter(prometheus.CounterOpts{Name: "aiws_generation_started_total", Help: "Generation jobs created"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "aiws_rate_limit_rejects_total", Help: "Generation starts rejected by rate limiter"})
	JobsCompleted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "aiws_jobs_completed_total", Help: "Jobs that reached completed"})
	JobsFailed        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "aiws_jobs_failed_total", Help: "Jobs that reached failed or cancelled"}, []string{"reason"})
	DispatchTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "aiws_dispatch_total", Help: "Automation webhook dispatch attempts by outcome"}, []string{"outcome"})
	StageDuration     = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aiws_stage_duration_seconds",
		Help:    "Pipeline stage latency",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})
	StageFailures    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "aiws_stage_failures_total", Help: "Pipeline stage failures"}, []string{"stage"})
	WorkerDeadLetter = prometheus.NewCounter(prometheus.CounterOpts{Name: "aiws_dead_letter_total", Help: "Queue entries moved to DLQ"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "aiws_queue_depth", Help: "Generation jobs waiting in the ready queue"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "aiws_jobs_inflight", Help: "Generation jobs currently leased"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			GenerationStarted,
			RateLimitRejects,
			JobsCompleted,
			JobsFailed,
			DispatchTotal,
			StageDuration,
			StageFailures,
			WorkerDeadLetter,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
