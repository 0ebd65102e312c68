// Package metrics provides Prometheus metrics for the workspace service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// generationsTotal counts AI generations.
	// Labels:
	//   - status: "success", "error", "no_code"
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_generations_total",
			Help: "Total number of AI generations",
		},
		[]string{"status"},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pilot_generation_duration_seconds",
			Help:    "Duration of AI generations in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	streamFragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pilot_stream_fragments_total",
			Help: "Total number of streamed response fragments received",
		},
	)

	// revisionsCreatedTotal counts appended revisions.
	// Labels:
	//   - source: "ai" or "manual"
	revisionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_revisions_created_total",
			Help: "Total number of revisions appended to project ledgers",
		},
		[]string{"source"},
	)

	// projectSavesTotal counts repository saves.
	// Labels:
	//   - result: "ok", "rejected", "error"
	projectSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_project_saves_total",
			Help: "Total number of project save attempts",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal)
	prometheus.MustRegister(generationDuration)
	prometheus.MustRegister(streamFragmentsTotal)
	prometheus.MustRegister(revisionsCreatedTotal)
	prometheus.MustRegister(projectSavesTotal)
}

func RecordGeneration(status string, durationSeconds float64) {
	generationsTotal.WithLabelValues(status).Inc()
	generationDuration.Observe(durationSeconds)
}

func RecordStreamFragment() {
	streamFragmentsTotal.Inc()
}

func RecordRevision(source string) {
	revisionsCreatedTotal.WithLabelValues(source).Inc()
}

func RecordProjectSave(result string) {
	projectSavesTotal.WithLabelValues(result).Inc()
}
