package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics instruments the ingestion worker. Nil-safe like
// PipelineMetrics.
type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	chunksIndexed   prometheus.Counter
	enrichFallbacks prometheus.Counter
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "retrieval",
			Subsystem:   "worker",
			Name:        "page_process_total",
			Help:        "Total processed pages by status.",
			ConstLabels: labels,
		},
		[]string{"status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "retrieval",
			Subsystem:   "worker",
			Name:        "page_process_duration_seconds",
			Help:        "Page processing duration in seconds by status.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		},
		[]string{"status"},
	)
	processInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "retrieval",
		Subsystem:   "worker",
		Name:        "page_process_in_flight",
		Help:        "Number of in-flight page processing tasks.",
		ConstLabels: labels,
	})
	chunksIndexed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "retrieval",
		Subsystem:   "worker",
		Name:        "chunks_indexed_total",
		Help:        "Chunks written to the vector store.",
		ConstLabels: labels,
	})
	enrichFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "retrieval",
		Subsystem:   "worker",
		Name:        "enrich_fallbacks_total",
		Help:        "Chunk enrichments that fell back to an excerpt description.",
		ConstLabels: labels,
	})

	registry.MustRegister(processTotal, processDuration, processInFlight, chunksIndexed, enrichFallbacks)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		chunksIndexed:   chunksIndexed,
		enrichFallbacks: enrichFallbacks,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartPage() {
	if m == nil {
		return
	}
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishPage(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.processTotal.WithLabelValues(status).Inc()
	m.processDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) AddChunksIndexed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksIndexed.Add(float64(n))
}

func (m *WorkerMetrics) IncEnrichFallback() {
	if m == nil {
		return
	}
	m.enrichFallbacks.Inc()
}
