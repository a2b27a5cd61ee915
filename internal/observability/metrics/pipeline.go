package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics instruments the query-time retrieval pipeline. All
// methods are nil-safe so tests can pass a nil collector.
type PipelineMetrics struct {
	registry *prometheus.Registry

	stageDuration     *prometheus.HistogramVec
	queriesTotal      *prometheus.CounterVec
	relaxationsTotal  prometheus.Counter
	rerankFallbacks   prometheus.Counter
	analysisFallbacks prometheus.Counter
	resultCount       prometheus.Histogram
	tracesDropped     prometheus.Counter
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "retrieval",
			Subsystem:   "pipeline",
			Name:        "stage_duration_seconds",
			Help:        "Duration of each retrieval pipeline stage.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		},
		[]string{"stage"},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "retrieval",
			Subsystem:   "pipeline",
			Name:        "queries_total",
			Help:        "Total retrieval requests by outcome.",
			ConstLabels: labels,
		},
		[]string{"outcome"},
	)
	relaxationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "retrieval",
		Subsystem:   "pipeline",
		Name:        "filter_relaxations_total",
		Help:        "Searches that re-ran without filters after an empty filtered result.",
		ConstLabels: labels,
	})
	rerankFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "retrieval",
		Subsystem:   "pipeline",
		Name:        "rerank_fallbacks_total",
		Help:        "Rerank attempts degraded to fused-score ordering.",
		ConstLabels: labels,
	})
	analysisFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "retrieval",
		Subsystem:   "pipeline",
		Name:        "analysis_fallbacks_total",
		Help:        "Query analyses substituted by the keyword heuristic.",
		ConstLabels: labels,
	})
	resultCount := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "retrieval",
		Subsystem:   "pipeline",
		Name:        "result_count",
		Help:        "Final result count per query.",
		Buckets:     []float64{0, 1, 2, 5, 10, 20, 50},
		ConstLabels: labels,
	})
	tracesDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "retrieval",
		Subsystem:   "pipeline",
		Name:        "traces_dropped_total",
		Help:        "Search traces dropped because the recorder buffer was full.",
		ConstLabels: labels,
	})

	registry.MustRegister(
		stageDuration, queriesTotal, relaxationsTotal,
		rerankFallbacks, analysisFallbacks, resultCount, tracesDropped,
	)

	return &PipelineMetrics{
		registry:          registry,
		stageDuration:     stageDuration,
		queriesTotal:      queriesTotal,
		relaxationsTotal:  relaxationsTotal,
		rerankFallbacks:   rerankFallbacks,
		analysisFallbacks: analysisFallbacks,
		resultCount:       resultCount,
		tracesDropped:     tracesDropped,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) FinishQuery(outcome string, results int) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(outcome).Inc()
	m.resultCount.Observe(float64(results))
}

func (m *PipelineMetrics) IncRelaxation() {
	if m == nil {
		return
	}
	m.relaxationsTotal.Inc()
}

func (m *PipelineMetrics) IncRerankFallback() {
	if m == nil {
		return
	}
	m.rerankFallbacks.Inc()
}

func (m *PipelineMetrics) IncAnalysisFallback() {
	if m == nil {
		return
	}
	m.analysisFallbacks.Inc()
}

func (m *PipelineMetrics) IncTraceDropped() {
	if m == nil {
		return
	}
	m.tracesDropped.Inc()
}
