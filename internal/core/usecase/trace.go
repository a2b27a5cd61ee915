package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
	"github.com/hrstream/knowledge-retrieval/internal/core/ports"
	"github.com/hrstream/knowledge-retrieval/internal/observability/metrics"
)

const (
	defaultTraceBuffer       = 256
	tracePersistTimeout      = 5 * time.Second
	traceRecorderDrainPeriod = 2 * time.Second
)

// TraceRecorder persists search traces off the query path. Record never
// blocks: when the buffer is full the trace is dropped and counted.
type TraceRecorder struct {
	store   ports.TraceStore
	logger  *slog.Logger
	metrics *metrics.PipelineMetrics

	queue     chan tracedRecord
	done      chan struct{}
	closeOnce sync.Once
}

type tracedRecord struct {
	trace domain.SearchTrace
}

func NewTraceRecorder(
	store ports.TraceStore,
	logger *slog.Logger,
	pipelineMetrics *metrics.PipelineMetrics,
	buffer int,
) *TraceRecorder {
	if buffer <= 0 {
		buffer = defaultTraceBuffer
	}
	r := &TraceRecorder{
		store:   store,
		logger:  logger,
		metrics: pipelineMetrics,
		queue:   make(chan tracedRecord, buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues a completed trace for persistence. Fire-and-forget: the
// caller is never delayed or failed by trace handling.
func (r *TraceRecorder) Record(trace domain.SearchTrace) {
	select {
	case r.queue <- tracedRecord{trace: trace}:
	default:
		r.metrics.IncTraceDropped()
		r.logger.Warn("trace_dropped", "trace_id", trace.ID)
	}
}

func (r *TraceRecorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), tracePersistTimeout)
		if err := r.store.SaveTrace(ctx, rec.trace); err != nil {
			r.logger.Error("trace_persist_failed", "trace_id", rec.trace.ID, "error", err)
		}
		cancel()
	}
}

// Close drains buffered traces and stops the recorder.
func (r *TraceRecorder) Close() {
	r.closeOnce.Do(func() { close(r.queue) })
	select {
	case <-r.done:
	case <-time.After(traceRecorderDrainPeriod + tracePersistTimeout):
		r.logger.Warn("trace_recorder_close_timeout")
	}
}
