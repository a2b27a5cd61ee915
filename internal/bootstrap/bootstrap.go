// Package bootstrap wires the infrastructure adapters into the use cases.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrstream/knowledge-retrieval/internal/config"
	"github.com/hrstream/knowledge-retrieval/internal/core/ports"
	"github.com/hrstream/knowledge-retrieval/internal/core/usecase"
	"github.com/hrstream/knowledge-retrieval/internal/infrastructure/chunking"
	"github.com/hrstream/knowledge-retrieval/internal/infrastructure/llm/ollama"
	natsqueue "github.com/hrstream/knowledge-retrieval/internal/infrastructure/queue/nats"
	"github.com/hrstream/knowledge-retrieval/internal/infrastructure/repository/postgres"
	"github.com/hrstream/knowledge-retrieval/internal/infrastructure/resilience"
	"github.com/hrstream/knowledge-retrieval/internal/infrastructure/vector/qdrant"
	"github.com/hrstream/knowledge-retrieval/internal/observability/logging"
	"github.com/hrstream/knowledge-retrieval/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue ports.MessageQueue

	Retriever ports.Retriever
	Processor ports.PageProcessor
	Ingestor  ports.CrawlIngestor

	PipelineMetrics *metrics.PipelineMetrics
	WorkerMetrics   *metrics.WorkerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	pipelineMetrics := metrics.NewPipelineMetrics(service)
	workerMetrics := metrics.NewWorkerMetrics(service)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pageRepo := postgres.NewPageRepository(db)
	if err := pageRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	traceRepo := postgres.NewTraceRepository(db)

	executor := resilience.NewExecutor(resilience.DefaultPolicy(), logger)

	queue, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	modelClient := ollama.New(ollama.Config{
		BaseURL:            cfg.OllamaURL,
		GenModel:           cfg.OllamaGenModel,
		GenFallbackModel:   cfg.OllamaGenFallbackModel,
		EmbedModel:         cfg.OllamaEmbedModel,
		EmbedFallbackModel: cfg.OllamaEmbedFallback,
		EmbedDimension:     cfg.OllamaEmbedDimension,
	}, executor, logger)

	analyzer := ollama.NewAnalyzer(modelClient)
	expander := ollama.NewExpander(modelClient)
	enricher := ollama.NewEnricher(modelClient, cfg.OllamaEnrichRatePerSec)
	scorer := ollama.NewScorer(modelClient)
	classifier := ollama.NewPageClassifier(modelClient)
	embedder := ollama.NewEmbedder(modelClient, logger)

	vectorStore := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	chunker := chunking.NewSectionSplitter(cfg.ChunkTargetSize)

	engine := usecase.NewHybridSearchEngine(embedder, vectorStore, logger, pipelineMetrics)
	reranker := usecase.NewReranker(scorer,
		time.Duration(cfg.RerankTimeoutSeconds)*time.Second, logger, pipelineMetrics)
	traces := usecase.NewTraceRecorder(traceRepo, logger, pipelineMetrics, cfg.TraceBufferSize)

	retriever := usecase.NewRetrieveUseCase(
		analyzer, expander, engine, reranker, traces,
		logger, pipelineMetrics, cfg.ExpansionRolloutPercent,
	)

	processor, err := usecase.NewProcessPageUseCase(
		pageRepo, classifier, chunker, enricher, embedder, vectorStore,
		cfg.EnrichWorkers, logger, workerMetrics,
	)
	if err != nil {
		return nil, fmt.Errorf("init page processor: %w", err)
	}

	ingestor := usecase.NewIngestCrawlUseCase(pageRepo, queue, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue: queue,

		Retriever: retriever,
		Processor: processor,
		Ingestor:  ingestor,

		PipelineMetrics: pipelineMetrics,
		WorkerMetrics:   workerMetrics,

		closeFn: func() {
			traces.Close()
			processor.Close()
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
