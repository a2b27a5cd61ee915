package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
	"github.com/hrstream/knowledge-retrieval/internal/core/ports"
	"github.com/hrstream/knowledge-retrieval/internal/observability/metrics"
)

const excerptDescriptionLength = 160

// ProcessPageUseCase runs the ingestion-time pipeline for one crawled page:
// classify, chunk, enrich, embed, index.
type ProcessPageUseCase struct {
	repo       ports.PageRepository
	classifier ports.PageClassifier
	chunker    ports.Chunker
	enricher   ports.ChunkEnricher
	embedder   ports.Embedder
	store      ports.VectorStore
	pool       *ants.Pool
	logger     *slog.Logger
	metrics    *metrics.WorkerMetrics
}

func NewProcessPageUseCase(
	repo ports.PageRepository,
	classifier ports.PageClassifier,
	chunker ports.Chunker,
	enricher ports.ChunkEnricher,
	embedder ports.Embedder,
	store ports.VectorStore,
	enrichWorkers int,
	logger *slog.Logger,
	workerMetrics *metrics.WorkerMetrics,
) (*ProcessPageUseCase, error) {
	if enrichWorkers < 1 {
		enrichWorkers = 4
	}
	pool, err := ants.NewPool(enrichWorkers)
	if err != nil {
		return nil, fmt.Errorf("create enrichment pool: %w", err)
	}
	return &ProcessPageUseCase{
		repo:       repo,
		classifier: classifier,
		chunker:    chunker,
		enricher:   enricher,
		embedder:   embedder,
		store:      store,
		pool:       pool,
		logger:     logger,
		metrics:    workerMetrics,
	}, nil
}

func (uc *ProcessPageUseCase) Close() {
	if uc.pool != nil {
		uc.pool.Release()
	}
}

func (uc *ProcessPageUseCase) ProcessByID(ctx context.Context, pageID string) error {
	if err := uc.repo.UpdateStatus(ctx, pageID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.processPipeline(ctx, pageID); err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, pageID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateStatus(ctx, pageID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessPageUseCase) processPipeline(ctx context.Context, pageID string) error {
	page, err := uc.repo.GetByID(ctx, pageID)
	if err != nil {
		return fmt.Errorf("fetch page by id: %w", err)
	}
	if strings.TrimSpace(page.Text) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "process page", errors.New("empty page text"))
	}

	uc.classifyPage(ctx, page)

	pieces := uc.chunker.Split(page.Text, page.URL)
	if len(pieces) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "process page", errors.New("chunking produced zero chunks"))
	}

	chunks := uc.enrichChunks(ctx, page, pieces)

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return domain.WrapError(domain.ErrEmbedding, "embed chunks", err)
	}
	if len(vectors) != len(chunks) {
		return domain.WrapError(domain.ErrEmbedding, "embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)))
	}

	if err := uc.store.IndexChunks(ctx, page, chunks, vectors); err != nil {
		return fmt.Errorf("index chunks in vector store: %w", err)
	}
	uc.metrics.AddChunksIndexed(len(chunks))
	return nil
}

// classifyPage assigns a category, substituting the keyword heuristic when
// the capability fails. Classification failure never fails the page.
func (uc *ProcessPageUseCase) classifyPage(ctx context.Context, page *domain.Page) {
	category, confidence, err := uc.classifier.Classify(ctx, page.Title, page.Text)
	if err != nil {
		uc.logger.Warn("page_classification_fallback", "page_id", page.ID, "error", err)
		fallback := heuristicAnalysis(page.Title + " " + page.Text)
		category = fallback.PrimaryCategory
		confidence = heuristicConfidence
	}
	page.Category = category
	page.Confidence = domain.ClampScore(confidence)
	if err := uc.repo.SaveCategory(ctx, page.ID, page.Category, page.Confidence); err != nil {
		uc.logger.Warn("page_category_persist_failed", "page_id", page.ID, "error", err)
	}
}

// enrichChunks annotates every chunk concurrently through the bounded
// worker pool and joins before returning. An enrichment failure falls back
// to an excerpt description; it never aborts the page.
func (uc *ProcessPageUseCase) enrichChunks(ctx context.Context, page *domain.Page, pieces []string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(pieces))
	var wg sync.WaitGroup

	for i, piece := range pieces {
		i, piece := i, piece
		wg.Add(1)
		task := func() {
			defer wg.Done()
			chunks[i] = uc.buildChunk(ctx, page, i, piece)
		}
		if err := uc.pool.Submit(task); err != nil {
			// Pool saturated or released: do the work inline.
			task()
		}
	}
	wg.Wait()
	return chunks
}

func (uc *ProcessPageUseCase) buildChunk(ctx context.Context, page *domain.Page, index int, piece string) domain.Chunk {
	chunk := domain.Chunk{
		ID:           uuid.NewString(),
		PageID:       page.ID,
		Index:        index,
		OriginalText: piece,
	}

	annotation, err := uc.enricher.EnrichChunk(ctx, piece, page)
	if err != nil || strings.TrimSpace(annotation.Description) == "" {
		uc.logger.Warn("chunk_enrichment_fallback", "page_id", page.ID, "chunk_index", index, "error", err)
		uc.metrics.IncEnrichFallback()
		annotation = domain.ChunkAnnotation{Description: excerptDescription(piece)}
	}
	chunk.Description = annotation.Description
	chunk.KeyPoints = annotation.KeyPoints
	chunk.TechnicalLevel = annotation.TechnicalLevel
	chunk.Entities = annotation.Entities
	chunk.Text = enrichedChunkText(page, chunk)
	return chunk
}

// enrichedChunkText is the embedding/rerank input: the document and chunk
// context ahead of the verbatim text.
func enrichedChunkText(page *domain.Page, chunk domain.Chunk) string {
	var b strings.Builder
	if page.Title != "" {
		b.WriteString(page.Title)
		b.WriteString("\n")
	}
	b.WriteString(chunk.Description)
	b.WriteString("\n\n")
	b.WriteString(chunk.OriginalText)
	return b.String()
}

func excerptDescription(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= excerptDescriptionLength {
		return string(runes)
	}
	return string(runes[:excerptDescriptionLength]) + "…"
}
