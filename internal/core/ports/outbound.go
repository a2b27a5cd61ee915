package ports

import (
	"context"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

// Embedder builds vectors for chunk and query text. Embed is batched and
// substitutes a zero vector for items that fail individually rather than
// failing the batch.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes enriched chunks and serves the two sub-searches of
// the hybrid engine. Neither search applies metadata filters; filtering is
// a post-step over fused candidates.
type VectorStore interface {
	IndexChunks(ctx context.Context, page *domain.Page, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.Candidate, error)
	SearchLexical(ctx context.Context, queryText string, limit int) ([]domain.Candidate, error)
}

// QueryAnalyzer classifies a query (external capability).
type QueryAnalyzer interface {
	Analyze(ctx context.Context, query string) (domain.QueryAnalysis, error)
}

// QueryExpander augments query terms for the search call (external
// capability, advisory only).
type QueryExpander interface {
	Expand(ctx context.Context, query string) (domain.QueryExpansion, error)
}

// RelevanceScorer is the second-pass relevance capability. It returns one
// score per candidate, aligned by index. visualTypes names the visual
// content kinds to favor, or is empty for text-only queries.
type RelevanceScorer interface {
	ScoreRelevance(ctx context.Context, query string, candidates []domain.Candidate, visualTypes []string) ([]float64, error)
}

// ChunkEnricher produces a best-effort annotation for a chunk: description,
// key points, technical level, and named entities (external capability).
type ChunkEnricher interface {
	EnrichChunk(ctx context.Context, chunkText string, page *domain.Page) (domain.ChunkAnnotation, error)
}

// PageClassifier assigns a category to a crawled page at ingestion time.
type PageClassifier interface {
	Classify(ctx context.Context, title, text string) (domain.Category, float64, error)
}

// Chunker segments page text into retrieval-sized pieces. sourceHint is an
// optional routing hint (typically the page URL path).
type Chunker interface {
	Split(text, sourceHint string) []string
}

// PageRepository persists and reads crawled page state.
type PageRepository interface {
	Create(ctx context.Context, page *domain.Page) error
	GetByID(ctx context.Context, id string) (*domain.Page, error)
	UpdateStatus(ctx context.Context, id string, status domain.PageStatus, errMessage string) error
	SaveCategory(ctx context.Context, id string, category domain.Category, confidence float64) error
}

// TraceStore persists search traces. Failures are logged and dropped by the
// recorder, never surfaced to the query path.
type TraceStore interface {
	SaveTrace(ctx context.Context, trace domain.SearchTrace) error
}

// MessageQueue publishes/consumes page ingestion events.
type MessageQueue interface {
	PublishPageCrawled(ctx context.Context, pageID string) error
	SubscribePageCrawled(ctx context.Context, handler func(context.Context, string) error) error
}
