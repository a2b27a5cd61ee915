package ports

import (
	"context"
	"io"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

// Retriever is the inbound contract for query-time retrieval. It is invoked
// in-process by an upstream request handler.
type Retriever interface {
	Retrieve(ctx context.Context, query domain.Query) ([]domain.RankedResult, error)
}

// PageProcessor is the inbound contract for asynchronous page enrichment
// and indexing.
type PageProcessor interface {
	ProcessByID(ctx context.Context, pageID string) error
}

// CrawlIngestor loads a crawl snapshot and schedules its pages for
// processing.
type CrawlIngestor interface {
	IngestSnapshot(ctx context.Context, snapshot io.Reader) (int, error)
}
