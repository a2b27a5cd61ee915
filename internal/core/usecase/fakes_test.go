package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEmbedder struct {
	queryErr error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return []float32{0.1, 0.2}, nil
}

type fakeVectorStore struct {
	dense  []domain.Candidate
	sparse []domain.Candidate

	denseErr  error
	sparseErr error

	denseCalls  int
	sparseCalls int
}

func (f *fakeVectorStore) IndexChunks(context.Context, *domain.Page, []domain.Chunk, [][]float32) error {
	return nil
}

func (f *fakeVectorStore) Search(context.Context, []float32, int) ([]domain.Candidate, error) {
	f.denseCalls++
	if f.denseErr != nil {
		return nil, f.denseErr
	}
	return f.dense, nil
}

func (f *fakeVectorStore) SearchLexical(context.Context, string, int) ([]domain.Candidate, error) {
	f.sparseCalls++
	if f.sparseErr != nil {
		return nil, f.sparseErr
	}
	return f.sparse, nil
}

type fakeAnalyzer struct {
	analysis domain.QueryAnalysis
	err      error
}

func (f *fakeAnalyzer) Analyze(context.Context, string) (domain.QueryAnalysis, error) {
	return f.analysis, f.err
}

type fakeExpander struct {
	expansion domain.QueryExpansion
	err       error
	calls     int
}

func (f *fakeExpander) Expand(context.Context, string) (domain.QueryExpansion, error) {
	f.calls++
	return f.expansion, f.err
}

type fakeScorer struct {
	scores []float64
	err    error

	lastQuery       string
	lastVisualTypes []string
}

func (f *fakeScorer) ScoreRelevance(_ context.Context, query string, _ []domain.Candidate, visualTypes []string) ([]float64, error) {
	f.lastQuery = query
	f.lastVisualTypes = visualTypes
	return f.scores, f.err
}

// blockingScorer waits out the caller's deadline.
type blockingScorer struct{}

func (blockingScorer) ScoreRelevance(ctx context.Context, _ string, _ []domain.Candidate, _ []string) ([]float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeTraceStore struct {
	mu     sync.Mutex
	saved  []domain.SearchTrace
	errAll error

	block chan struct{} // if non-nil, SaveTrace waits for it to close
}

func (f *fakeTraceStore) SaveTrace(_ context.Context, trace domain.SearchTrace) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errAll != nil {
		return f.errAll
	}
	f.saved = append(f.saved, trace)
	return nil
}

func (f *fakeTraceStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func (f *fakeTraceStore) lastSaved() (domain.SearchTrace, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return domain.SearchTrace{}, false
	}
	return f.saved[len(f.saved)-1], true
}

func candidate(chunkID string, category domain.Category, vector, keyword float64) domain.Candidate {
	return domain.Candidate{
		ChunkID:      chunkID,
		DocumentID:   "page-" + chunkID,
		Text:         "text " + chunkID,
		Metadata:     map[string]string{domain.MetaCategory: string(category)},
		VectorScore:  vector,
		KeywordScore: keyword,
	}
}
