package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
	"github.com/hrstream/knowledge-retrieval/internal/core/ports"
	"github.com/hrstream/knowledge-retrieval/internal/observability/metrics"
)

const (
	defaultRerankTimeout = 5 * time.Second

	explanationSkipped  = "reranking skipped"
	explanationDisabled = "reranking disabled"
)

// Queries containing these terms favor visually oriented chunks (charts,
// screenshots, pricing tables).
var visualQueryTerms = []string{
	"chart", "diagram", "graph", "image", "picture",
	"screenshot", "show me", "visual", "infographic", "table",
}

var visualContentTypes = []string{"chart", "diagram", "screenshot", "table", "infographic"}

// Reranker applies the second-pass relevance capability under a hard
// timeout. It never returns an error: any failure degrades to the fused
// score ordering.
type Reranker struct {
	scorer  ports.RelevanceScorer
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.PipelineMetrics
}

func NewReranker(
	scorer ports.RelevanceScorer,
	timeout time.Duration,
	logger *slog.Logger,
	pipelineMetrics *metrics.PipelineMetrics,
) *Reranker {
	if timeout <= 0 {
		timeout = defaultRerankTimeout
	}
	return &Reranker{
		scorer:  scorer,
		timeout: timeout,
		logger:  logger,
		metrics: pipelineMetrics,
	}
}

// Rerank scores candidates against the original query and returns the top
// results. query must be the user's original text, never the expanded form.
func (r *Reranker) Rerank(
	ctx context.Context,
	query string,
	candidates []domain.Candidate,
	params domain.RetrievalParameters,
) []domain.RankedResult {
	if len(candidates) == 0 {
		return nil
	}
	limit := params.RerankedCandidates
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	if !params.Rerank || r.scorer == nil {
		return fusedOrder(candidates, limit, explanationDisabled)
	}

	scoreCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	visualTypes := detectVisualFocus(query)
	scores, err := r.scorer.ScoreRelevance(scoreCtx, query, candidates, visualTypes)
	if err != nil || len(scores) != len(candidates) {
		if err == nil {
			err = fmt.Errorf("score count mismatch: %d scores for %d candidates", len(scores), len(candidates))
		}
		r.logger.Warn("rerank_skipped", "error", err)
		r.metrics.IncRerankFallback()
		return fusedOrder(candidates, limit, explanationSkipped)
	}

	explanation := "relevance model score"
	if len(visualTypes) > 0 {
		explanation = "relevance model score with visual affinity"
	}

	results := make([]domain.RankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = domain.RankedResult{
			Candidate:     c,
			FinalScore:    domain.ClampScore(scores[i]),
			OriginalScore: c.FusedScore,
			Explanation:   explanation,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		if results[i].OriginalScore != results[j].OriginalScore {
			return results[i].OriginalScore > results[j].OriginalScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results[:limit]
}

// fusedOrder is the degradation path: candidates sorted by their fused
// score, final score equal to the pre-rerank score.
func fusedOrder(candidates []domain.Candidate, limit int, explanation string) []domain.RankedResult {
	sorted := make([]domain.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].FusedScore != sorted[j].FusedScore {
			return sorted[i].FusedScore > sorted[j].FusedScore
		}
		return sorted[i].ChunkID < sorted[j].ChunkID
	})

	if limit > len(sorted) {
		limit = len(sorted)
	}
	results := make([]domain.RankedResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = domain.RankedResult{
			Candidate:     sorted[i],
			FinalScore:    sorted[i].FusedScore,
			OriginalScore: sorted[i].FusedScore,
			Explanation:   explanation,
		}
	}
	return results
}

// detectVisualFocus returns the visual content types to favor when the
// query asks for visual material, or nil for text-only queries.
func detectVisualFocus(query string) []string {
	lowered := strings.ToLower(query)
	for _, term := range visualQueryTerms {
		if strings.Contains(lowered, term) {
			return visualContentTypes
		}
	}
	return nil
}
