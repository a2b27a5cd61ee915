package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
	"github.com/hrstream/knowledge-retrieval/internal/core/ports"
	"github.com/hrstream/knowledge-retrieval/internal/observability/metrics"
)

// Retrieval strategy names recorded in the trace.
const (
	strategyHybridFiltered   = "hybrid_filtered"
	strategyHybridUnfiltered = "hybrid_unfiltered"
	strategyHybridRelaxed    = "hybrid_relaxed"
	strategyKeywordFallback  = "keyword_fallback"
)

// HybridSearchEngine fuses vector-similarity and lexical scores over the
// chunk store and applies metadata filters with one bounded relaxation.
type HybridSearchEngine struct {
	embedder ports.Embedder
	store    ports.VectorStore
	logger   *slog.Logger
	metrics  *metrics.PipelineMetrics
}

func NewHybridSearchEngine(
	embedder ports.Embedder,
	store ports.VectorStore,
	logger *slog.Logger,
	pipelineMetrics *metrics.PipelineMetrics,
) *HybridSearchEngine {
	return &HybridSearchEngine{
		embedder: embedder,
		store:    store,
		logger:   logger,
		metrics:  pipelineMetrics,
	}
}

// Search runs the hybrid retrieval for one query attempt set. It returns
// the surviving candidates, the filter decision for the trace, and the
// ordered list of strategies it attempted.
func (e *HybridSearchEngine) Search(
	ctx context.Context,
	searchText string,
	filter domain.SearchFilter,
	analysis domain.QueryAnalysis,
	params domain.RetrievalParameters,
) ([]domain.Candidate, domain.FilterDecision, []string, error) {
	decision := domain.FilterDecision{InitialFilter: filter}

	applied, balanced := balanceCategoryFilter(filter, analysis)
	decision.AppliedFilter = applied
	decision.CategoryBalanced = balanced
	if balanced {
		e.logger.Info("category_balanced",
			"from", filter.PrimaryCategory,
			"to", applied.PrimaryCategory,
		)
	}

	strategies := make([]string, 0, 3)
	if applied.IsZero() {
		strategies = append(strategies, strategyHybridUnfiltered)
	} else {
		strategies = append(strategies, strategyHybridFiltered)
	}

	fused, err := e.fusedCandidates(ctx, searchText, params)
	if err != nil {
		// Vector side is unavailable: try lexical alone before giving up.
		e.logger.Warn("hybrid_search_degraded", "error", err)
		strategies = append(strategies, strategyKeywordFallback)
		fused, err = e.keywordOnlyCandidates(ctx, searchText, params)
		if err != nil {
			return nil, decision, strategies,
				domain.WrapError(domain.ErrSearchProvider, "hybrid search", err)
		}
	}

	filtered := applyFilter(fused, applied)
	if len(filtered) == 0 && !applied.IsZero() {
		// One-shot relaxation: re-run the whole fused search without any
		// filter. Never repeated within a query.
		decision.FilterRelaxed = true
		decision.RelaxationReason = fmt.Sprintf(
			"filtered search for category %q returned no candidates; retried without filters",
			applied.PrimaryCategory,
		)
		decision.AppliedFilter = domain.SearchFilter{}
		strategies = append(strategies, strategyHybridRelaxed)
		e.metrics.IncRelaxation()
		e.logger.Info("filter_relaxed", "reason", decision.RelaxationReason)

		relaxed, rerr := e.fusedCandidates(ctx, searchText, params)
		if rerr != nil {
			strategies = append(strategies, strategyKeywordFallback)
			relaxed, rerr = e.keywordOnlyCandidates(ctx, searchText, params)
			if rerr != nil {
				return nil, decision, strategies,
					domain.WrapError(domain.ErrSearchProvider, "relaxed hybrid search", rerr)
			}
		}
		filtered = relaxed
	}

	return filtered, decision, strategies, nil
}

// fusedCandidates issues the vector and lexical sub-searches concurrently,
// joins their results, and applies fusion plus the match threshold.
func (e *HybridSearchEngine) fusedCandidates(
	ctx context.Context,
	searchText string,
	params domain.RetrievalParameters,
) ([]domain.Candidate, error) {
	var dense, sparse []domain.Candidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vector, err := e.embedder.EmbedQuery(gctx, searchText)
		if err != nil {
			return domain.WrapError(domain.ErrEmbedding, "embed query", err)
		}
		out, err := e.store.Search(gctx, vector, params.InitialCandidates)
		if err != nil {
			return domain.WrapError(domain.ErrSearchProvider, "vector search", err)
		}
		dense = out
		return nil
	})
	g.Go(func() error {
		out, err := e.store.SearchLexical(gctx, searchText, params.InitialCandidates)
		if err != nil {
			return domain.WrapError(domain.ErrSearchProvider, "keyword search", err)
		}
		sparse = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuseCandidates(dense, sparse, params.VectorWeight, params.KeywordWeight)
	return thresholdCandidates(fused, params.MatchThreshold), nil
}

func (e *HybridSearchEngine) keywordOnlyCandidates(
	ctx context.Context,
	searchText string,
	params domain.RetrievalParameters,
) ([]domain.Candidate, error) {
	sparse, err := e.store.SearchLexical(ctx, searchText, params.InitialCandidates)
	if err != nil {
		return nil, err
	}
	fused := fuseCandidates(nil, sparse, params.VectorWeight, params.KeywordWeight)
	return thresholdCandidates(fused, params.MatchThreshold), nil
}

// fuseCandidates merges the two result sets by chunk id (a chunk surfaced
// by both searches appears once) and computes the weighted fused score.
func fuseCandidates(dense, sparse []domain.Candidate, vectorWeight, keywordWeight float64) []domain.Candidate {
	acc := make(map[string]domain.Candidate, len(dense)+len(sparse))

	for _, c := range dense {
		key := candidateKey(c)
		merged := mergeCandidate(acc[key], c)
		merged.VectorScore = domain.ClampScore(c.VectorScore)
		acc[key] = merged
	}
	for _, c := range sparse {
		key := candidateKey(c)
		merged := mergeCandidate(acc[key], c)
		merged.KeywordScore = domain.ClampScore(c.KeywordScore)
		acc[key] = merged
	}

	out := make([]domain.Candidate, 0, len(acc))
	for _, c := range acc {
		c.FusedScore = domain.ClampScore(vectorWeight*c.VectorScore + keywordWeight*c.KeywordScore)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

func thresholdCandidates(candidates []domain.Candidate, threshold float64) []domain.Candidate {
	if threshold <= 0 {
		return candidates
	}
	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.FusedScore >= threshold {
			out = append(out, c)
		}
	}
	return out
}

func applyFilter(candidates []domain.Candidate, filter domain.SearchFilter) []domain.Candidate {
	if filter.IsZero() {
		return candidates
	}
	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

// balanceCategoryFilter widens an over-narrow sales-biased filter: when the
// query has no sales intent but the primary category is a sales one, the
// first non-sales secondary category takes its place. Returns a new filter
// value; the input is never mutated.
func balanceCategoryFilter(filter domain.SearchFilter, analysis domain.QueryAnalysis) (domain.SearchFilter, bool) {
	if analysis.Intent == domain.IntentSales {
		return filter, false
	}
	if !domain.IsSalesCategory(filter.PrimaryCategory) {
		return filter, false
	}
	for _, c := range filter.SecondaryCategories {
		if !domain.IsSalesCategory(c) {
			out := filter
			out.PrimaryCategory = c
			return out, true
		}
	}
	return filter, false
}

func candidateKey(c domain.Candidate) string {
	if c.ChunkID != "" {
		return c.ChunkID
	}
	return c.DocumentID + "|" + c.Text
}

// mergeCandidate keeps the richer field values when the same chunk arrives
// from both sub-searches.
func mergeCandidate(current, candidate domain.Candidate) domain.Candidate {
	if current.ChunkID == "" && current.DocumentID == "" && current.Text == "" {
		out := candidate
		out.VectorScore = current.VectorScore
		out.KeywordScore = current.KeywordScore
		return out
	}
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.OriginalText == "" && candidate.OriginalText != "" {
		current.OriginalText = candidate.OriginalText
	}
	if current.ChunkID == "" && candidate.ChunkID != "" {
		current.ChunkID = candidate.ChunkID
	}
	if current.DocumentID == "" && candidate.DocumentID != "" {
		current.DocumentID = candidate.DocumentID
	}
	if len(current.Metadata) == 0 && len(candidate.Metadata) > 0 {
		current.Metadata = candidate.Metadata
	}
	return current
}
