package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
	"github.com/hrstream/knowledge-retrieval/internal/core/ports"
	"github.com/hrstream/knowledge-retrieval/internal/observability/metrics"
)

// Entities below this confidence are not promoted into the search filter.
const entityFilterConfidence = 0.8

const queryExpansionFlag = "query_expansion"

// RetrieveUseCase orchestrates the retrieval pipeline: analysis, parameter
// derivation, optional expansion, hybrid search, reranking, and trace
// recording.
type RetrieveUseCase struct {
	analyzer ports.QueryAnalyzer
	expander ports.QueryExpander
	engine   *HybridSearchEngine
	reranker *Reranker
	traces   *TraceRecorder
	logger   *slog.Logger
	metrics  *metrics.PipelineMetrics

	expansionRolloutPercent int
}

func NewRetrieveUseCase(
	analyzer ports.QueryAnalyzer,
	expander ports.QueryExpander,
	engine *HybridSearchEngine,
	reranker *Reranker,
	traces *TraceRecorder,
	logger *slog.Logger,
	pipelineMetrics *metrics.PipelineMetrics,
	expansionRolloutPercent int,
) *RetrieveUseCase {
	return &RetrieveUseCase{
		analyzer:                analyzer,
		expander:                expander,
		engine:                  engine,
		reranker:                reranker,
		traces:                  traces,
		logger:                  logger,
		metrics:                 pipelineMetrics,
		expansionRolloutPercent: expansionRolloutPercent,
	}
}

// Retrieve turns a raw query into a ranked list of passages. It returns an
// error only for invalid input or when every retrieval strategy yielded
// zero candidates.
func (uc *RetrieveUseCase) Retrieve(ctx context.Context, query domain.Query) ([]domain.RankedResult, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("empty query text"))
	}

	trace := domain.SearchTrace{
		ID:             uuid.NewString(),
		Query:          text,
		SessionID:      query.SessionID,
		StartedAt:      time.Now().UTC(),
		CategoryCounts: make(map[domain.Category]int),
	}

	stageStart := time.Now()
	analysis := uc.analyzeQuery(ctx, text)
	trace.Analysis = analysis
	uc.recordStage(&trace, "analyze", stageStart, len(analysis.Entities))

	params := DeriveParameters(analysis)
	trace.Parameters = params

	searchText := uc.expandQuery(ctx, &trace, text, params, query.SessionID)

	filter := buildFilter(analysis, params)

	stageStart = time.Now()
	candidates, decision, strategies, err := uc.engine.Search(ctx, searchText, filter, analysis, params)
	trace.Decision = decision
	trace.Strategies = strategies
	uc.recordStage(&trace, "hybrid_search", stageStart, len(candidates))

	if err != nil {
		uc.finishTrace(&trace, 0)
		uc.metrics.FinishQuery("error", 0)
		return nil, err
	}
	if len(candidates) == 0 {
		uc.finishTrace(&trace, 0)
		uc.metrics.FinishQuery("no_results", 0)
		return nil, domain.WrapError(domain.ErrNoResults, "retrieve",
			fmt.Errorf("no candidates after strategies: %s", strings.Join(strategies, ", ")))
	}

	// Reranking always judges against the original query, never the
	// expanded form.
	stageStart = time.Now()
	results := uc.reranker.Rerank(ctx, text, candidates, params)
	uc.recordStage(&trace, "rerank", stageStart, len(results))

	for _, c := range candidates {
		trace.CategoryCounts[domain.Category(c.Metadata[domain.MetaCategory])]++
	}

	uc.finishTrace(&trace, len(results))
	uc.metrics.FinishQuery("ok", len(results))
	return results, nil
}

// expandQuery applies the advisory expansion when the parameters ask for it
// and the rollout flag selects this session. Expansion failures are
// logged and ignored.
func (uc *RetrieveUseCase) expandQuery(
	ctx context.Context,
	trace *domain.SearchTrace,
	text string,
	params domain.RetrievalParameters,
	sessionID string,
) string {
	if !params.ExpandQuery || uc.expander == nil {
		return text
	}
	if !domain.AssignFlag(queryExpansionFlag, sessionID, uc.expansionRolloutPercent) {
		return text
	}

	stageStart := time.Now()
	expansion, err := uc.expander.Expand(ctx, text)
	uc.recordStage(trace, "expand", stageStart, len(expansion.AddedTerms))
	if err != nil || strings.TrimSpace(expansion.ExpandedQuery) == "" {
		uc.logger.Debug("query_expansion_skipped", "error", err)
		return text
	}

	trace.ExpandedQuery = expansion.ExpandedQuery
	trace.AddedTerms = expansion.AddedTerms
	return expansion.ExpandedQuery
}

func (uc *RetrieveUseCase) recordStage(trace *domain.SearchTrace, name string, start time.Time, results int) {
	duration := time.Since(start)
	trace.Stages = append(trace.Stages, domain.TraceStage{
		Name:     name,
		Duration: duration,
		Results:  results,
	})
	uc.metrics.ObserveStage(name, duration)
}

func (uc *RetrieveUseCase) finishTrace(trace *domain.SearchTrace, results int) {
	trace.ResultCount = results
	trace.CompletedAt = time.Now().UTC()
	if uc.traces != nil {
		uc.traces.Record(*trace)
	}
}

// buildFilter derives the search filter from the analysis. A GENERAL
// primary category imposes no category constraint: the general bucket is
// the absence of a bias, not a bias of its own.
func buildFilter(analysis domain.QueryAnalysis, params domain.RetrievalParameters) domain.SearchFilter {
	var filter domain.SearchFilter
	// A full-scale technical range constrains nothing; leave it off so an
	// otherwise-empty filter stays empty.
	if params.TechnicalLevelMin > domain.TechnicalLevelMin || params.TechnicalLevelMax < domain.TechnicalLevelMax {
		filter.TechnicalLevelMin = params.TechnicalLevelMin
		filter.TechnicalLevelMax = params.TechnicalLevelMax
	}
	if analysis.PrimaryCategory != domain.CategoryGeneral {
		filter.PrimaryCategory = analysis.PrimaryCategory
		filter.SecondaryCategories = analysis.SecondaryCategories
	}
	for _, entity := range analysis.Entities {
		if entity.Confidence >= entityFilterConfidence {
			filter.RequiredEntities = append(filter.RequiredEntities, entity.Name)
		}
	}
	return filter
}
