package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

type pipelineFixture struct {
	analyzer *fakeAnalyzer
	expander *fakeExpander
	store    *fakeVectorStore
	scorer   *fakeScorer
	traces   *fakeTraceStore
	recorder *TraceRecorder
	uc       *RetrieveUseCase
}

func newPipelineFixture(analysis domain.QueryAnalysis, dense []domain.Candidate, scores []float64) *pipelineFixture {
	f := &pipelineFixture{
		analyzer: &fakeAnalyzer{analysis: analysis},
		expander: &fakeExpander{},
		store:    &fakeVectorStore{dense: dense},
		scorer:   &fakeScorer{scores: scores},
		traces:   &fakeTraceStore{},
	}
	logger := testLogger()
	engine := NewHybridSearchEngine(&fakeEmbedder{}, f.store, logger, nil)
	reranker := NewReranker(f.scorer, time.Second, logger, nil)
	f.recorder = NewTraceRecorder(f.traces, logger, nil, 8)
	f.uc = NewRetrieveUseCase(f.analyzer, f.expander, engine, reranker, f.recorder, logger, nil, 100)
	return f
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	f := newPipelineFixture(domain.QueryAnalysis{}, nil, nil)
	defer f.recorder.Close()

	_, err := f.uc.Retrieve(context.Background(), domain.Query{Text: "   "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRetrieveEndToEnd(t *testing.T) {
	analysis := domain.QueryAnalysis{
		PrimaryCategory: domain.CategoryPayroll,
		Intent:          domain.IntentInformational,
		Confidence:      0.9,
	}
	dense := []domain.Candidate{
		candidate("a", domain.CategoryPayroll, 0.9, 0),
		candidate("b", domain.CategoryPayroll, 0.7, 0),
	}
	f := newPipelineFixture(analysis, dense, []float64{0.4, 0.8})

	results, err := f.uc.Retrieve(context.Background(), domain.Query{Text: "how do I run payroll", SessionID: "s1"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "b" {
		t.Fatalf("rerank order: got %s first", results[0].ChunkID)
	}

	f.recorder.Close()
	trace, ok := f.traces.lastSaved()
	if !ok {
		t.Fatalf("trace was not recorded")
	}
	if trace.Query != "how do I run payroll" || trace.SessionID != "s1" {
		t.Fatalf("trace identity: %q / %q", trace.Query, trace.SessionID)
	}
	if trace.Decision.InitialFilter.PrimaryCategory != domain.CategoryPayroll {
		t.Fatalf("trace initial filter: %v", trace.Decision.InitialFilter)
	}
	if trace.ResultCount != 2 {
		t.Fatalf("trace result count: %d", trace.ResultCount)
	}
	if trace.CategoryCounts[domain.CategoryPayroll] != 2 {
		t.Fatalf("trace category counts: %v", trace.CategoryCounts)
	}
	if len(trace.Stages) == 0 {
		t.Fatalf("trace should record pipeline stages")
	}
}

func TestRetrieveNoResults(t *testing.T) {
	analysis := domain.QueryAnalysis{PrimaryCategory: domain.CategoryGeneral, Confidence: 0.9}
	f := newPipelineFixture(analysis, nil, nil)
	defer f.recorder.Close()

	_, err := f.uc.Retrieve(context.Background(), domain.Query{Text: "nothing matches this"})
	if !domain.IsKind(err, domain.ErrNoResults) {
		t.Fatalf("expected no-results error, got %v", err)
	}
}

func TestRetrieveRerankerSeesOriginalQuery(t *testing.T) {
	analysis := domain.QueryAnalysis{
		PrimaryCategory: domain.CategoryPayroll,
		Intent:          domain.IntentSales, // sales intent turns expansion on
		Confidence:      0.9,
	}
	dense := []domain.Candidate{candidate("a", domain.CategoryPayroll, 0.9, 0)}
	f := newPipelineFixture(analysis, dense, []float64{0.5})
	f.expander.expansion = domain.QueryExpansion{
		ExpandedQuery: "payroll cost pricing subscription fees",
		AddedTerms:    []string{"pricing", "fees"},
	}

	original := "how much does payroll cost"
	if _, err := f.uc.Retrieve(context.Background(), domain.Query{Text: original, SessionID: "s1"}); err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if f.expander.calls != 1 {
		t.Fatalf("expander should run once, ran %d times", f.expander.calls)
	}
	if f.scorer.lastQuery != original {
		t.Fatalf("reranker must judge the original query, got %q", f.scorer.lastQuery)
	}

	f.recorder.Close()
	trace, _ := f.traces.lastSaved()
	if trace.ExpandedQuery == "" || len(trace.AddedTerms) != 2 {
		t.Fatalf("trace should carry the expansion: %q %v", trace.ExpandedQuery, trace.AddedTerms)
	}
}

func TestRetrieveExpansionFailureIsIgnored(t *testing.T) {
	analysis := domain.QueryAnalysis{
		PrimaryCategory: domain.CategoryPayroll,
		Intent:          domain.IntentSales,
		Confidence:      0.9,
	}
	dense := []domain.Candidate{candidate("a", domain.CategoryPayroll, 0.9, 0)}
	f := newPipelineFixture(analysis, dense, []float64{0.5})
	f.expander.err = errors.New("expander down")

	results, err := f.uc.Retrieve(context.Background(), domain.Query{Text: "payroll pricing"})
	if err != nil {
		t.Fatalf("expansion failure must not fail retrieval: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestRetrievePropagatesSearchProviderError(t *testing.T) {
	analysis := domain.QueryAnalysis{PrimaryCategory: domain.CategoryGeneral, Confidence: 0.9}
	f := newPipelineFixture(analysis, nil, nil)
	defer f.recorder.Close()
	f.store.sparseErr = errors.New("store down")

	engine := NewHybridSearchEngine(&fakeEmbedder{queryErr: errors.New("embedder down")}, f.store, testLogger(), nil)
	uc := NewRetrieveUseCase(f.analyzer, f.expander, engine, NewReranker(f.scorer, time.Second, testLogger(), nil),
		f.recorder, testLogger(), nil, 100)

	_, err := uc.Retrieve(context.Background(), domain.Query{Text: "anything"})
	if !domain.IsKind(err, domain.ErrSearchProvider) {
		t.Fatalf("expected search provider error, got %v", err)
	}
}

func TestBuildFilterOmitsGeneralAndFullRange(t *testing.T) {
	analysis := domain.QueryAnalysis{PrimaryCategory: domain.CategoryGeneral}
	params := domain.RetrievalParameters{
		TechnicalLevelMin: domain.TechnicalLevelMin,
		TechnicalLevelMax: domain.TechnicalLevelMax,
	}
	if filter := buildFilter(analysis, params); !filter.IsZero() {
		t.Fatalf("general category with full range should yield an empty filter: %+v", filter)
	}
}

func TestBuildFilterPromotesConfidentEntities(t *testing.T) {
	analysis := domain.QueryAnalysis{
		PrimaryCategory: domain.CategoryIntegrations,
		Entities: []domain.Entity{
			{Name: "QuickBooks", Confidence: 0.95},
			{Name: "maybe-a-product", Confidence: 0.4},
		},
	}
	filter := buildFilter(analysis, domain.RetrievalParameters{
		TechnicalLevelMin: domain.TechnicalLevelMin,
		TechnicalLevelMax: domain.TechnicalLevelMax,
	})

	if len(filter.RequiredEntities) != 1 || filter.RequiredEntities[0] != "QuickBooks" {
		t.Fatalf("only confident entities become required: %v", filter.RequiredEntities)
	}
	if filter.PrimaryCategory != domain.CategoryIntegrations {
		t.Fatalf("category filter: %s", filter.PrimaryCategory)
	}
}
