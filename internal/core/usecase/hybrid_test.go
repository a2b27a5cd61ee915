package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

func testParams() domain.RetrievalParameters {
	return domain.RetrievalParameters{
		VectorWeight:       0.7,
		KeywordWeight:      0.3,
		MatchThreshold:     0.1,
		InitialCandidates:  30,
		RerankedCandidates: 10,
		Rerank:             true,
	}
}

func TestFuseCandidatesWeightedAndDeduplicated(t *testing.T) {
	dense := []domain.Candidate{candidate("a", domain.CategoryPayroll, 0.9, 0)}
	sparse := []domain.Candidate{
		candidate("a", domain.CategoryPayroll, 0, 0.8),
		candidate("b", domain.CategoryGeneral, 0, 0.5),
	}

	fused := fuseCandidates(dense, sparse, 0.7, 0.3)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused candidates, got %d", len(fused))
	}

	// Chunk a appears once with both scores fused: 0.7*0.9 + 0.3*0.8.
	if fused[0].ChunkID != "a" {
		t.Fatalf("expected chunk a first, got %s", fused[0].ChunkID)
	}
	want := 0.7*0.9 + 0.3*0.8
	if math.Abs(fused[0].FusedScore-want) > 1e-9 {
		t.Fatalf("fused score: got %v, want %v", fused[0].FusedScore, want)
	}
	if fused[0].VectorScore != 0.9 || fused[0].KeywordScore != 0.8 {
		t.Fatalf("merged sub-scores: got %v/%v", fused[0].VectorScore, fused[0].KeywordScore)
	}
}

func TestFuseCandidatesClampsOvershoot(t *testing.T) {
	dense := []domain.Candidate{candidate("a", domain.CategoryGeneral, 1.0, 0)}
	sparse := []domain.Candidate{candidate("a", domain.CategoryGeneral, 0, 1.0)}

	fused := fuseCandidates(dense, sparse, 0.8, 0.6)
	if fused[0].FusedScore != 1.0 {
		t.Fatalf("fused score must clamp to 1, got %v", fused[0].FusedScore)
	}
}

func TestThresholdCandidatesDropsWeakMatches(t *testing.T) {
	candidates := []domain.Candidate{
		{ChunkID: "a", FusedScore: 0.5},
		{ChunkID: "b", FusedScore: 0.1},
	}
	out := thresholdCandidates(candidates, 0.2)
	if len(out) != 1 || out[0].ChunkID != "a" {
		t.Fatalf("threshold should keep only chunk a, got %v", out)
	}
}

func TestSearchAppliesFilter(t *testing.T) {
	store := &fakeVectorStore{
		dense: []domain.Candidate{
			candidate("pay", domain.CategoryPayroll, 0.9, 0),
			candidate("gen", domain.CategoryGeneral, 0.8, 0),
		},
	}
	engine := NewHybridSearchEngine(&fakeEmbedder{}, store, testLogger(), nil)

	filter := domain.SearchFilter{PrimaryCategory: domain.CategoryPayroll}
	out, decision, strategies, err := engine.Search(
		context.Background(), "payroll taxes", filter, domain.QueryAnalysis{}, testParams())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out) != 1 || out[0].ChunkID != "pay" {
		t.Fatalf("filter should keep only payroll chunk, got %v", out)
	}
	if decision.FilterRelaxed {
		t.Fatalf("relaxation must not fire when the filter matched")
	}
	if len(strategies) != 1 || strategies[0] != strategyHybridFiltered {
		t.Fatalf("strategies: got %v", strategies)
	}
}

func TestSearchRelaxesFilterOnce(t *testing.T) {
	store := &fakeVectorStore{
		dense: []domain.Candidate{candidate("gen", domain.CategoryGeneral, 0.9, 0)},
	}
	engine := NewHybridSearchEngine(&fakeEmbedder{}, store, testLogger(), nil)

	filter := domain.SearchFilter{PrimaryCategory: domain.CategoryPayroll}
	out, decision, strategies, err := engine.Search(
		context.Background(), "company history", filter, domain.QueryAnalysis{}, testParams())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out) != 1 || out[0].ChunkID != "gen" {
		t.Fatalf("relaxed search should surface the general chunk, got %v", out)
	}
	if !decision.FilterRelaxed {
		t.Fatalf("decision should record relaxation")
	}
	if decision.RelaxationReason == "" {
		t.Fatalf("relaxation needs a reason")
	}
	// The original filter survives in the trace even after relaxation.
	if decision.InitialFilter.PrimaryCategory != domain.CategoryPayroll {
		t.Fatalf("initial filter overwritten: %v", decision.InitialFilter)
	}
	if !decision.AppliedFilter.IsZero() {
		t.Fatalf("applied filter after relaxation should be empty")
	}
	if store.denseCalls != 2 {
		t.Fatalf("relaxation runs the search exactly twice, got %d dense calls", store.denseCalls)
	}
	if strategies[len(strategies)-1] != strategyHybridRelaxed {
		t.Fatalf("strategies: got %v", strategies)
	}
}

func TestSearchRelaxationNotRepeated(t *testing.T) {
	// Nothing matches even unfiltered below the threshold: the engine must
	// return empty, not loop.
	store := &fakeVectorStore{}
	engine := NewHybridSearchEngine(&fakeEmbedder{}, store, testLogger(), nil)

	filter := domain.SearchFilter{PrimaryCategory: domain.CategoryPayroll}
	out, decision, _, err := engine.Search(
		context.Background(), "anything", filter, domain.QueryAnalysis{}, testParams())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no candidates, got %v", out)
	}
	if !decision.FilterRelaxed {
		t.Fatalf("relaxation should have been attempted once")
	}
	if store.denseCalls != 2 {
		t.Fatalf("expected exactly 2 search runs, got %d", store.denseCalls)
	}
}

func TestSearchKeywordFallbackWhenVectorSideFails(t *testing.T) {
	store := &fakeVectorStore{
		sparse: []domain.Candidate{candidate("kw", domain.CategoryGeneral, 0, 0.9)},
	}
	engine := NewHybridSearchEngine(&fakeEmbedder{queryErr: errors.New("embedder down")}, store, testLogger(), nil)

	out, _, strategies, err := engine.Search(
		context.Background(), "time tracking", domain.SearchFilter{}, domain.QueryAnalysis{}, testParams())
	if err != nil {
		t.Fatalf("keyword fallback should succeed: %v", err)
	}
	if len(out) != 1 || out[0].ChunkID != "kw" {
		t.Fatalf("expected keyword-only candidate, got %v", out)
	}
	hasFallback := false
	for _, s := range strategies {
		if s == strategyKeywordFallback {
			hasFallback = true
		}
	}
	if !hasFallback {
		t.Fatalf("strategies should record keyword fallback: %v", strategies)
	}
}

func TestSearchFailsWhenBothSidesFail(t *testing.T) {
	store := &fakeVectorStore{sparseErr: errors.New("store down")}
	engine := NewHybridSearchEngine(&fakeEmbedder{queryErr: errors.New("embedder down")}, store, testLogger(), nil)

	_, _, _, err := engine.Search(
		context.Background(), "anything", domain.SearchFilter{}, domain.QueryAnalysis{}, testParams())
	if !domain.IsKind(err, domain.ErrSearchProvider) {
		t.Fatalf("expected search provider error, got %v", err)
	}
}

func TestBalanceCategoryFilterReplacesSalesPrimary(t *testing.T) {
	filter := domain.SearchFilter{
		PrimaryCategory:     domain.CategoryPricing,
		SecondaryCategories: []domain.Category{domain.CategorySales, domain.CategoryPayroll},
	}
	analysis := domain.QueryAnalysis{Intent: domain.IntentInformational}

	out, balanced := balanceCategoryFilter(filter, analysis)
	if !balanced {
		t.Fatalf("expected balancing for non-sales intent with sales primary")
	}
	if out.PrimaryCategory != domain.CategoryPayroll {
		t.Fatalf("expected first non-sales secondary, got %s", out.PrimaryCategory)
	}
	// The input filter must stay untouched.
	if filter.PrimaryCategory != domain.CategoryPricing {
		t.Fatalf("input filter mutated: %s", filter.PrimaryCategory)
	}
}

func TestBalanceCategoryFilterKeepsSalesIntent(t *testing.T) {
	filter := domain.SearchFilter{
		PrimaryCategory:     domain.CategoryPricing,
		SecondaryCategories: []domain.Category{domain.CategoryPayroll},
	}
	analysis := domain.QueryAnalysis{Intent: domain.IntentSales}

	out, balanced := balanceCategoryFilter(filter, analysis)
	if balanced || out.PrimaryCategory != domain.CategoryPricing {
		t.Fatalf("sales intent keeps the sales category, got %s (balanced=%v)", out.PrimaryCategory, balanced)
	}
}

func TestBalanceCategoryFilterNoUsableSecondary(t *testing.T) {
	filter := domain.SearchFilter{
		PrimaryCategory:     domain.CategoryPricing,
		SecondaryCategories: []domain.Category{domain.CategorySales},
	}
	out, balanced := balanceCategoryFilter(filter, domain.QueryAnalysis{Intent: domain.IntentInformational})
	if balanced || out.PrimaryCategory != domain.CategoryPricing {
		t.Fatalf("without a non-sales secondary the filter stays, got %s (balanced=%v)", out.PrimaryCategory, balanced)
	}
}
