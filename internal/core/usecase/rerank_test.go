package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

func rerankInput() []domain.Candidate {
	return []domain.Candidate{
		{ChunkID: "low", FusedScore: 0.3},
		{ChunkID: "high", FusedScore: 0.9},
		{ChunkID: "mid", FusedScore: 0.6},
	}
}

func TestRerankAppliesScores(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{0.9, 0.1, 0.5}}
	r := NewReranker(scorer, time.Second, testLogger(), nil)

	results := r.Rerank(context.Background(), "query", rerankInput(), testParams())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ChunkID != "low" || results[0].FinalScore != 0.9 {
		t.Fatalf("best-scored candidate first: got %s (%v)", results[0].ChunkID, results[0].FinalScore)
	}
	if results[0].OriginalScore != 0.3 {
		t.Fatalf("original fused score preserved: got %v", results[0].OriginalScore)
	}
	if results[0].Explanation != "relevance model score" {
		t.Fatalf("explanation: got %q", results[0].Explanation)
	}
}

func TestRerankDegradesOnScorerError(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("model down")}
	r := NewReranker(scorer, time.Second, testLogger(), nil)

	results := r.Rerank(context.Background(), "query", rerankInput(), testParams())
	if len(results) != 3 {
		t.Fatalf("degraded rerank must still return results, got %d", len(results))
	}
	if results[0].ChunkID != "high" || results[1].ChunkID != "mid" || results[2].ChunkID != "low" {
		t.Fatalf("degraded order must follow fused scores: %s %s %s",
			results[0].ChunkID, results[1].ChunkID, results[2].ChunkID)
	}
	for _, res := range results {
		if res.Explanation != explanationSkipped {
			t.Fatalf("explanation: got %q, want %q", res.Explanation, explanationSkipped)
		}
		if res.FinalScore != res.FusedScore {
			t.Fatalf("degraded final score must equal fused score")
		}
	}
}

func TestRerankDegradesOnTimeout(t *testing.T) {
	r := NewReranker(blockingScorer{}, 10*time.Millisecond, testLogger(), nil)

	start := time.Now()
	results := r.Rerank(context.Background(), "query", rerankInput(), testParams())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("rerank ignored its timeout: took %v", elapsed)
	}
	if len(results) != 3 || results[0].ChunkID != "high" {
		t.Fatalf("timeout must degrade to fused order, got %v", results)
	}
	if results[0].Explanation != explanationSkipped {
		t.Fatalf("explanation: got %q", results[0].Explanation)
	}
}

func TestRerankDegradesOnScoreCountMismatch(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{0.9}}
	r := NewReranker(scorer, time.Second, testLogger(), nil)

	results := r.Rerank(context.Background(), "query", rerankInput(), testParams())
	if results[0].ChunkID != "high" || results[0].Explanation != explanationSkipped {
		t.Fatalf("mismatch must degrade to fused order, got %v", results[0])
	}
}

func TestRerankDisabled(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{0.9, 0.1, 0.5}}
	r := NewReranker(scorer, time.Second, testLogger(), nil)

	params := testParams()
	params.Rerank = false
	results := r.Rerank(context.Background(), "query", rerankInput(), params)
	if results[0].ChunkID != "high" || results[0].Explanation != explanationDisabled {
		t.Fatalf("disabled rerank keeps fused order, got %v", results[0])
	}
	if scorer.lastQuery != "" {
		t.Fatalf("scorer must not be called when disabled")
	}
}

func TestRerankTruncatesToRequestedCount(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{0.9, 0.1, 0.5}}
	r := NewReranker(scorer, time.Second, testLogger(), nil)

	params := testParams()
	params.RerankedCandidates = 2
	results := r.Rerank(context.Background(), "query", rerankInput(), params)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestRerankClampsScores(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{1.8, -0.5, 0.5}}
	r := NewReranker(scorer, time.Second, testLogger(), nil)

	results := r.Rerank(context.Background(), "query", rerankInput(), testParams())
	if results[0].FinalScore != 1 {
		t.Fatalf("overshoot score must clamp to 1, got %v", results[0].FinalScore)
	}
	if results[2].FinalScore != 0 {
		t.Fatalf("negative score must clamp to 0, got %v", results[2].FinalScore)
	}
}

func TestRerankDetectsVisualQueries(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{0.9, 0.1, 0.5}}
	r := NewReranker(scorer, time.Second, testLogger(), nil)

	r.Rerank(context.Background(), "show me a pricing chart", rerankInput(), testParams())
	if len(scorer.lastVisualTypes) == 0 {
		t.Fatalf("visual query should pass visual types to the scorer")
	}

	scorer.lastVisualTypes = nil
	r.Rerank(context.Background(), "how do I run payroll", rerankInput(), testParams())
	if len(scorer.lastVisualTypes) != 0 {
		t.Fatalf("plain query should not request visual affinity")
	}

	results := r.Rerank(context.Background(), "show me a chart", rerankInput(), testParams())
	if results[0].Explanation != "relevance model score with visual affinity" {
		t.Fatalf("visual explanation: got %q", results[0].Explanation)
	}
}

func TestRerankEmptyInput(t *testing.T) {
	r := NewReranker(&fakeScorer{}, time.Second, testLogger(), nil)
	if results := r.Rerank(context.Background(), "query", nil, testParams()); results != nil {
		t.Fatalf("empty input yields nil, got %v", results)
	}
}
