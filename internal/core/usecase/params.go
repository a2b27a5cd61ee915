package usecase

import "github.com/hrstream/knowledge-retrieval/internal/core/domain"

// Baseline retrieval knobs. Weights are independent multipliers over the
// two sub-search scores and deliberately do not sum to 1.
const (
	defaultVectorWeight   = 0.7
	defaultKeywordWeight  = 0.3
	defaultMatchThreshold = 0.2
	defaultInitialCount   = 30
	defaultRerankedCount  = 10
)

// DeriveParameters maps a query analysis onto retrieval parameters through
// a static rule table. It is pure and total: any analysis, including the
// zero value, yields valid parameters.
func DeriveParameters(analysis domain.QueryAnalysis) domain.RetrievalParameters {
	p := domain.RetrievalParameters{
		VectorWeight:       defaultVectorWeight,
		KeywordWeight:      defaultKeywordWeight,
		MatchThreshold:     defaultMatchThreshold,
		InitialCandidates:  defaultInitialCount,
		RerankedCandidates: defaultRerankedCount,
		Rerank:             true,
	}

	switch analysis.Intent {
	case domain.IntentTechnical:
		// Technical questions lean on exact terminology as much as meaning.
		p.VectorWeight = 0.8
		p.KeywordWeight = 0.5
		p.InitialCandidates = 40
	case domain.IntentSales:
		p.KeywordWeight = 0.6
		p.ExpandQuery = true
	case domain.IntentNavigational:
		// "where is the pricing page" style lookups: lexical match dominates
		// and a small candidate pool suffices.
		p.VectorWeight = 0.4
		p.KeywordWeight = 0.8
		p.InitialCandidates = 15
		p.RerankedCandidates = 5
	default:
		p.ExpandQuery = analysis.Confidence < 0.5
	}

	if len(analysis.Entities) >= 2 {
		p.KeywordWeight += 0.1
	}

	// Widen the analysed level by one step each way, then clamp to scale.
	// A zero (degenerate) analysis opens the full range.
	if analysis.TechnicalLevel == 0 {
		p.TechnicalLevelMin = domain.TechnicalLevelMin
		p.TechnicalLevelMax = domain.TechnicalLevelMax
	} else {
		p.TechnicalLevelMin = domain.ClampTechnicalLevel(analysis.TechnicalLevel - 1)
		p.TechnicalLevelMax = domain.ClampTechnicalLevel(analysis.TechnicalLevel + 1)
	}

	return p
}
