package domain

// Intent describes what the user is trying to accomplish with a query.
type Intent string

const (
	IntentInformational Intent = "informational"
	IntentTechnical     Intent = "technical"
	IntentSales         Intent = "sales"
	IntentNavigational  Intent = "navigational"
)

// Supported technical-level scale. Analysis output and filter ranges are
// always clamped into this interval.
const (
	TechnicalLevelMin = 1
	TechnicalLevelMax = 5
)

// Query is the raw retrieval request.
type Query struct {
	Text         string
	Conversation string // optional prior-turn context
	SessionID    string
}

// Entity is a named entity detected in the query text.
type Entity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// QueryAnalysis is the classifier's view of a query. It is always usable:
// when the capability fails, a low-confidence heuristic analysis stands in.
type QueryAnalysis struct {
	PrimaryCategory     Category   `json:"primary_category"`
	SecondaryCategories []Category `json:"secondary_categories"`
	TechnicalLevel      int        `json:"technical_level"`
	Intent              Intent     `json:"intent"`
	Entities            []Entity   `json:"entities"`
	Confidence          float64    `json:"confidence"`
}

// QueryExpansion is advisory output used only for the search call; reranking
// always judges against the original query.
type QueryExpansion struct {
	ExpandedQuery string   `json:"expanded_query"`
	AddedTerms    []string `json:"added_terms"`
}

// RetrievalParameters are the knobs derived from a QueryAnalysis.
// VectorWeight and KeywordWeight are independent multipliers and do not
// need to sum to 1.
type RetrievalParameters struct {
	VectorWeight       float64
	KeywordWeight      float64
	MatchThreshold     float64
	InitialCandidates  int
	RerankedCandidates int
	TechnicalLevelMin  int
	TechnicalLevelMax  int
	ExpandQuery        bool
	Rerank             bool
}

// ClampTechnicalLevel bounds a level to the supported scale.
func ClampTechnicalLevel(level int) int {
	if level < TechnicalLevelMin {
		return TechnicalLevelMin
	}
	if level > TechnicalLevelMax {
		return TechnicalLevelMax
	}
	return level
}
