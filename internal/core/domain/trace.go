package domain

import "time"

// TraceStage records one pipeline stage's duration and output size.
type TraceStage struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Results  int           `json:"results"`
}

// FilterDecision records how the search filter was chosen and whether the
// one-shot relaxation fired. InitialFilter is always the pre-relaxation,
// pre-balancing filter.
type FilterDecision struct {
	InitialFilter    SearchFilter `json:"initial_filter"`
	AppliedFilter    SearchFilter `json:"applied_filter"`
	CategoryBalanced bool         `json:"category_balanced"`
	FilterRelaxed    bool         `json:"filter_relaxed"`
	RelaxationReason string       `json:"relaxation_reason,omitempty"`
}

// SearchTrace is the append-only diagnostic record of one query's pipeline
// run. It is built once, never mutated after the pipeline completes, and
// persisted fire-and-forget.
type SearchTrace struct {
	ID             string              `json:"id"`
	Query          string              `json:"query"`
	SessionID      string              `json:"session_id,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    time.Time           `json:"completed_at"`
	Analysis       QueryAnalysis       `json:"analysis"`
	Parameters     RetrievalParameters `json:"parameters"`
	ExpandedQuery  string              `json:"expanded_query,omitempty"`
	AddedTerms     []string            `json:"added_terms,omitempty"`
	Decision       FilterDecision      `json:"decision"`
	Strategies     []string            `json:"strategies"`
	Stages         []TraceStage        `json:"stages"`
	CategoryCounts map[Category]int    `json:"category_counts"`
	ResultCount    int                 `json:"result_count"`
}
