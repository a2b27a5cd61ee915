package domain

import (
	"strconv"
	"strings"
)

// Candidate metadata keys written by the indexer and read by the filter.
const (
	MetaCategory       = "category"
	MetaTechnicalLevel = "technical_level"
	MetaEntities       = "entities"
	MetaURLPath        = "url_path"
	MetaTitle          = "title"
	MetaURL            = "url"
)

// SearchFilter narrows one retrieval attempt. A filter value is never
// mutated after construction; relaxation and category balancing produce
// new values.
type SearchFilter struct {
	PrimaryCategory     Category
	SecondaryCategories []Category
	TechnicalLevelMin   int
	TechnicalLevelMax   int
	RequiredEntities    []string
	URLPathSegments     []string
}

func (f SearchFilter) IsZero() bool {
	return f.PrimaryCategory == "" &&
		len(f.SecondaryCategories) == 0 &&
		f.TechnicalLevelMin == 0 && f.TechnicalLevelMax == 0 &&
		len(f.RequiredEntities) == 0 &&
		len(f.URLPathSegments) == 0
}

// Matches reports whether a fused candidate passes the filter. Filtering is
// a post-step over fused candidates so that vector and lexical scores stay
// comparable.
func (f SearchFilter) Matches(c Candidate) bool {
	if f.IsZero() {
		return true
	}
	if f.PrimaryCategory != "" {
		if !categoryAllowed(Category(c.Metadata[MetaCategory]), f.PrimaryCategory, f.SecondaryCategories) {
			return false
		}
	}
	if f.TechnicalLevelMin > 0 || f.TechnicalLevelMax > 0 {
		if raw := c.Metadata[MetaTechnicalLevel]; raw != "" {
			// A stored 0 means the chunk was never rated; the range cannot
			// exclude it.
			if level, err := strconv.Atoi(raw); err == nil && level > 0 {
				if f.TechnicalLevelMin > 0 && level < f.TechnicalLevelMin {
					return false
				}
				if f.TechnicalLevelMax > 0 && level > f.TechnicalLevelMax {
					return false
				}
			}
		}
	}
	if len(f.RequiredEntities) > 0 {
		have := metadataList(c.Metadata[MetaEntities])
		for _, want := range f.RequiredEntities {
			if !containsFold(have, want) {
				return false
			}
		}
	}
	if len(f.URLPathSegments) > 0 {
		// Routing hints: any one matching segment is enough.
		have := metadataList(c.Metadata[MetaURLPath])
		matched := false
		for _, want := range f.URLPathSegments {
			if containsFold(have, want) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func categoryAllowed(got, primary Category, secondary []Category) bool {
	if got == primary {
		return true
	}
	for _, c := range secondary {
		if got == c {
			return true
		}
	}
	return false
}

func metadataList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

// Candidate is a chunk plus its per-search scores, prior to reranking.
// All scores are clamped to [0,1].
type Candidate struct {
	ChunkID      string
	DocumentID   string
	Text         string
	OriginalText string
	Metadata     map[string]string
	VectorScore  float64
	KeywordScore float64
	FusedScore   float64
}

// RankedResult is a candidate after the rerank stage.
type RankedResult struct {
	Candidate
	FinalScore    float64
	OriginalScore float64
	Explanation   string
}

// ClampScore bounds a relevance score to [0,1].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
