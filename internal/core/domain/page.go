package domain

import "time"

type PageStatus string

const (
	StatusCrawled    PageStatus = "crawled"
	StatusProcessing PageStatus = "processing"
	StatusReady      PageStatus = "ready"
	StatusFailed     PageStatus = "failed"
)

// Page is one crawled source document awaiting or past enrichment.
type Page struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Text         string     `json:"text"`
	Category     Category   `json:"category,omitempty"`
	Confidence   float64    `json:"confidence,omitempty"`
	PathSegments []string   `json:"path_segments,omitempty"`
	Status       PageStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Chunk is a bounded-size, semantically scoped segment of a page, the unit
// of retrieval. Text is the context-enriched form used for embedding;
// OriginalText is the verbatim segment.
type Chunk struct {
	ID             string   `json:"id"`
	PageID         string   `json:"page_id"`
	Index          int      `json:"chunk_index"`
	Text           string   `json:"text"`
	OriginalText   string   `json:"original_text"`
	Description    string   `json:"description,omitempty"`
	KeyPoints      []string `json:"key_points,omitempty"`
	TechnicalLevel int      `json:"technical_level,omitempty"`
	Entities       []string `json:"entities,omitempty"`
}

// ChunkAnnotation is the enrichment capability's per-chunk output. A
// TechnicalLevel of 0 means the chunk was not rated.
type ChunkAnnotation struct {
	Description    string   `json:"description"`
	KeyPoints      []string `json:"key_points"`
	TechnicalLevel int      `json:"technical_level,omitempty"`
	Entities       []string `json:"entities,omitempty"`
}
