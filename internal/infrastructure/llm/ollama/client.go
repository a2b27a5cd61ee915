// Package ollama adapts an Ollama model server to the retrieval
// capability ports: query analysis, expansion, chunk enrichment,
// relevance scoring, page classification, and embeddings.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
	"github.com/hrstream/knowledge-retrieval/internal/infrastructure/resilience"
)

// Config carries the model identifiers. The fallback models get exactly one
// retry when the primary fails.
type Config struct {
	BaseURL            string
	GenModel           string
	GenFallbackModel   string
	EmbedModel         string
	EmbedFallbackModel string
	EmbedDimension     int
}

type Client struct {
	baseURL  string
	cfg      Config
	http     *http.Client
	executor *resilience.Executor
	logger   *slog.Logger
}

func New(cfg Config, executor *resilience.Executor, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		cfg:      cfg,
		http:     &http.Client{Timeout: 120 * time.Second},
		executor: executor,
		logger:   logger,
	}
}

// generateJSON asks for a strict-JSON completion, retrying once against the
// fallback model when the primary fails.
func (c *Client) generateJSON(ctx context.Context, operation, prompt string) (string, error) {
	text, err := c.generateWith(ctx, operation, c.cfg.GenModel, prompt)
	if err == nil {
		return text, nil
	}
	if c.cfg.GenFallbackModel == "" || c.cfg.GenFallbackModel == c.cfg.GenModel {
		return "", err
	}
	c.logger.Warn("generate_fallback_model", "operation", operation, "error", err)
	text, ferr := c.generateWith(ctx, operation, c.cfg.GenFallbackModel, prompt)
	if ferr != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) generateWith(ctx context.Context, operation, model, prompt string) (string, error) {
	request := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	var response struct {
		Response string `json:"response"`
	}
	err := c.executor.Execute(ctx, operation, func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", request, &response, operation)
	}, classifyModelError)
	if err != nil {
		return "", wrapTemporaryIfNeeded(operation, err)
	}
	return strings.TrimSpace(response.Response), nil
}

// Analyzer implements query analysis over the generation endpoint.
type Analyzer struct {
	client *Client
}

func NewAnalyzer(client *Client) *Analyzer { return &Analyzer{client: client} }

func (a *Analyzer) Analyze(ctx context.Context, queryText string) (domain.QueryAnalysis, error) {
	raw, err := a.client.generateJSON(ctx, "analyze_query", buildAnalysisPrompt(queryText))
	if err != nil {
		return domain.QueryAnalysis{}, domain.WrapError(domain.ErrAnalysis, "analyze query", err)
	}

	var parsed struct {
		PrimaryCategory     string   `json:"primary_category"`
		SecondaryCategories []string `json:"secondary_categories"`
		TechnicalLevel      int      `json:"technical_level"`
		Intent              string   `json:"intent"`
		Entities            []struct {
			Name       string  `json:"name"`
			Type       string  `json:"type"`
			Confidence float64 `json:"confidence"`
		} `json:"entities"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return domain.QueryAnalysis{}, domain.WrapError(domain.ErrAnalysis, "parse analysis json", err)
	}

	analysis := domain.QueryAnalysis{
		PrimaryCategory: domain.NormalizeCategory(parsed.PrimaryCategory),
		TechnicalLevel:  parsed.TechnicalLevel,
		Intent:          domain.Intent(strings.ToLower(strings.TrimSpace(parsed.Intent))),
		Confidence:      parsed.Confidence,
	}
	for _, c := range parsed.SecondaryCategories {
		analysis.SecondaryCategories = append(analysis.SecondaryCategories, domain.NormalizeCategory(c))
	}
	for _, e := range parsed.Entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		analysis.Entities = append(analysis.Entities, domain.Entity{
			Name:       strings.TrimSpace(e.Name),
			Type:       strings.TrimSpace(e.Type),
			Confidence: domain.ClampScore(e.Confidence),
		})
	}
	return analysis, nil
}

// Expander implements advisory query expansion.
type Expander struct {
	client *Client
}

func NewExpander(client *Client) *Expander { return &Expander{client: client} }

func (e *Expander) Expand(ctx context.Context, queryText string) (domain.QueryExpansion, error) {
	raw, err := e.client.generateJSON(ctx, "expand_query", buildExpansionPrompt(queryText))
	if err != nil {
		return domain.QueryExpansion{}, err
	}

	var parsed struct {
		ExpandedQuery string   `json:"expanded_query"`
		AddedTerms    []string `json:"added_terms"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return domain.QueryExpansion{}, fmt.Errorf("parse expansion json: %w", err)
	}
	return domain.QueryExpansion{
		ExpandedQuery: strings.TrimSpace(parsed.ExpandedQuery),
		AddedTerms:    parsed.AddedTerms,
	}, nil
}

// Enricher annotates chunks, paced by a shared rate limiter so bulk
// ingestion cannot starve query-path model calls.
type Enricher struct {
	client  *Client
	limiter *rate.Limiter
}

func NewEnricher(client *Client, perSecond float64) *Enricher {
	if perSecond <= 0 {
		perSecond = 2
	}
	return &Enricher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (e *Enricher) EnrichChunk(ctx context.Context, chunkText string, page *domain.Page) (domain.ChunkAnnotation, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return domain.ChunkAnnotation{}, err
	}

	raw, err := e.client.generateJSON(ctx, "enrich_chunk", buildEnrichmentPrompt(chunkText, page))
	if err != nil {
		return domain.ChunkAnnotation{}, err
	}

	var parsed struct {
		Description    string   `json:"description"`
		KeyPoints      []string `json:"key_points"`
		TechnicalLevel int      `json:"technical_level"`
		Entities       []string `json:"entities"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return domain.ChunkAnnotation{}, fmt.Errorf("parse enrichment json: %w", err)
	}
	annotation := domain.ChunkAnnotation{
		Description: strings.TrimSpace(parsed.Description),
		KeyPoints:   parsed.KeyPoints,
	}
	if parsed.TechnicalLevel != 0 {
		annotation.TechnicalLevel = domain.ClampTechnicalLevel(parsed.TechnicalLevel)
	}
	for _, name := range parsed.Entities {
		if name = strings.TrimSpace(name); name != "" {
			annotation.Entities = append(annotation.Entities, name)
		}
	}
	return annotation, nil
}

// Scorer implements second-pass relevance scoring.
type Scorer struct {
	client *Client
}

func NewScorer(client *Client) *Scorer { return &Scorer{client: client} }

func (s *Scorer) ScoreRelevance(
	ctx context.Context,
	query string,
	candidates []domain.Candidate,
	visualTypes []string,
) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	raw, err := s.client.generateJSON(ctx, "score_relevance", buildScoringPrompt(query, candidates, visualTypes))
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerank, "score relevance", err)
	}

	var parsed struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, domain.WrapError(domain.ErrRerank, "parse scores json", err)
	}
	if len(parsed.Scores) != len(candidates) {
		return nil, domain.WrapError(domain.ErrRerank, "score relevance",
			fmt.Errorf("%d scores for %d candidates", len(parsed.Scores), len(candidates)))
	}
	return parsed.Scores, nil
}

// PageClassifier assigns a page category at ingestion time.
type PageClassifier struct {
	client *Client
}

func NewPageClassifier(client *Client) *PageClassifier { return &PageClassifier{client: client} }

func (p *PageClassifier) Classify(ctx context.Context, title, text string) (domain.Category, float64, error) {
	raw, err := p.client.generateJSON(ctx, "classify_page", buildClassificationPrompt(title, text))
	if err != nil {
		return domain.CategoryGeneral, 0, err
	}

	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return domain.CategoryGeneral, 0, fmt.Errorf("parse classification json: %w", err)
	}
	return domain.NormalizeCategory(parsed.Category), domain.ClampScore(parsed.Confidence), nil
}

// Embedder produces dense vectors. A failed batch degrades to per-item
// embedding, and an item that still fails gets a zero vector so chunk and
// vector counts always match.
type Embedder struct {
	client *Client
	logger *slog.Logger
}

func NewEmbedder(client *Client, logger *slog.Logger) *Embedder {
	return &Embedder{client: client, logger: logger}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.embedBatch(ctx, texts)
	if err == nil && len(vectors) == len(texts) {
		return vectors, nil
	}
	if err != nil {
		e.logger.Warn("embed_batch_degraded", "count", len(texts), "error", err)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		single, serr := e.embedBatch(ctx, []string{text})
		if serr != nil || len(single) == 0 {
			e.logger.Warn("embed_item_zeroed", "index", i, "error", serr)
			out[i] = make([]float32, e.client.cfg.EmbedDimension)
			continue
		}
		out[i] = single[0]
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed query", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed query", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.embedWith(ctx, e.client.cfg.EmbedModel, texts)
	if err == nil {
		return vectors, nil
	}
	fallback := e.client.cfg.EmbedFallbackModel
	if fallback == "" || fallback == e.client.cfg.EmbedModel {
		return nil, err
	}
	e.logger.Warn("embed_fallback_model", "error", err)
	vectors, ferr := e.embedWith(ctx, fallback, texts)
	if ferr != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *Embedder) embedWith(ctx context.Context, model string, texts []string) ([][]float32, error) {
	request := map[string]any{
		"model": model,
		"input": texts,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.executor.Execute(ctx, "embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
	}, classifyModelError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}
	return response.Embeddings, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
