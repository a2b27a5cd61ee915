// Package qdrant implements the chunk store over the Qdrant HTTP API, with
// a named dense vector for similarity search and a named sparse vector for
// lexical search.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

const (
	denseVectorName   = "dense"
	lexicalVectorName = "lexical"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) IndexChunks(ctx context.Context, page *domain.Page, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]any{
			"page_id":       page.ID,
			"url":           page.URL,
			"title":         page.Title,
			"category":      string(page.Category),
			"chunk_id":      chunk.ID,
			"chunk_index":   chunk.Index,
			"text":          chunk.Text,
			"original_text": chunk.OriginalText,
			"description":   chunk.Description,
			"entities":      strings.Join(chunk.Entities, ", "),
			"url_path":      strings.Join(page.PathSegments, ", "),
		}
		// An unrated chunk carries no level at all, so a level-range
		// filter cannot exclude it.
		if chunk.TechnicalLevel > 0 {
			payload["technical_level"] = strconv.Itoa(chunk.TechnicalLevel)
		}
		points = append(points, point{
			ID: chunk.ID,
			Vector: map[string]any{
				denseVectorName:   vectors[i],
				lexicalVectorName: encodeSparseDocument(chunk.Text, page.Title, page.PathSegments),
			},
			Payload: payload,
		})
	}

	reqBody := map[string]any{"points": points}
	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.do(ctx, http.MethodPut, path, reqBody, nil, "upsert")
}

// Search runs dense similarity search. Scores arrive in [0, 1] for cosine
// distance and are clamped anyway.
func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.Candidate, error) {
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": queryVector,
		},
		"limit":        limit,
		"with_payload": true,
	}

	hits, err := c.search(ctx, reqBody, "vector search")
	if err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		candidate := candidateFromPayload(h.Payload)
		candidate.VectorScore = domain.ClampScore(h.Score)
		out = append(out, candidate)
	}
	return out, nil
}

// SearchLexical runs sparse-vector search over the hashed-term index. Raw
// BM25-style scores are unbounded, so they are squashed into [0, 1).
func (c *Client) SearchLexical(ctx context.Context, queryText string, limit int) ([]domain.Candidate, error) {
	sparse := encodeSparseQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   lexicalVectorName,
			"vector": sparse,
		},
		"limit":        limit,
		"with_payload": true,
	}

	hits, err := c.search(ctx, reqBody, "lexical search")
	if err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		candidate := candidateFromPayload(h.Payload)
		candidate.KeywordScore = squashScore(h.Score)
		out = append(out, candidate)
	}
	return out, nil
}

type searchHit struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) search(ctx context.Context, reqBody map[string]any, operation string) ([]searchHit, error) {
	var response struct {
		Result []searchHit `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.do(ctx, http.MethodPost, path, reqBody, &response, operation); err != nil {
		return nil, err
	}
	return response.Result, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			lexicalVectorName: map[string]any{},
		},
	}

	path := "/collections/" + c.collection
	err := c.do(ctx, http.MethodPut, path, reqBody, nil, "ensure collection")
	if err != nil {
		// 409 means the collection already exists.
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
			c.markCollectionEnsured(vectorSize)
			return nil
		}
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

type statusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *statusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func candidateFromPayload(payload map[string]any) domain.Candidate {
	return domain.Candidate{
		ChunkID:      getStringPayload(payload, "chunk_id"),
		DocumentID:   getStringPayload(payload, "page_id"),
		Text:         getStringPayload(payload, "text"),
		OriginalText: getStringPayload(payload, "original_text"),
		Metadata: map[string]string{
			domain.MetaCategory:       getStringPayload(payload, "category"),
			domain.MetaTechnicalLevel: getStringPayload(payload, "technical_level"),
			domain.MetaEntities:       getStringPayload(payload, "entities"),
			domain.MetaURLPath:        getStringPayload(payload, "url_path"),
			domain.MetaTitle:          getStringPayload(payload, "title"),
			domain.MetaURL:            getStringPayload(payload, "url"),
		},
	}
}

// squashScore maps an unbounded non-negative score into [0, 1).
func squashScore(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (score + 1)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
