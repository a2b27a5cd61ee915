package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
	"github.com/hrstream/knowledge-retrieval/internal/core/ports"
)

// crawlEntry is one page record in the crawler snapshot. Entries carrying a
// Status are failed fetches and are skipped.
type crawlEntry struct {
	Title            string `json:"title"`
	Text             string `json:"text"`
	ExtractionMethod string `json:"extraction_method"`
	Status           string `json:"status"`
}

// IngestCrawlUseCase loads a crawler snapshot (a JSON object keyed by URL)
// into the page store and announces each page for processing.
type IngestCrawlUseCase struct {
	repo   ports.PageRepository
	queue  ports.MessageQueue
	logger *slog.Logger
}

func NewIngestCrawlUseCase(repo ports.PageRepository, queue ports.MessageQueue, logger *slog.Logger) *IngestCrawlUseCase {
	return &IngestCrawlUseCase{repo: repo, queue: queue, logger: logger}
}

// IngestSnapshot decodes the snapshot and creates one page per usable entry.
// It returns the number of pages created. A bad individual entry is skipped
// and logged; only a malformed snapshot fails the whole ingest.
func (uc *IngestCrawlUseCase) IngestSnapshot(ctx context.Context, snapshot io.Reader) (int, error) {
	var entries map[string]crawlEntry
	if err := json.NewDecoder(snapshot).Decode(&entries); err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "decode crawl snapshot", err)
	}

	urls := make([]string, 0, len(entries))
	for u := range entries {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	created := 0
	for _, pageURL := range urls {
		entry := entries[pageURL]
		if entry.Status != "" {
			uc.logger.Debug("crawl_entry_skipped", "url", pageURL, "status", entry.Status)
			continue
		}
		if strings.TrimSpace(entry.Text) == "" {
			uc.logger.Debug("crawl_entry_skipped", "url", pageURL, "reason", "empty text")
			continue
		}

		now := time.Now().UTC()
		page := &domain.Page{
			ID:           uuid.NewString(),
			URL:          pageURL,
			Title:        strings.TrimSpace(entry.Title),
			Text:         entry.Text,
			Category:     domain.CategoryGeneral,
			PathSegments: splitPathSegments(pageURL),
			Status:       domain.StatusCrawled,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := uc.repo.Create(ctx, page); err != nil {
			uc.logger.Warn("crawl_entry_persist_failed", "url", pageURL, "error", err)
			continue
		}
		created++

		if err := uc.queue.PublishPageCrawled(ctx, page.ID); err != nil {
			uc.logger.Warn("page_crawled_publish_failed", "page_id", page.ID, "error", err)
		}
	}

	if created == 0 && len(entries) > 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "ingest crawl snapshot",
			errors.New("snapshot contained no usable entries"))
	}
	return created, nil
}

// splitPathSegments extracts the lowercase path parts of a URL for the
// url_path metadata filter ("/payroll/taxes" -> ["payroll", "taxes"]).
func splitPathSegments(rawURL string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	var segments []string
	for _, part := range strings.Split(parsed.Path, "/") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}
