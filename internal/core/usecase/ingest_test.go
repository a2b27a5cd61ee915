package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

type fakeQueue struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (q *fakeQueue) PublishPageCrawled(_ context.Context, pageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, pageID)
	return nil
}

func (q *fakeQueue) SubscribePageCrawled(context.Context, func(context.Context, string) error) error {
	return nil
}

const snapshotJSON = `{
	"https://example.com/payroll/taxes": {
		"title": "Payroll Taxes",
		"text": "How payroll taxes are calculated.",
		"extraction_method": "html"
	},
	"https://example.com/broken": {
		"status": "error: 404"
	},
	"https://example.com/empty": {
		"title": "Empty",
		"text": "   "
	},
	"https://example.com/pricing": {
		"title": "Pricing",
		"text": "Plans start at ten dollars.",
		"extraction_method": "readability"
	}
}`

func TestIngestSnapshotCreatesPagesAndPublishes(t *testing.T) {
	repo := newFakePageRepo()
	queue := &fakeQueue{}
	uc := NewIngestCrawlUseCase(repo, queue, testLogger())

	created, err := uc.IngestSnapshot(context.Background(), strings.NewReader(snapshotJSON))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 pages (error and empty entries skipped), got %d", created)
	}
	if len(queue.published) != 2 {
		t.Fatalf("expected 2 published ids, got %d", len(queue.published))
	}

	var payrollPage *domain.Page
	for _, p := range repo.pages {
		if p.URL == "https://example.com/payroll/taxes" {
			payrollPage = p
		}
	}
	if payrollPage == nil {
		t.Fatalf("payroll page not created")
	}
	if payrollPage.Status != domain.StatusCrawled {
		t.Fatalf("new page status: %s", payrollPage.Status)
	}
	if payrollPage.Title != "Payroll Taxes" {
		t.Fatalf("title: %q", payrollPage.Title)
	}
	if len(payrollPage.PathSegments) != 2 || payrollPage.PathSegments[0] != "payroll" || payrollPage.PathSegments[1] != "taxes" {
		t.Fatalf("path segments: %v", payrollPage.PathSegments)
	}
}

func TestIngestSnapshotMalformedJSON(t *testing.T) {
	uc := NewIngestCrawlUseCase(newFakePageRepo(), &fakeQueue{}, testLogger())

	_, err := uc.IngestSnapshot(context.Background(), strings.NewReader("not json"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestIngestSnapshotAllEntriesUnusable(t *testing.T) {
	uc := NewIngestCrawlUseCase(newFakePageRepo(), &fakeQueue{}, testLogger())

	_, err := uc.IngestSnapshot(context.Background(), strings.NewReader(`{"u": {"status": "error"}}`))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unusable snapshot, got %v", err)
	}
}

func TestIngestSnapshotPublishFailureDoesNotFailIngest(t *testing.T) {
	repo := newFakePageRepo()
	queue := &fakeQueue{err: errPublish}
	uc := NewIngestCrawlUseCase(repo, queue, testLogger())

	created, err := uc.IngestSnapshot(context.Background(), strings.NewReader(snapshotJSON))
	if err != nil {
		t.Fatalf("publish failure must not fail ingest: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 pages, got %d", created)
	}
}

var errPublish = errors.New("queue down")
