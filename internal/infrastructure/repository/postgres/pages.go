// Package postgres persists crawled pages and search traces.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

type PageRepository struct {
	db *sql.DB
}

func NewPageRepository(db *sql.DB) *PageRepository {
	return &PageRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PageRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across loader/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082301)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS pages (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	title TEXT,
	page_text TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT 'GENERAL',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	path_segments JSONB NOT NULL DEFAULT '[]'::jsonb,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
CREATE INDEX IF NOT EXISTS idx_pages_status ON pages(status);

CREATE TABLE IF NOT EXISTS search_traces (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	session_id TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	analysis JSONB NOT NULL DEFAULT '{}'::jsonb,
	parameters JSONB NOT NULL DEFAULT '{}'::jsonb,
	decision JSONB NOT NULL DEFAULT '{}'::jsonb,
	strategies JSONB NOT NULL DEFAULT '[]'::jsonb,
	stages JSONB NOT NULL DEFAULT '[]'::jsonb,
	category_counts JSONB NOT NULL DEFAULT '{}'::jsonb,
	expanded_query TEXT,
	result_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_search_traces_started_at ON search_traces(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_search_traces_session ON search_traces(session_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *PageRepository) Create(ctx context.Context, page *domain.Page) error {
	segmentsJSON, err := json.Marshal(page.PathSegments)
	if err != nil {
		return fmt.Errorf("marshal path segments: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO pages (
	id, url, title, page_text, category, confidence, path_segments, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (url) DO UPDATE
SET title = EXCLUDED.title,
	page_text = EXCLUDED.page_text,
	path_segments = EXCLUDED.path_segments,
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	updated_at = EXCLUDED.updated_at
`,
		page.ID, page.URL, page.Title, page.Text, string(page.Category), page.Confidence,
		segmentsJSON, string(page.Status), page.Error, page.CreatedAt, page.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "insert page", err)
	}
	return nil
}

func (r *PageRepository) GetByID(ctx context.Context, id string) (*domain.Page, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, url, title, page_text, category, confidence, path_segments, status, error_message, created_at, updated_at
FROM pages
WHERE id = $1
`, id)

	var page domain.Page
	var segmentsRaw []byte
	var category, status string

	err := row.Scan(
		&page.ID, &page.URL, &page.Title, &page.Text, &category, &page.Confidence,
		&segmentsRaw, &status, &page.Error, &page.CreatedAt, &page.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPageNotFound, "get page", fmt.Errorf("id %s", id))
		}
		return nil, domain.WrapError(domain.ErrPersistence, "scan page", err)
	}

	if err := json.Unmarshal(segmentsRaw, &page.PathSegments); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "unmarshal path segments", err)
	}
	page.Category = domain.Category(category)
	page.Status = domain.PageStatus(status)
	return &page, nil
}

func (r *PageRepository) UpdateStatus(ctx context.Context, id string, status domain.PageStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE pages
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "update page status", err)
	}
	return notFoundIfNoRows(res, "update page status", id)
}

func (r *PageRepository) SaveCategory(ctx context.Context, id string, category domain.Category, confidence float64) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE pages
SET category = $2, confidence = $3, updated_at = $4
WHERE id = $1
`, id, string(category), confidence, time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "save page category", err)
	}
	return notFoundIfNoRows(res, "save page category", id)
}

func notFoundIfNoRows(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrPageNotFound, operation, fmt.Errorf("id %s", id))
	}
	return nil
}
