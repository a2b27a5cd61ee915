package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

type TraceRepository struct {
	db *sql.DB
}

func NewTraceRepository(db *sql.DB) *TraceRepository {
	return &TraceRepository{db: db}
}

func (r *TraceRepository) SaveTrace(ctx context.Context, trace domain.SearchTrace) error {
	analysisJSON, err := json.Marshal(trace.Analysis)
	if err != nil {
		return fmt.Errorf("marshal trace analysis: %w", err)
	}
	parametersJSON, err := json.Marshal(trace.Parameters)
	if err != nil {
		return fmt.Errorf("marshal trace parameters: %w", err)
	}
	decisionJSON, err := json.Marshal(trace.Decision)
	if err != nil {
		return fmt.Errorf("marshal trace decision: %w", err)
	}
	strategiesJSON, err := json.Marshal(trace.Strategies)
	if err != nil {
		return fmt.Errorf("marshal trace strategies: %w", err)
	}
	stagesJSON, err := json.Marshal(trace.Stages)
	if err != nil {
		return fmt.Errorf("marshal trace stages: %w", err)
	}
	countsJSON, err := json.Marshal(trace.CategoryCounts)
	if err != nil {
		return fmt.Errorf("marshal trace category counts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO search_traces (
	id, query, session_id, started_at, completed_at,
	analysis, parameters, decision, strategies, stages, category_counts,
	expanded_query, result_count
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		trace.ID, trace.Query, trace.SessionID, trace.StartedAt, trace.CompletedAt,
		analysisJSON, parametersJSON, decisionJSON, strategiesJSON, stagesJSON, countsJSON,
		trace.ExpandedQuery, trace.ResultCount,
	)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "insert search trace", err)
	}
	return nil
}
