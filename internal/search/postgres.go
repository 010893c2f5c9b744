package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndex implements LexicalSearcher over the evidence table's
// tsvector column, and VectorSearcher over its pgvector column. The vector
// side exists as a transparent fallback for deployments without a dedicated
// Qdrant index; the lexical side is the primary keyword retrieval port.
type PostgresIndex struct {
	pool   *pgxpool.Pool
	retry  RetryPolicy
	logger *slog.Logger
}

// NewPostgresIndex wraps an existing connection pool.
func NewPostgresIndex(pool *pgxpool.Pool, retry RetryPolicy, logger *slog.Logger) *PostgresIndex {
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	return &PostgresIndex{pool: pool, retry: retry, logger: logger}
}

// evidenceRow is the scan target shared by both search modes.
type evidenceRow struct {
	id          uuid.UUID
	subjectCode string
	channel     string
	sourceID    string
	content     string
	publishedAt time.Time
	rank        float64
}

// Search implements LexicalSearcher using websearch_to_tsquery, ranked by
// ts_rank_cd. Raw cover-density ranks are unbounded; they are squashed to
// [0,1) with rank/(rank+1) so lexical and semantic scores are comparable in
// the fusion step.
func (p *PostgresIndex) Search(ctx context.Context, query string, filters Filters, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	sql := `
		SELECT id, subject_code, channel, COALESCE(source_id, ''), content, published_at,
		       ts_rank_cd(tsv, websearch_to_tsquery('simple', $1)) AS rank
		FROM evidence
		WHERE tsv @@ websearch_to_tsquery('simple', $1)`
	args := []any{query}

	if filters.SubjectCode != "" {
		args = append(args, filters.SubjectCode)
		sql += fmt.Sprintf(" AND subject_code = $%d", len(args))
	}
	if filters.Channel != "" {
		args = append(args, filters.Channel)
		sql += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if !filters.Since.IsZero() {
		args = append(args, filters.Since.UTC())
		sql += fmt.Sprintf(" AND published_at >= $%d", len(args))
	}

	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY rank DESC LIMIT $%d", len(args))

	rows, err := p.queryRows(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("search: lexical query: %w", err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		r.rank = r.rank / (r.rank + 1)
		hits = append(hits, r.toHit())
	}
	return hits, nil
}

// SemanticSearch implements VectorSearcher semantics over the pgvector
// column using cosine distance. Similarity = 1 - distance.
func (p *PostgresIndex) SemanticSearch(ctx context.Context, embedding []float32, filters Filters, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	sql := `
		SELECT id, subject_code, channel, COALESCE(source_id, ''), content, published_at,
		       1 - (embedding <=> $1) AS rank
		FROM evidence
		WHERE embedding IS NOT NULL`
	args := []any{pgvector.NewVector(embedding)}

	if filters.SubjectCode != "" {
		args = append(args, filters.SubjectCode)
		sql += fmt.Sprintf(" AND subject_code = $%d", len(args))
	}
	if filters.Channel != "" {
		args = append(args, filters.Channel)
		sql += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if !filters.Since.IsZero() {
		args = append(args, filters.Since.UTC())
		sql += fmt.Sprintf(" AND published_at >= $%d", len(args))
	}

	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := p.queryRows(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("search: pgvector query: %w", err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		if r.rank < 0 {
			r.rank = 0
		}
		hits = append(hits, r.toHit())
	}
	return hits, nil
}

func (p *PostgresIndex) queryRows(ctx context.Context, sql string, args []any) ([]evidenceRow, error) {
	var out []evidenceRow
	err := p.retry.Do(ctx, func() error {
		rows, err := p.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var r evidenceRow
			if err := rows.Scan(&r.id, &r.subjectCode, &r.channel, &r.sourceID, &r.content, &r.publishedAt, &r.rank); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

func (r evidenceRow) toHit() Hit {
	payload := map[string]string{
		"subject_code": r.subjectCode,
		"channel":      r.channel,
	}
	if r.sourceID != "" {
		payload["source_id"] = r.sourceID
	}
	return Hit{
		ID:        r.id,
		Score:     r.rank,
		Content:   r.content,
		Timestamp: r.publishedAt.UTC(),
		Payload:   payload,
	}
}

// Healthy pings the pool.
func (p *PostgresIndex) Healthy(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("search: postgres unhealthy: %w", err)
	}
	return nil
}

// SemanticAdapter exposes the pgvector side of a PostgresIndex as a
// VectorSearcher, for deployments without Qdrant.
type SemanticAdapter struct {
	*PostgresIndex
}

// Search implements VectorSearcher.
func (a SemanticAdapter) Search(ctx context.Context, embedding []float32, filters Filters, limit int) ([]Hit, error) {
	return a.SemanticSearch(ctx, embedding, filters, limit)
}
