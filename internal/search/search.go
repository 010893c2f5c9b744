// Package search provides the retrieval ports for evidence gathering — a
// semantic vector index (Qdrant) and a lexical full-text index (Postgres,
// which also serves as a pgvector-backed semantic fallback) — plus the
// hybrid retriever that fuses both into one ranked, deduplicated list.
package search

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Hit is one raw backend match. Adapters populate content and timestamp from
// the backend payload so the retriever never needs a second hydration round
// trip on the hot path.
type Hit struct {
	ID      uuid.UUID
	Score   float64 // normalized to [0,1] by the adapter
	Content string
	// Timestamp is the content's publication/event time in UTC. Zone-less
	// values from the backend are treated as UTC.
	Timestamp time.Time
	// Payload carries backend metadata (source_id, channel, ...).
	Payload map[string]string
}

// Filters restrict a retrieval call to a slice of the corpus.
type Filters struct {
	// SubjectCode scopes results to one instrument when non-empty.
	SubjectCode string
	// Channel scopes results to one evidence channel (message, report,
	// filing, note) when non-empty.
	Channel string
	// Since excludes content older than the given time when non-zero.
	Since time.Time
}

// VectorSearcher is the semantic nearest-neighbor retrieval port.
// Implementations must be safe for concurrent use. An empty result is not an
// error; connection failures are.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, filters Filters, limit int) ([]Hit, error)

	// Healthy returns nil if the index is reachable.
	Healthy(ctx context.Context) error
}

// LexicalSearcher is the keyword/full-text retrieval port.
// Same contract as VectorSearcher: empty results are valid, connection
// failures are errors.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, filters Filters, limit int) ([]Hit, error)

	Healthy(ctx context.Context) error
}
