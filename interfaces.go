package finsight

import (
	"context"

	"github.com/google/uuid"
)

// EmbeddingProvider generates vector embeddings from text.
// When provided via WithEmbeddingProvider, replaces the auto-detected
// Ollama/OpenAI/hash provider. Uses []float32 (not pgvector.Vector) so
// external consumers don't inherit the pgvector dependency; New() wraps it
// in an adapter for internal use.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// CompletionProvider synthesizes the final answer from a message sequence.
// When provided via WithCompletionProvider, replaces the OpenAI chat client.
type CompletionProvider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// VectorSearcher is the semantic nearest-neighbor retrieval port.
// When provided via WithVectorSearcher, replaces the auto-detected Qdrant
// index (or the pgvector fallback). Empty results are valid; connection
// failures are errors. Must be safe for concurrent use.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, filters SearchFilters, limit int) ([]SearchHit, error)
	Healthy(ctx context.Context) error
}

// LexicalSearcher is the keyword/full-text retrieval port.
// When provided via WithLexicalSearcher, replaces the Postgres full-text
// index. Same contract as VectorSearcher.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, filters SearchFilters, limit int) ([]SearchHit, error)
	Healthy(ctx context.Context) error
}

// WebSearcher queries the public web for recent coverage.
// When provided via WithWebSearcher, replaces the HTTP gateway client.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]WebResult, error)
}

// HistoryStore persists conversation turns per session.
// When provided via WithHistoryStore, replaces the Postgres-backed store.
type HistoryStore interface {
	AppendTurn(ctx context.Context, sessionID uuid.UUID, role, content string) error

	// RecentTurns returns up to limit of the most recent turns, ordered
	// oldest-first so they can be fed to a prompt as-is.
	RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]HistoryTurn, error)
}
