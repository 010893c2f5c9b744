package finsight

import (
	"io/fs"
	"log/slog"
)

// Option configures an Engine.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	databaseURL        string
	logger             *slog.Logger
	version            string
	embeddingProvider  EmbeddingProvider
	completionProvider CompletionProvider
	vectorSearcher     VectorSearcher
	lexicalSearcher    LexicalSearcher
	webSearcher        WebSearcher
	historyStore       HistoryStore
	extraMigrations    []fs.FS
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the Engine.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEmbeddingProvider replaces the auto-detected embedding provider
// (Ollama/OpenAI/hash). Only the last call wins.
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embeddingProvider = p }
}

// WithCompletionProvider replaces the OpenAI chat completion client used for
// answer synthesis. Only the last call wins.
func WithCompletionProvider(p CompletionProvider) Option {
	return func(o *resolvedOptions) { o.completionProvider = p }
}

// WithVectorSearcher replaces the auto-detected semantic index (Qdrant, or
// the pgvector fallback when Qdrant is not configured).
func WithVectorSearcher(s VectorSearcher) Option {
	return func(o *resolvedOptions) { o.vectorSearcher = s }
}

// WithLexicalSearcher replaces the Postgres full-text index.
func WithLexicalSearcher(s LexicalSearcher) Option {
	return func(o *resolvedOptions) { o.lexicalSearcher = s }
}

// WithWebSearcher replaces the HTTP web search gateway client.
func WithWebSearcher(w WebSearcher) Option {
	return func(o *resolvedOptions) { o.webSearcher = w }
}

// WithHistoryStore replaces the Postgres-backed conversation history store.
// Useful for tests (in-memory) or deployments without a database that still
// want session continuity.
func WithHistoryStore(h HistoryStore) Option {
	return func(o *resolvedOptions) { o.historyStore = h }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run
// after the embedded migrations. Multiple filesystems may be registered;
// they are applied in registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
