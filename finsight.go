// Package finsight is the public API for embedding the Finsight research
// engine: a multi-source retrieval and ranking pipeline behind a stock
// research assistant.
//
// Consumers import this package to construct the engine and run queries
// without touching the internal packages:
//
//	eng, err := finsight.New(
//	    finsight.WithVersion(version),
//	    finsight.WithLogger(logger),
//	)
//	if err != nil { ... }
//	defer eng.Close(context.Background())
//
//	resp, err := eng.Process(ctx, finsight.Query{
//	    Text:        "How did Apple's services revenue develop last quarter?",
//	    SubjectCode: "AAPL",
//	    SubjectName: "Apple",
//	})
//
// The import graph enforces a strict no-cycle rule: finsight (root) imports
// internal/*, but internal/* never imports finsight (root). Public types
// (Query, Response, SearchHit, ...) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file that
// sees both sides of the boundary.
package finsight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pgvector/pgvector-go"

	"github.com/finsight-ai/finsight/internal/agent"
	"github.com/finsight-ai/finsight/internal/config"
	"github.com/finsight-ai/finsight/internal/history"
	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/internal/pipeline"
	"github.com/finsight-ai/finsight/internal/search"
	"github.com/finsight-ai/finsight/internal/service/completion"
	"github.com/finsight-ai/finsight/internal/service/embedding"
	"github.com/finsight-ai/finsight/internal/storage"
	"github.com/finsight-ai/finsight/internal/telemetry"
	"github.com/finsight-ai/finsight/internal/websearch"
	"github.com/finsight-ai/finsight/migrations"
)

// Engine is the research pipeline lifecycle. Construct with New(), query
// with Process(), release with Close(). Engine has no public fields — use
// New() options to configure it.
type Engine struct {
	cfg          config.Config
	db           *storage.DB        // nil when no database is configured
	clients      *agent.ClientCache // owns the backend client lifecycle
	vec          search.VectorSearcher
	lex          search.LexicalSearcher
	history      history.Store
	orchestrator *pipeline.Orchestrator
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the engine. It connects to the configured backends, runs
// migrations, wires the agents and the orchestrator, and returns a
// ready-to-query Engine. It starts no goroutines.
func New(opts ...Option) (*Engine, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("finsight starting", "version", version)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx(opts), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to the database and run migrations. The database is optional:
	// without it the lexical index, the pgvector fallback, and session
	// history are disabled.
	var db *storage.DB
	if cfg.DatabaseURL != "" {
		db, err = storage.New(context.Background(), cfg.DatabaseURL, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("storage: %w", err)
		}
		if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("migrations: %w", err)
		}
		for i, extraFS := range o.extraMigrations {
			if err := db.RunMigrations(context.Background(), extraFS); err != nil {
				db.Close()
				_ = otelShutdown(context.Background())
				return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
			}
		}
	} else {
		logger.Info("postgres: disabled (no DATABASE_URL)")
	}

	// Create embedding provider — external override takes priority over auto-detect.
	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = &embedderAdapter{p: o.embeddingProvider}
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}

	// Backend clients are built through a cache keyed by embedding model and
	// namespace: agents sharing a configuration share one connection, and the
	// cache owns the close-once lifecycle.
	clients := agent.NewClientCache(func(key agent.ClientKey) (agent.RetrievalClient, error) {
		idx, err := search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: key.Namespace,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := idx.EnsureCollection(context.Background()); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("ensure collection: %w", err)
		}
		return idx, nil
	})

	// Semantic index: Qdrant when configured, otherwise the pgvector side of
	// the evidence table when a database is present.
	var vec search.VectorSearcher
	if cfg.QdrantURL != "" {
		client, cerr := clients.Get(agent.ClientKey{
			EmbeddingModel: cfg.EmbeddingModel,
			Namespace:      cfg.QdrantCollection,
		})
		if cerr != nil {
			_ = clients.Close()
			closeDB(db)
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant: %w", cerr)
		}
		vec = client.(*search.QdrantIndex)
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no FINSIGHT_QDRANT_URL)")
	}

	// Lexical index over the evidence table.
	var lex search.LexicalSearcher
	if db != nil {
		pgIndex := search.NewPostgresIndex(db.Pool(), search.RetryPolicy{}, logger)
		lex = pgIndex
		if vec == nil {
			vec = search.SemanticAdapter{PostgresIndex: pgIndex}
			logger.Info("semantic index: pgvector fallback")
		}
	}

	// External searcher overrides.
	if o.vectorSearcher != nil {
		vec = &vectorSearcherAdapter{s: o.vectorSearcher}
	}
	if o.lexicalSearcher != nil {
		lex = &lexicalSearcherAdapter{s: o.lexicalSearcher}
	}

	// Retrieval mode follows the available backends.
	var retriever *search.HybridRetriever
	switch {
	case vec != nil && lex != nil:
		retriever, err = search.NewHybridRetriever(vec, lex, searchEmbedder{p: embedder}, search.RetrieverConfig{Mode: search.ModeHybrid}, logger)
	case vec != nil:
		retriever, err = search.NewHybridRetriever(vec, nil, searchEmbedder{p: embedder}, search.RetrieverConfig{Mode: search.ModeSemantic}, logger)
	case lex != nil:
		retriever, err = search.NewHybridRetriever(nil, lex, nil, search.RetrieverConfig{Mode: search.ModeLexical}, logger)
	default:
		logger.Warn("retrieval: disabled (no database or qdrant configured) — only web search will run")
	}
	if err != nil {
		_ = clients.Close()
		closeDB(db)
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("retriever: %w", err)
	}

	// Completion provider for answer synthesis.
	var completer completion.Provider
	switch {
	case o.completionProvider != nil:
		completer = &completerAdapter{p: o.completionProvider}
	case cfg.OpenAIAPIKey != "":
		logger.Info("completion provider: openai", "model", cfg.CompletionModel)
		completer = completion.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.CompletionModel)
	default:
		logger.Warn("completion provider: static (no OPENAI_API_KEY — answers echo the question)")
		completer = &completion.StaticProvider{}
	}

	// Web search client. Without a gateway the agent runs and reports
	// empty results.
	var webClient websearch.Client
	switch {
	case o.webSearcher != nil:
		webClient = &webSearcherAdapter{w: o.webSearcher}
	case cfg.WebSearchEndpoint != "":
		logger.Info("web search: enabled", "endpoint", cfg.WebSearchEndpoint)
		webClient = websearch.NewHTTPClient(cfg.WebSearchEndpoint, cfg.WebSearchAPIKey, search.RetryPolicy{})
	default:
		logger.Info("web search: disabled (no FINSIGHT_WEBSEARCH_ENDPOINT)")
		webClient = websearch.NoopClient{}
	}

	// Conversation history. The pipeline only reads it; writes go through
	// Engine.AppendTurn.
	var hist history.Store
	switch {
	case o.historyStore != nil:
		hist = &historyStoreAdapter{h: o.historyStore}
	case db != nil:
		hist = history.NewPostgresStore(db.Pool())
	default:
		hist = history.NoopStore{}
	}

	// Agent registry. Retrieval agents exist only when a retriever does.
	registry := &agent.Registry{
		WebSearch: agent.NewWebSearchAgent(webClient, logger),
	}
	if retriever != nil {
		registry.Messages = agent.NewMessagesAgent(retriever, logger)
		registry.Reports = agent.NewReportsAgent(retriever, logger)
		registry.Financials = agent.NewFinancialsAgent(retriever, logger)
		registry.Industry = agent.NewIndustryAgent(retriever, logger)
	}

	orchestrator := pipeline.New(registry, completer, hist, pipeline.Config{
		AgentTimeout:      cfg.AgentTimeout,
		PipelineTimeout:   cfg.PipelineTimeout,
		MaxParallelAgents: cfg.MaxParallelAgents,
	}, logger)

	return &Engine{
		cfg:          cfg,
		db:           db,
		clients:      clients,
		vec:          vec,
		lex:          lex,
		history:      hist,
		orchestrator: orchestrator,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Process runs the full pipeline for one query: planning, concurrent agent
// dispatch, cross-source merging, and answer synthesis. It returns an error
// only for queries that cannot start a run at all (empty text); every
// downstream failure degrades into the Response instead.
func (e *Engine) Process(ctx context.Context, q Query) (Response, error) {
	resp, err := e.orchestrator.Run(ctx, model.Query{
		Text:        q.Text,
		SubjectCode: q.SubjectCode,
		SubjectName: q.SubjectName,
		Intent:      model.Intent(q.Intent),
		Complexity:  model.Complexity(q.Complexity),
		AnswerShape: model.AnswerShape(q.AnswerShape),
		SessionID:   q.SessionID,
	})
	if err != nil {
		return Response{}, err
	}
	return toPublicResponse(resp), nil
}

// AppendTurn records one conversation turn for a session. Process never
// writes session history itself — a caller that wants the conversation
// persisted records the question and the answer through this after each run.
func (e *Engine) AppendTurn(ctx context.Context, sessionID uuid.UUID, role, content string) error {
	return e.history.AppendTurn(ctx, sessionID, role, content)
}

// Healthy reports whether every configured retrieval backend is reachable.
// Backends that are not configured are not checked.
func (e *Engine) Healthy(ctx context.Context) error {
	var errs []error
	if e.vec != nil {
		if err := e.vec.Healthy(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.lex != nil {
		if err := e.lex.Healthy(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the engine's backends and flushes telemetry. The engine
// must not be used after Close.
func (e *Engine) Close(ctx context.Context) error {
	e.logger.Info("finsight shutting down")
	_ = e.clients.Close()
	if e.db != nil {
		e.db.Close()
	}
	err := e.otelShutdown(ctx)
	e.logger.Info("finsight stopped")
	return err
}

// Version returns the configured version string.
func (e *Engine) Version() string { return e.version }

// ── Helpers ────────────────────────────────────────────────────────────────────

func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when FINSIGHT_EMBEDDING_PROVIDER=openai")
			return embedding.NewHashProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, dims)
	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
	case "hash":
		logger.Info("embedding provider: hash (deterministic, development only)")
		return embedding.NewHashProvider(dims)
	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, dims)
		}
		logger.Warn("no embedding provider available, using deterministic hash embeddings")
		return embedding.NewHashProvider(dims)
	}
}

func ollamaReachable(baseURL string) bool {
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(c, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func closeDB(db *storage.DB) {
	if db != nil {
		db.Close()
	}
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// embedderAdapter wraps a public EmbeddingProvider to satisfy embedding.Provider.
type embedderAdapter struct {
	p EmbeddingProvider
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	v, err := a.p.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return pgvector.NewVector(v), nil
}

func (a *embedderAdapter) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vs, err := a.p.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]pgvector.Vector, len(vs))
	for i, v := range vs {
		out[i] = pgvector.NewVector(v)
	}
	return out, nil
}

func (a *embedderAdapter) Dimensions() int { return a.p.Dimensions() }

// searchEmbedder shrinks an embedding.Provider to the retriever's narrow
// []float32 contract.
type searchEmbedder struct {
	p embedding.Provider
}

func (s searchEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := s.p.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return v.Slice(), nil
}

// vectorSearcherAdapter wraps a public VectorSearcher to satisfy search.VectorSearcher.
type vectorSearcherAdapter struct {
	s VectorSearcher
}

func (a *vectorSearcherAdapter) Search(ctx context.Context, emb []float32, filters search.Filters, limit int) ([]search.Hit, error) {
	hits, err := a.s.Search(ctx, emb, toPublicFilters(filters), limit)
	if err != nil {
		return nil, err
	}
	return toInternalHits(hits), nil
}

func (a *vectorSearcherAdapter) Healthy(ctx context.Context) error { return a.s.Healthy(ctx) }

// lexicalSearcherAdapter wraps a public LexicalSearcher to satisfy search.LexicalSearcher.
type lexicalSearcherAdapter struct {
	s LexicalSearcher
}

func (a *lexicalSearcherAdapter) Search(ctx context.Context, query string, filters search.Filters, limit int) ([]search.Hit, error) {
	hits, err := a.s.Search(ctx, query, toPublicFilters(filters), limit)
	if err != nil {
		return nil, err
	}
	return toInternalHits(hits), nil
}

func (a *lexicalSearcherAdapter) Healthy(ctx context.Context) error { return a.s.Healthy(ctx) }

// webSearcherAdapter wraps a public WebSearcher to satisfy websearch.Client.
type webSearcherAdapter struct {
	w WebSearcher
}

func (a *webSearcherAdapter) Search(ctx context.Context, query string, limit int) ([]websearch.Result, error) {
	results, err := a.w.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]websearch.Result, len(results))
	for i, r := range results {
		out[i] = websearch.Result{
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     r.Snippet,
			PublishedAt: r.PublishedAt,
		}
	}
	return out, nil
}

// completerAdapter wraps a public CompletionProvider to satisfy completion.Provider.
type completerAdapter struct {
	p CompletionProvider
}

func (a *completerAdapter) Complete(ctx context.Context, messages []completion.Message) (string, error) {
	msgs := make([]Message, len(messages))
	for i, m := range messages {
		msgs[i] = Message{Role: m.Role, Content: m.Content}
	}
	return a.p.Complete(ctx, msgs)
}

// historyStoreAdapter wraps a public HistoryStore to satisfy history.Store.
type historyStoreAdapter struct {
	h HistoryStore
}

func (a *historyStoreAdapter) AppendTurn(ctx context.Context, sessionID uuid.UUID, role, content string) error {
	return a.h.AppendTurn(ctx, sessionID, role, content)
}

func (a *historyStoreAdapter) RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]history.Turn, error) {
	turns, err := a.h.RecentTurns(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]history.Turn, len(turns))
	for i, t := range turns {
		out[i] = history.Turn{Role: t.Role, Content: t.Content, CreatedAt: t.CreatedAt}
	}
	return out, nil
}

// ── Type converters ────────────────────────────────────────────────────────────

func toPublicFilters(f search.Filters) SearchFilters {
	return SearchFilters{
		SubjectCode: f.SubjectCode,
		Channel:     f.Channel,
		Since:       f.Since,
	}
}

func toInternalHits(hits []SearchHit) []search.Hit {
	out := make([]search.Hit, len(hits))
	for i, h := range hits {
		out[i] = search.Hit{
			ID:        h.ID,
			Score:     h.Score,
			Content:   h.Content,
			Timestamp: h.PublishedAt,
			Payload:   h.Metadata,
		}
	}
	return out
}

// toPublicResponse converts an internal model.Response to the public
// finsight.Response. Lives here because this is the only file that imports
// both sides of the boundary.
func toPublicResponse(r model.Response) Response {
	evidence := make([]EvidenceItem, len(r.Evidence))
	for i, res := range r.Evidence {
		evidence[i] = EvidenceItem{
			ID:          res.Candidate.ID,
			Content:     res.Candidate.Content,
			PublishedAt: res.Candidate.Timestamp,
			Score:       res.Score,
			Importance:  res.Importance,
			Recency:     res.Recency,
			SourceIDs:   res.SourceIDs,
			Agents:      res.Agents,
			Provenance:  res.Candidate.Provenance,
		}
	}

	status := make(map[string]string, len(r.AgentStatus))
	for name, s := range r.AgentStatus {
		status[name] = string(s)
	}

	issues := make([]AgentIssue, len(r.Errors))
	for i, e := range r.Errors {
		issues[i] = AgentIssue{Agent: e.Agent, Kind: string(e.Kind), Message: e.Message}
	}

	return Response{
		Answer:      r.Answer,
		Category:    string(r.Category),
		Evidence:    evidence,
		AgentStatus: status,
		Issues:      issues,
		Elapsed:     r.Elapsed,
	}
}

// ctx is a no-op helper so that New(opts ...) can pass a background context
// to telemetry.Init without adding a context parameter to the public API.
// The returned context is never cancelled by this function.
func ctx(_ []Option) context.Context { return context.Background() }
