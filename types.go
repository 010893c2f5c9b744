package finsight

import (
	"time"

	"github.com/google/uuid"
)

// Intent is the coarse question category assigned by the caller's intent
// classifier. Unknown values are treated as IntentGeneral.
type Intent string

const (
	IntentFactual    Intent = "factual"
	IntentAnalysis   Intent = "analysis"
	IntentComparison Intent = "comparison"
	IntentGeneral    Intent = "general"
)

// Complexity is the query's complexity tier. It controls retrieval depth:
// simple questions fetch few high-confidence results, comprehensive ones
// fetch more at a lower threshold.
type Complexity string

const (
	ComplexitySimple        Complexity = "simple"
	ComplexityStandard      Complexity = "standard"
	ComplexityComprehensive Complexity = "comprehensive"
)

// AnswerShape is the expected form of the final answer.
type AnswerShape string

const (
	ShapeBrief    AnswerShape = "brief"
	ShapeDetailed AnswerShape = "detailed"
	ShapeList     AnswerShape = "list"
)

// Query is one research question. Only Text is required; everything else is
// an optional hint. It is a curated view of internal/model.Query for use at
// the public boundary — no internal package imports.
type Query struct {
	Text string

	// SubjectCode is the instrument identifier (e.g. a ticker), SubjectName
	// the human-readable company name. Agents that need a subject skip
	// themselves when both are absent.
	SubjectCode string
	SubjectName string

	// Classification hints. Zero values get defaults (general / standard /
	// detailed).
	Intent      Intent
	Complexity  Complexity
	AnswerShape AnswerShape

	// SessionID links the query to prior conversation turns. Nil means a
	// one-shot question with no history.
	SessionID *uuid.UUID
}

// EvidenceItem is one merged, deduplicated piece of evidence in a Response.
type EvidenceItem struct {
	ID          uuid.UUID
	Content     string
	PublishedAt time.Time

	// Score is the fused relevance score; Importance and Recency are the
	// component weights that fed it.
	Score      float64
	Importance float64
	Recency    float64

	// SourceIDs lists every source that reported this evidence; Agents
	// lists the agents that contributed it.
	SourceIDs []string
	Agents    []string

	// Provenance carries backend metadata (source_id, channel, title, ...).
	Provenance map[string]string
}

// AgentIssue is one caught agent-level failure, surfaced for observability.
// Issues never fail a Process call; the answer degrades instead.
type AgentIssue struct {
	Agent   string
	Kind    string // timeout | backend_unavailable | no_evidence | permission | ...
	Message string
}

// Response is the engine's reply to one Process call. Answer is always
// populated, possibly with a degraded fallback.
type Response struct {
	Answer string

	// Category is empty on a fully successful run; otherwise it names the
	// dominant failure class (timeout, backend_unavailable, partial_evidence, ...).
	Category string

	Evidence []EvidenceItem

	// AgentStatus maps agent name to its terminal status
	// (success | partial | failed | skipped).
	AgentStatus map[string]string

	Issues  []AgentIssue
	Elapsed time.Duration
}

// SearchFilters restrict a retrieval call to a slice of the corpus.
// Mirrors internal/search.Filters for the public searcher interfaces.
type SearchFilters struct {
	SubjectCode string
	Channel     string
	Since       time.Time
}

// SearchHit is one raw backend match returned by a custom searcher.
type SearchHit struct {
	ID uuid.UUID
	// Score must be normalized to [0,1].
	Score       float64
	Content     string
	PublishedAt time.Time
	// Metadata carries provenance keys (source_id, channel, ...).
	Metadata map[string]string
}

// WebResult is one result from a custom web search client.
type WebResult struct {
	Title       string
	URL         string
	Snippet     string
	PublishedAt time.Time
}

// HistoryTurn is one utterance in a conversation session.
type HistoryTurn struct {
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Message is one chat message passed to a CompletionProvider.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}
