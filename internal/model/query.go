// Package model defines the core data types threaded through a research
// pipeline run: the immutable Query, retrieval Candidates and their scored
// RankedResults, per-agent outcomes, and the run-scoped PipelineState.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Intent is the coarse question category assigned by the upstream classifier.
type Intent string

const (
	IntentFactual    Intent = "factual"    // single verifiable fact ("what was Q3 revenue?")
	IntentAnalysis   Intent = "analysis"   // interpretation across sources
	IntentComparison Intent = "comparison" // two or more subjects side by side
	IntentGeneral    Intent = "general"    // unclassified or open-ended
)

// IsValid reports whether the intent is a known category.
func (i Intent) IsValid() bool {
	switch i {
	case IntentFactual, IntentAnalysis, IntentComparison, IntentGeneral:
		return true
	}
	return false
}

// Complexity is the query's complexity tier. Agents use it to pick retrieval
// depth: simple questions want few high-confidence results, comprehensive
// ones want more results at a lower threshold.
type Complexity string

const (
	ComplexitySimple        Complexity = "simple"
	ComplexityStandard      Complexity = "standard"
	ComplexityComprehensive Complexity = "comprehensive"
)

// IsValid reports whether the complexity is a known tier.
func (c Complexity) IsValid() bool {
	switch c {
	case ComplexitySimple, ComplexityStandard, ComplexityComprehensive:
		return true
	}
	return false
}

// AnswerShape is the expected form of the final answer.
type AnswerShape string

const (
	ShapeBrief    AnswerShape = "brief"
	ShapeDetailed AnswerShape = "detailed"
	ShapeList     AnswerShape = "list"
)

// Query is the immutable input to one pipeline run. Created once per request
// and never mutated; agents receive it by value.
type Query struct {
	ID   uuid.UUID
	Text string

	// Entity hints. SubjectCode is the instrument identifier (e.g. a ticker),
	// SubjectName the human-readable name. Both optional; agents that need
	// them skip when absent.
	SubjectCode string
	SubjectName string

	// Classification from the upstream intent classifier. Zero values mean
	// unclassified; Normalize fills in defaults.
	Intent      Intent
	Complexity  Complexity
	AnswerShape AnswerShape

	// SessionID links the query to prior conversation turns, when present.
	SessionID *uuid.UUID

	AskedAt time.Time
}

// HasSubject reports whether the query carries an entity hint usable for
// subject-scoped retrieval.
func (q Query) HasSubject() bool {
	return q.SubjectCode != "" || q.SubjectName != ""
}

// Normalize returns a copy with classification defaults applied and the
// timestamp canonicalized to UTC. Unknown classification values are replaced,
// not rejected: the classifier is an external collaborator and its vocabulary
// may drift ahead of ours.
func (q Query) Normalize(now time.Time) Query {
	if !q.Intent.IsValid() {
		q.Intent = IntentGeneral
	}
	if !q.Complexity.IsValid() {
		q.Complexity = ComplexityStandard
	}
	if q.AnswerShape == "" {
		q.AnswerShape = ShapeDetailed
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.AskedAt.IsZero() {
		q.AskedAt = now
	}
	q.AskedAt = q.AskedAt.UTC()
	return q
}
