// Package agent implements the evidence-gathering agents dispatched by the
// pipeline. Each agent covers one source family (messages, reports,
// financials, industry, web) and reports a single AgentOutcome into its own
// pipeline slot.
package agent

import (
	"context"
	"errors"

	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/internal/search"
)

// Name identifies one agent.
type Name string

const (
	Messages   Name = "messages"
	Reports    Name = "reports"
	Financials Name = "financials"
	Industry   Name = "industry"
	WebSearch  Name = "websearch"
)

// Retriever is the slice of HybridRetriever the agents consume.
type Retriever interface {
	Retrieve(ctx context.Context, queryText string, filters search.Filters, topK int, minScore float64) ([]model.RankedResult, error)
}

// SourceAgent gathers evidence for a query. Run never panics and never
// propagates retrieval errors: failures are caught into the outcome. The
// outcome is written to the agent's own slot and returned for the caller's
// convenience.
type SourceAgent interface {
	Name() Name

	// RequiresSubject reports whether the agent is useless without an
	// entity hint. The pipeline skips such agents for subject-less queries
	// without invoking Run.
	RequiresSubject() bool

	Run(ctx context.Context, q model.Query, slot *model.Slot) model.AgentOutcome
}

// classifyKind maps a retrieval error to the error taxonomy.
func classifyKind(ctx context.Context, err error) model.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.KindTimeout
	}
	return model.KindBackendUnavailable
}
