package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/internal/search"
)

// retrievalAgent is the shared implementation behind the index-backed
// agents. Each instance is bound to one evidence channel.
type retrievalAgent struct {
	name            Name
	channel         string
	requiresSubject bool

	// emptyIsPartial marks channels whose contract is non-empty-or-failed:
	// an empty result set is reported as partial with a no-evidence error
	// instead of a trivial success.
	emptyIsPartial bool

	retriever Retriever
	logger    *slog.Logger
}

func (a *retrievalAgent) Name() Name            { return a.name }
func (a *retrievalAgent) RequiresSubject() bool { return a.requiresSubject }

func (a *retrievalAgent) Run(ctx context.Context, q model.Query, slot *model.Slot) model.AgentOutcome {
	start := time.Now()

	if a.requiresSubject && !q.HasSubject() {
		out := model.SkippedOutcome(string(a.name), "query carries no entity hint")
		slot.Write(out)
		return out
	}

	depth := depthFor(q.Complexity)
	filters := search.Filters{Channel: a.channel}
	if a.requiresSubject {
		filters.SubjectCode = q.SubjectCode
	}

	results, err := a.retriever.Retrieve(ctx, a.queryText(q), filters, depth.topK, depth.minScore)
	if err != nil {
		a.logger.Warn("agent retrieval failed", "agent", a.name, "error", err)
		out := model.FailedOutcome(string(a.name), classifyKind(ctx, err),
			fmt.Sprintf("retrieve %s evidence: %v", a.channel, err), time.Since(start))
		slot.Write(out)
		return out
	}

	for i := range results {
		results[i].Agents = []string{string(a.name)}
	}

	out := model.AgentOutcome{
		Agent:   string(a.name),
		Status:  model.OutcomeSuccess,
		Results: results,
		Elapsed: time.Since(start),
	}
	if len(results) == 0 && a.emptyIsPartial {
		out.Status = model.OutcomePartial
		out.Err = &model.AgentError{
			Agent:   string(a.name),
			Kind:    model.KindNoEvidence,
			Message: fmt.Sprintf("no %s evidence matched the query", a.channel),
		}
	}
	slot.Write(out)
	return out
}

// queryText builds the retrieval query. Subject-less channels get the
// subject name appended when known, so industry-wide search still leans
// toward the entity under discussion.
func (a *retrievalAgent) queryText(q model.Query) string {
	if !a.requiresSubject && q.SubjectName != "" && !strings.Contains(strings.ToLower(q.Text), strings.ToLower(q.SubjectName)) {
		return q.Text + " " + q.SubjectName
	}
	return q.Text
}

// NewMessagesAgent retrieves investor chatter and announcements. Requires a
// subject; empty results are partial, not success.
func NewMessagesAgent(r Retriever, logger *slog.Logger) SourceAgent {
	return &retrievalAgent{
		name:            Messages,
		channel:         "message",
		requiresSubject: true,
		emptyIsPartial:  true,
		retriever:       r,
		logger:          logger,
	}
}

// NewReportsAgent retrieves research report excerpts. Requires a subject;
// empty results are partial, not success.
func NewReportsAgent(r Retriever, logger *slog.Logger) SourceAgent {
	return &retrievalAgent{
		name:            Reports,
		channel:         "report",
		requiresSubject: true,
		emptyIsPartial:  true,
		retriever:       r,
		logger:          logger,
	}
}

// NewIndustryAgent retrieves sector and industry context. Runs for any
// query; subject hints only bias the query text.
func NewIndustryAgent(r Retriever, logger *slog.Logger) SourceAgent {
	return &retrievalAgent{
		name:      Industry,
		channel:   "industry",
		retriever: r,
		logger:    logger,
	}
}

// financialsAgent retrieves financial statement evidence and digests the
// top findings into a summary for the finalization prompt.
type financialsAgent struct {
	retrievalAgent
}

// NewFinancialsAgent retrieves financial statement evidence. Requires a
// subject.
func NewFinancialsAgent(r Retriever, logger *slog.Logger) SourceAgent {
	return &financialsAgent{retrievalAgent{
		name:            Financials,
		channel:         "financial",
		requiresSubject: true,
		emptyIsPartial:  true,
		retriever:       r,
		logger:          logger,
	}}
}

// digestTopResults is how many findings make it into the digest.
const digestTopResults = 3

func (a *financialsAgent) Run(ctx context.Context, q model.Query, slot *model.Slot) model.AgentOutcome {
	start := time.Now()

	if !q.HasSubject() {
		out := model.SkippedOutcome(string(a.name), "query carries no entity hint")
		slot.Write(out)
		return out
	}

	depth := depthFor(q.Complexity)
	filters := search.Filters{Channel: a.channel, SubjectCode: q.SubjectCode}

	results, err := a.retriever.Retrieve(ctx, q.Text, filters, depth.topK, depth.minScore)
	if err != nil {
		a.logger.Warn("agent retrieval failed", "agent", a.name, "error", err)
		out := model.FailedOutcome(string(a.name), classifyKind(ctx, err),
			fmt.Sprintf("retrieve %s evidence: %v", a.channel, err), time.Since(start))
		slot.Write(out)
		return out
	}

	for i := range results {
		results[i].Agents = []string{string(a.name)}
	}

	out := model.AgentOutcome{
		Agent:   string(a.name),
		Status:  model.OutcomeSuccess,
		Results: results,
		Summary: digest(q, results),
		Elapsed: time.Since(start),
	}
	if len(results) == 0 {
		out.Status = model.OutcomePartial
		out.Err = &model.AgentError{
			Agent:   string(a.name),
			Kind:    model.KindNoEvidence,
			Message: "no financial evidence matched the query",
		}
	}
	slot.Write(out)
	return out
}

// digest condenses the top findings into prompt-ready prose.
func digest(q model.Query, results []model.RankedResult) string {
	if len(results) == 0 {
		return ""
	}
	n := min(digestTopResults, len(results))
	var b strings.Builder
	subject := q.SubjectName
	if subject == "" {
		subject = q.SubjectCode
	}
	fmt.Fprintf(&b, "Key financial findings for %s:\n", subject)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(results[i].Candidate.Content))
	}
	return b.String()
}
