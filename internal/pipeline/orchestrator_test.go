package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/internal/agent"
	"github.com/finsight-ai/finsight/internal/history"
	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/internal/scoring"
	"github.com/finsight-ai/finsight/internal/service/completion"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAgent is a scriptable SourceAgent.
type stubAgent struct {
	name            agent.Name
	requiresSubject bool
	outcome         model.AgentOutcome
	delay           time.Duration
	runs            int
}

func (s *stubAgent) Name() agent.Name      { return s.name }
func (s *stubAgent) RequiresSubject() bool { return s.requiresSubject }

func (s *stubAgent) Run(ctx context.Context, _ model.Query, slot *model.Slot) model.AgentOutcome {
	s.runs++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			out := model.FailedOutcome(string(s.name), model.KindTimeout, "interrupted", 0)
			slot.Write(out)
			return out
		}
	}
	slot.Write(s.outcome)
	return s.outcome
}

// recordingCompleter captures the prompt it was given.
type recordingCompleter struct {
	reply    string
	err      error
	messages []completion.Message
}

func (c *recordingCompleter) Complete(_ context.Context, messages []completion.Message) (string, error) {
	c.messages = messages
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func evidenceOutcome(name string, results ...model.RankedResult) model.AgentOutcome {
	return model.AgentOutcome{Agent: name, Status: model.OutcomeSuccess, Results: results}
}

func rankedEvidence(content string, score float64, sourceID, agentName string) model.RankedResult {
	return model.RankedResult{
		Candidate: model.Candidate{
			ID:         uuid.New(),
			Content:    content,
			RawScore:   score,
			Provenance: map[string]string{"source_id": sourceID},
		},
		Score:     score,
		DedupKey:  scoring.DedupKey(content),
		SourceIDs: []string{sourceID},
		Agents:    []string{agentName},
	}
}

func newOrchestrator(reg *agent.Registry, completer completion.Provider, hist HistoryReader, cfg Config) *Orchestrator {
	return New(reg, completer, hist, cfg, testLogger())
}

func TestRun_RejectsEmptyQuery(t *testing.T) {
	o := newOrchestrator(&agent.Registry{}, &recordingCompleter{reply: "x"}, nil, Config{})
	_, err := o.Run(context.Background(), model.Query{Text: "   "})
	assert.ErrorIs(t, err, model.ErrInvalidQuery)
}

func TestRun_AllAgentsFailedYieldsDegradedAnswerNotError(t *testing.T) {
	reg := &agent.Registry{
		Messages: &stubAgent{name: agent.Messages, outcome: model.FailedOutcome(string(agent.Messages), model.KindBackendUnavailable, "qdrant: connection refused", 0)},
		Reports:  &stubAgent{name: agent.Reports, outcome: model.FailedOutcome(string(agent.Reports), model.KindBackendUnavailable, "postgres: connection refused", 0)},
	}
	o := newOrchestrator(reg, &recordingCompleter{reply: "unused"}, nil, Config{})

	resp, err := o.Run(context.Background(), model.Query{Text: "how did revenue develop?", SubjectCode: "AAPL"})
	require.NoError(t, err, "downstream failures degrade, never error")

	assert.NotEmpty(t, resp.Answer)
	assert.Equal(t, model.KindBackendUnavailable, resp.Category)
	assert.Empty(t, resp.Evidence)
	assert.Equal(t, model.OutcomeFailed, resp.AgentStatus[string(agent.Messages)])
	assert.Len(t, resp.Errors, 2)
}

func TestRun_SuccessfulRunHasEmptyCategory(t *testing.T) {
	ev := rankedEvidence("guidance raised to $5 billion", 0.9, "rpt-1", "reports")
	reg := &agent.Registry{
		Reports: &stubAgent{name: agent.Reports, outcome: evidenceOutcome("reports", ev)},
	}
	completer := &recordingCompleter{reply: "Guidance was raised to $5 billion."}
	o := newOrchestrator(reg, completer, nil, Config{})

	resp, err := o.Run(context.Background(), model.Query{Text: "what is the guidance?", SubjectCode: "AAPL"})
	require.NoError(t, err)

	assert.Equal(t, "Guidance was raised to $5 billion.", resp.Answer)
	assert.Empty(t, string(resp.Category), "a fully successful run has no failure category")
	require.Len(t, resp.Evidence, 1)
	assert.Equal(t, model.OutcomeSuccess, resp.AgentStatus[string(agent.Reports)])
}

func TestRun_SiblingTimeoutIsIsolated(t *testing.T) {
	ev := rankedEvidence("margins expanded on services mix", 0.8, "rpt-7", "reports")
	hung := &stubAgent{name: agent.Messages, delay: 10 * time.Second, outcome: evidenceOutcome("messages")}
	healthy := &stubAgent{name: agent.Reports, outcome: evidenceOutcome("reports", ev)}
	reg := &agent.Registry{Messages: hung, Reports: healthy}
	o := newOrchestrator(reg, &recordingCompleter{reply: "answer"}, nil, Config{
		AgentTimeout:    50 * time.Millisecond,
		PipelineTimeout: 5 * time.Second,
	})

	start := time.Now()
	resp, err := o.Run(context.Background(), model.Query{Text: "q", SubjectCode: "AAPL"})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second, "the hung agent does not stall the run")
	assert.Equal(t, model.OutcomeFailed, resp.AgentStatus[string(agent.Messages)])
	assert.Equal(t, model.OutcomeSuccess, resp.AgentStatus[string(agent.Reports)])
	require.Len(t, resp.Evidence, 1, "the healthy sibling's evidence survives")
	assert.Equal(t, model.KindPartialEvidence, resp.Category)

	var timeoutErr bool
	for _, e := range resp.Errors {
		if e.Kind == model.KindTimeout {
			timeoutErr = true
		}
	}
	assert.True(t, timeoutErr, "the timeout is reported in the error list")
}

func TestRun_SubjectRequiringAgentSkippedWithoutSubject(t *testing.T) {
	skipping := &stubAgent{name: agent.Messages, requiresSubject: true,
		outcome: model.SkippedOutcome(string(agent.Messages), "query carries no entity hint")}
	ev := rankedEvidence("semiconductor demand is cyclical", 0.7, "ind-1", "industry")
	reg := &agent.Registry{
		Messages: skipping,
		Industry: &stubAgent{name: agent.Industry, outcome: evidenceOutcome("industry", ev)},
	}
	o := newOrchestrator(reg, &recordingCompleter{reply: "answer"}, nil, Config{})

	resp, err := o.Run(context.Background(), model.Query{Text: "how is the chip cycle?"})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSkipped, resp.AgentStatus[string(agent.Messages)])
	assert.Equal(t, model.KindPartialEvidence, resp.Category, "a skip marks the answer as partial")
	assert.NotEmpty(t, resp.Answer)
}

func TestRun_CrossSourceMergeAttributesBothAgents(t *testing.T) {
	content := "the regulator approved the merger after review"
	fromReports := rankedEvidence(content, 0.9, "rpt-1", "reports")
	fromMessages := rankedEvidence(content, 0.6, "msg-4", "messages")
	reg := &agent.Registry{
		Messages: &stubAgent{name: agent.Messages, outcome: evidenceOutcome("messages", fromMessages)},
		Reports:  &stubAgent{name: agent.Reports, outcome: evidenceOutcome("reports", fromReports)},
	}
	o := newOrchestrator(reg, &recordingCompleter{reply: "answer"}, nil, Config{})

	resp, err := o.Run(context.Background(), model.Query{Text: "was the merger approved?", SubjectCode: "AAPL"})
	require.NoError(t, err)

	require.Len(t, resp.Evidence, 1, "the same fact from two agents appears once")
	merged := resp.Evidence[0]
	assert.InDelta(t, 0.9, merged.Score, 0.0001, "the higher-scoring instance is the representative")
	assert.ElementsMatch(t, []string{"rpt-1", "msg-4"}, merged.SourceIDs)
	assert.ElementsMatch(t, []string{"reports", "messages"}, merged.Agents)
}

func TestRun_FinalizationFailureFallsBackWithEvidenceIntact(t *testing.T) {
	ev := rankedEvidence("revenue grew 12%", 0.9, "rpt-1", "reports")
	reg := &agent.Registry{
		Reports: &stubAgent{name: agent.Reports, outcome: evidenceOutcome("reports", ev)},
	}
	completer := &recordingCompleter{err: context.DeadlineExceeded}
	o := newOrchestrator(reg, completer, nil, Config{})

	resp, err := o.Run(context.Background(), model.Query{Text: "q", SubjectCode: "AAPL"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Answer, "a fallback answer is produced")
	assert.Contains(t, resp.Answer, "reports", "the fallback credits the sources that produced evidence")
	assert.Equal(t, model.KindPartialEvidence, resp.Category)
	assert.Len(t, resp.Evidence, 1, "merged evidence still rides along")
}

func TestRun_SessionHistoryEnrichesPromptReadOnly(t *testing.T) {
	ev := rankedEvidence("dividend raised 5%", 0.9, "rpt-1", "reports")
	reg := &agent.Registry{
		Reports: &stubAgent{name: agent.Reports, outcome: evidenceOutcome("reports", ev)},
	}
	completer := &recordingCompleter{reply: "The dividend was raised 5%."}
	store := history.NewMemoryStore()
	session := uuid.New()
	require.NoError(t, store.AppendTurn(context.Background(), session, "user", "tell me about Apple"))
	require.NoError(t, store.AppendTurn(context.Background(), session, "assistant", "Apple is a consumer electronics company."))

	o := newOrchestrator(reg, completer, store, Config{HistoryTurns: 4})

	resp, err := o.Run(context.Background(), model.Query{Text: "and the dividend?", SubjectCode: "AAPL", SessionID: &session})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Answer)

	// system + 2 history turns + final user prompt
	require.Len(t, completer.messages, 4)
	assert.Equal(t, completion.RoleSystem, completer.messages[0].Role)
	assert.Equal(t, "tell me about Apple", completer.messages[1].Content)
	assert.Equal(t, "Apple is a consumer electronics company.", completer.messages[2].Content)
	assert.Contains(t, completer.messages[3].Content, "and the dividend?")
	assert.Contains(t, completer.messages[3].Content, "dividend raised 5%")

	turns, err := store.RecentTurns(context.Background(), session, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2, "the run reads session history but never writes it")
}

func TestRun_PlanFollowsIntent(t *testing.T) {
	agents := map[agent.Name]*stubAgent{}
	reg := &agent.Registry{}
	mk := func(n agent.Name) *stubAgent {
		s := &stubAgent{name: n, outcome: evidenceOutcome(string(n))}
		agents[n] = s
		return s
	}
	reg.Messages = mk(agent.Messages)
	reg.Reports = mk(agent.Reports)
	reg.Financials = mk(agent.Financials)
	reg.Industry = mk(agent.Industry)
	reg.WebSearch = mk(agent.WebSearch)

	o := newOrchestrator(reg, &recordingCompleter{reply: "a"}, nil, Config{})

	_, err := o.Run(context.Background(), model.Query{Text: "what was Q3 revenue?", SubjectCode: "AAPL", Intent: model.IntentFactual})
	require.NoError(t, err)
	assert.Equal(t, 0, agents[agent.Industry].runs, "factual queries do not consult the industry agent")
	assert.Equal(t, 1, agents[agent.Reports].runs)

	for _, s := range agents {
		s.runs = 0
	}
	_, err = o.Run(context.Background(), model.Query{Text: "compare AAPL and MSFT", Intent: model.IntentComparison})
	require.NoError(t, err)
	assert.Equal(t, 0, agents[agent.Messages].runs, "comparison queries skip the chatter channel")
	assert.Equal(t, 1, agents[agent.Industry].runs)
}

func TestMergeAcrossSources_KeepsDistinctKeysAndOrdersByScore(t *testing.T) {
	a := rankedEvidence("fact one about margins", 0.5, "s1", "reports")
	b := rankedEvidence("fact two about revenue", 0.9, "s2", "messages")
	merged := mergeAcrossSources([]model.RankedResult{a, b})

	require.Len(t, merged, 2)
	assert.Equal(t, "fact two about revenue", merged[0].Candidate.Content)
	assert.Equal(t, "fact one about margins", merged[1].Candidate.Content)
}

func TestMergeAcrossSources_RewordedDuplicateUnionsProvenance(t *testing.T) {
	a := rankedEvidence("the board approved a $10 billion buyback program", 0.9, "rpt-2", "reports")
	// Same fact reworded: a different dedup key, but near-identical text.
	b := rankedEvidence("The board approved a $10 billion buyback program.", 0.6, "msg-9", "messages")
	require.NotEqual(t, a.DedupKey, b.DedupKey)

	merged := mergeAcrossSources([]model.RankedResult{a, b})

	require.Len(t, merged, 1, "reworded versions of one fact collapse into one entry")
	assert.Equal(t, a.Candidate.ID, merged[0].Candidate.ID, "the higher-scoring wording survives")
	assert.ElementsMatch(t, []string{"rpt-2", "msg-9"}, merged[0].SourceIDs)
	assert.ElementsMatch(t, []string{"reports", "messages"}, merged[0].Agents)
}
