// Package pipeline orchestrates one research run: planning which agents are
// relevant, dispatching them concurrently with per-agent deadlines, merging
// their evidence across sources, and synthesizing the answer or degrading
// to a fallback.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/finsight-ai/finsight/internal/agent"
	"github.com/finsight-ai/finsight/internal/history"
	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/internal/scoring"
	"github.com/finsight-ai/finsight/internal/service/completion"
	"github.com/finsight-ai/finsight/internal/telemetry"
)

// Phase is the orchestrator's position in the run lifecycle. Phases only
// advance; FallbackFinalizing is the one side-exit, taken when no agent
// produced usable evidence or finalization itself fails.
type Phase string

const (
	PhaseInitialized        Phase = "initialized"
	PhasePlanning           Phase = "planning"
	PhaseExecuting          Phase = "executing"
	PhaseMerging            Phase = "merging"
	PhaseFinalizing         Phase = "finalizing"
	PhaseFallbackFinalizing Phase = "fallback_finalizing"
	PhaseDone               Phase = "done"
)

// Config tunes one Orchestrator.
type Config struct {
	// AgentTimeout bounds each agent's execution. Default 10s.
	AgentTimeout time.Duration

	// PipelineTimeout bounds the whole run. Default 45s.
	PipelineTimeout time.Duration

	// MaxParallelAgents bounds concurrent agent dispatch. Default 4.
	MaxParallelAgents int

	// HistoryTurns is how many prior conversation turns enrich the
	// finalization prompt. Default 6.
	HistoryTurns int

	// MaxEvidence caps the merged evidence list in the response. Default 20.
	MaxEvidence int

	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = 10 * time.Second
	}
	if c.PipelineTimeout <= 0 {
		c.PipelineTimeout = 45 * time.Second
	}
	if c.MaxParallelAgents <= 0 {
		c.MaxParallelAgents = 4
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = 6
	}
	if c.MaxEvidence <= 0 {
		c.MaxEvidence = 20
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// HistoryReader is the read-only slice of the session store the pipeline
// uses. The pipeline never writes turns; recording the conversation is the
// caller's responsibility.
type HistoryReader interface {
	RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]history.Turn, error)
}

// Orchestrator runs the agent pipeline for one query at a time.
type Orchestrator struct {
	registry  *agent.Registry
	completer completion.Provider
	history   HistoryReader
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer

	runsStarted   metric.Int64Counter
	runsCompleted metric.Int64Counter
	runsFallback  metric.Int64Counter
	agentDuration metric.Float64Histogram
}

// New creates an Orchestrator. hist may be NoopStore when no database is
// configured.
func New(registry *agent.Registry, completer completion.Provider, hist HistoryReader, cfg Config, logger *slog.Logger) *Orchestrator {
	meter := telemetry.Meter("finsight/pipeline")
	started, _ := meter.Int64Counter("finsight.pipeline.runs_started",
		metric.WithDescription("Pipeline runs started"))
	completed, _ := meter.Int64Counter("finsight.pipeline.runs_completed",
		metric.WithDescription("Pipeline runs completed, by category"))
	fallback, _ := meter.Int64Counter("finsight.pipeline.runs_fallback",
		metric.WithDescription("Pipeline runs that ended in fallback finalization"))
	agentDur, _ := meter.Float64Histogram("finsight.pipeline.agent.duration",
		metric.WithDescription("Per-agent execution time (ms)"),
		metric.WithUnit("ms"))

	if hist == nil {
		hist = history.NoopStore{}
	}

	return &Orchestrator{
		registry:      registry,
		completer:     completer,
		history:       hist,
		cfg:           cfg.withDefaults(),
		logger:        logger,
		tracer:        telemetry.Tracer("finsight/pipeline"),
		runsStarted:   started,
		runsCompleted: completed,
		runsFallback:  fallback,
		agentDuration: agentDur,
	}
}

// Run executes the full pipeline for one query. The only fatal error is
// state construction (an invalid query); every downstream failure degrades
// into the response instead.
func (o *Orchestrator) Run(ctx context.Context, q model.Query) (model.Response, error) {
	start := o.cfg.Now()
	q = q.Normalize(start)

	state, err := model.NewPipelineState(q)
	if err != nil {
		return model.Response{}, fmt.Errorf("pipeline: new state: %w", err)
	}
	o.runsStarted.Add(ctx, 1)

	ctx, span := o.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("query.intent", string(q.Intent))))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.PipelineTimeout)
	defer cancel()

	phase := PhaseInitialized
	advance := func(next Phase) {
		o.logger.Debug("pipeline phase", "query_id", q.ID, "from", phase, "to", next)
		phase = next
	}

	advance(PhasePlanning)
	plan := o.buildPlan(q)

	advance(PhaseExecuting)
	o.execute(ctx, q, state, plan)

	outcomes := state.Outcomes()
	evidence, summaries := o.collect(outcomes)

	var answer string
	var category model.ErrorKind

	if len(evidence) == 0 && len(summaries) == 0 {
		advance(PhaseFallbackFinalizing)
		category = Classify(state.Errors())
		answer = BuildFallback(category, outcomes)
		o.runsFallback.Add(ctx, 1)
	} else {
		advance(PhaseMerging)
		evidence = mergeAcrossSources(evidence)
		if len(evidence) > o.cfg.MaxEvidence {
			evidence = evidence[:o.cfg.MaxEvidence]
		}

		advance(PhaseFinalizing)
		answer, err = o.finalize(ctx, q, evidence, summaries)
		if err != nil {
			o.logger.Warn("finalization failed, degrading", "query_id", q.ID, "error", err)
			state.AddError(model.AgentError{Agent: "finalizer", Kind: model.KindBackendUnavailable, Message: err.Error()})
			advance(PhaseFallbackFinalizing)
			category = model.KindPartialEvidence
			answer = BuildFallback(category, outcomes)
			o.runsFallback.Add(ctx, 1)
		} else if anyDegraded(plan, outcomes) {
			category = model.KindPartialEvidence
		}
	}

	advance(PhaseDone)

	statuses := make(map[string]model.OutcomeStatus, len(outcomes))
	for name, out := range outcomes {
		statuses[name] = out.Status
	}

	span.SetAttributes(attribute.String("category", string(category)))
	o.runsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("category", string(category))))

	return model.Response{
		Answer:      answer,
		Category:    category,
		Evidence:    evidence,
		AgentStatus: statuses,
		Errors:      state.Errors(),
		Elapsed:     o.cfg.Now().Sub(start),
	}, nil
}

// buildPlan selects the relevant agents for the query's intent. Agents that
// require a subject stay in the plan even for subject-less queries; they
// record a skip outcome instead of silently vanishing from diagnostics.
func (o *Orchestrator) buildPlan(q model.Query) []agent.SourceAgent {
	all := o.registry.All()
	relevant := func(n agent.Name) bool {
		switch q.Intent {
		case model.IntentFactual:
			return n != agent.Industry
		case model.IntentComparison:
			return n != agent.Messages
		default:
			// Analysis and general queries consult everything.
			return true
		}
	}

	plan := make([]agent.SourceAgent, 0, len(all))
	for _, a := range all {
		if relevant(a.Name()) {
			plan = append(plan, a)
		}
	}
	return plan
}

// execute dispatches the planned agents with bounded parallelism and a
// per-agent deadline. A timed-out agent gets a failed(timeout) outcome
// written by the watchdog; if the agent later finishes anyway, its late
// slot write is dropped by the write-once discipline. Siblings keep
// running. Wait is the join barrier before merging.
func (o *Orchestrator) execute(ctx context.Context, q model.Query, state *model.PipelineState, plan []agent.SourceAgent) {
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxParallelAgents)

	for _, a := range plan {
		g.Go(func() error {
			name := string(a.Name())
			slot := state.Slot(name)

			actx, cancel := context.WithTimeout(ctx, o.cfg.AgentTimeout)
			defer cancel()

			started := o.cfg.Now()
			done := make(chan struct{})
			go func() {
				defer close(done)
				a.Run(actx, q, slot)
			}()

			select {
			case <-done:
			case <-actx.Done():
				slot.Write(model.FailedOutcome(name, model.KindTimeout,
					"agent exceeded its deadline", o.cfg.Now().Sub(started)))
			}

			o.agentDuration.Record(ctx, float64(o.cfg.Now().Sub(started).Milliseconds()),
				metric.WithAttributes(attribute.String("agent", name)))
			return nil
		})
	}
	_ = g.Wait()
}

// collect gathers ranked evidence and digest summaries from usable outcomes.
func (o *Orchestrator) collect(outcomes map[string]model.AgentOutcome) ([]model.RankedResult, []string) {
	var evidence []model.RankedResult
	var summaries []string

	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		out := outcomes[name]
		if !out.Usable() {
			continue
		}
		evidence = append(evidence, out.Results...)
		if out.Summary != "" {
			summaries = append(summaries, out.Summary)
		}
	}
	return evidence, summaries
}

// mergeDedupThreshold is the near-duplicate similarity cutoff for the
// cross-agent merge, matching the retriever's default.
const mergeDedupThreshold = 0.8

// mergeAcrossSources folds results with the same dedup key into one entry,
// then collapses near-identical texts that hash to different keys. The
// highest-scoring instance is kept as the representative; source IDs and
// agent attributions union, so a fact found by two agents shows up once with
// both credited.
func mergeAcrossSources(results []model.RankedResult) []model.RankedResult {
	byKey := make(map[string]*model.RankedResult, len(results))
	order := make([]string, 0, len(results))

	for _, r := range results {
		existing, ok := byKey[r.DedupKey]
		if !ok {
			copied := r
			copied.SourceIDs = append([]string(nil), r.SourceIDs...)
			copied.Agents = append([]string(nil), r.Agents...)
			byKey[r.DedupKey] = &copied
			order = append(order, r.DedupKey)
			continue
		}
		existing.SourceIDs = unionStrings(existing.SourceIDs, r.SourceIDs)
		existing.Agents = unionStrings(existing.Agents, r.Agents)
		if r.Score > existing.Score {
			sources, agents := existing.SourceIDs, existing.Agents
			*existing = r
			existing.SourceIDs = sources
			existing.Agents = agents
		}
	}

	merged := make([]model.RankedResult, 0, len(order))
	for _, key := range order {
		merged = append(merged, *byKey[key])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Candidate.ID.String() < merged[j].Candidate.ID.String()
	})

	// Agents rewording the same fact produce distinct dedup keys; a
	// similarity pass catches those. The suppressed entry's provenance
	// unions into the higher-scoring survivor.
	deduper := scoring.NewDeduper(mergeDedupThreshold)
	deduped := make([]model.RankedResult, 0, len(merged))
	for _, r := range merged {
		if idx, dup := deduper.Match(r.Candidate.Content); dup {
			deduped[idx].SourceIDs = unionStrings(deduped[idx].SourceIDs, r.SourceIDs)
			deduped[idx].Agents = unionStrings(deduped[idx].Agents, r.Agents)
			continue
		}
		deduper.Admit(r.Candidate.Content)
		deduped = append(deduped, r)
	}
	return deduped
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// anyDegraded reports whether any planned agent ended failed, skipped, or
// partial, which marks the response as built on partial evidence.
func anyDegraded(plan []agent.SourceAgent, outcomes map[string]model.AgentOutcome) bool {
	for _, a := range plan {
		out, ok := outcomes[string(a.Name())]
		if !ok {
			return true
		}
		if out.Status != model.OutcomeSuccess {
			return true
		}
	}
	return false
}

// finalize synthesizes the answer from merged evidence, enriched with
// recent conversation turns when the query belongs to a session.
func (o *Orchestrator) finalize(ctx context.Context, q model.Query, evidence []model.RankedResult, summaries []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("pipeline: finalize: %w", err)
	}

	messages := []completion.Message{{
		Role: completion.RoleSystem,
		Content: "You are a stock research assistant. Answer strictly from the " +
			"provided evidence; say so when the evidence does not cover the question.",
	}}

	if q.SessionID != nil {
		turns, err := o.history.RecentTurns(ctx, *q.SessionID, o.cfg.HistoryTurns)
		if err != nil {
			o.logger.Warn("history lookup failed, continuing without context", "session_id", *q.SessionID, "error", err)
		}
		for _, t := range turns {
			messages = append(messages, completion.Message{Role: t.Role, Content: t.Content})
		}
	}

	messages = append(messages, completion.Message{
		Role:    completion.RoleUser,
		Content: buildPrompt(q, evidence, summaries),
	})

	answer, err := o.completer.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("pipeline: complete: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("pipeline: empty completion")
	}
	return answer, nil
}

// buildPrompt renders the user message: question, answer-shape instruction,
// digests, then the evidence bullets with source attribution.
func buildPrompt(q model.Query, evidence []model.RankedResult, summaries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", q.Text)
	if q.HasSubject() {
		subject := q.SubjectName
		if subject == "" {
			subject = q.SubjectCode
		}
		fmt.Fprintf(&b, "Subject: %s\n", subject)
	}
	switch q.AnswerShape {
	case model.ShapeBrief:
		b.WriteString("Answer in one or two sentences.\n")
	case model.ShapeList:
		b.WriteString("Answer as a bullet list.\n")
	default:
		b.WriteString("Answer in a few focused paragraphs.\n")
	}

	for _, s := range summaries {
		b.WriteString("\n")
		b.WriteString(s)
	}

	b.WriteString("\nEvidence:\n")
	for _, r := range evidence {
		fmt.Fprintf(&b, "- %s", strings.TrimSpace(r.Candidate.Content))
		if len(r.SourceIDs) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(r.SourceIDs, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
