package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/internal/scoring"
	"github.com/finsight-ai/finsight/internal/websearch"
)

// websearchAgent gathers external evidence through a web search gateway.
// Web results carry no backend relevance score, so similarity is derived
// from rank position and the usual importance/recency fusion applies on top.
type websearchAgent struct {
	client  websearch.Client
	weights scoring.FusionWeights
	logger  *slog.Logger
	now     func() time.Time
}

// NewWebSearchAgent wraps a websearch.Client as a SourceAgent.
func NewWebSearchAgent(client websearch.Client, logger *slog.Logger) SourceAgent {
	return &websearchAgent{
		client:  client,
		weights: scoring.DefaultFusionWeights(),
		logger:  logger,
		now:     time.Now,
	}
}

func (a *websearchAgent) Name() Name            { return WebSearch }
func (a *websearchAgent) RequiresSubject() bool { return false }

// rankSimilarity converts a 0-based rank position into a similarity proxy.
// Position 0 maps to 1.0, decaying linearly to a 0.3 floor.
func rankSimilarity(pos int) float64 {
	s := 1.0 - 0.08*float64(pos)
	if s < 0.3 {
		return 0.3
	}
	return s
}

func (a *websearchAgent) Run(ctx context.Context, q model.Query, slot *model.Slot) model.AgentOutcome {
	start := time.Now()
	depth := depthFor(q.Complexity)

	hits, err := a.client.Search(ctx, q.Text, depth.topK)
	if err != nil {
		a.logger.Warn("agent retrieval failed", "agent", WebSearch, "error", err)
		out := model.FailedOutcome(string(WebSearch), classifyKind(ctx, err),
			fmt.Sprintf("web search: %v", err), time.Since(start))
		slot.Write(out)
		return out
	}

	now := a.now()
	results := make([]model.RankedResult, 0, len(hits))
	for i, h := range hits {
		content := h.Snippet
		if h.Title != "" {
			content = h.Title + ". " + h.Snippet
		}

		similarity := rankSimilarity(i)
		importance := scoring.Importance(content)
		recency := 0.4
		if !h.PublishedAt.IsZero() {
			recency = scoring.RecencyWeight(h.PublishedAt, now)
		}

		results = append(results, model.RankedResult{
			Candidate: model.Candidate{
				ID:        uuid.New(),
				Content:   content,
				Timestamp: h.PublishedAt,
				RawScore:  similarity,
				Provenance: map[string]string{
					"source_id": h.URL,
					"title":     h.Title,
					"channel":   "web",
				},
			},
			Importance: importance,
			Recency:    recency,
			Score:      a.weights.Fuse(similarity, importance, recency),
			DedupKey:   scoring.DedupKey(content),
			SourceIDs:  []string{h.URL},
			Agents:     []string{string(WebSearch)},
		})
	}

	out := model.AgentOutcome{
		Agent:   string(WebSearch),
		Status:  model.OutcomeSuccess,
		Results: results,
		Elapsed: time.Since(start),
	}
	slot.Write(out)
	return out
}
