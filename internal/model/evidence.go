package model

import (
	"time"

	"github.com/google/uuid"
)

// Candidate is one retrieved unit of evidence before scoring. Produced by a
// retrieval backend; owned by the retrieval call that created it until
// promoted into a RankedResult.
type Candidate struct {
	ID      uuid.UUID
	Content string

	// Timestamp is the publication/event time in UTC. Backends that return
	// zone-less timestamps are treated as UTC at the adapter boundary.
	Timestamp time.Time

	// RawScore is the backend's relevance score, normalized to [0,1] by the
	// adapter where the backend does not already guarantee it.
	RawScore float64

	// Provenance carries backend-specific metadata: source id, channel,
	// document identity. Keys are adapter-defined.
	Provenance map[string]string
}

// SourceID returns the provenance source identifier, or the candidate ID
// string when the backend supplied none.
func (c Candidate) SourceID() string {
	if id, ok := c.Provenance["source_id"]; ok && id != "" {
		return id
	}
	return c.ID.String()
}

// RankedResult is a Candidate after importance/recency/fusion scoring.
// Immutable once produced; collected into a bounded top-K list and discarded
// when the pipeline run completes.
type RankedResult struct {
	Candidate Candidate

	Importance float64 // [0,1] content-importance heuristic
	Recency    float64 // [0.4,1.0] decay weight
	Score      float64 // fused final score

	// DedupKey identifies the underlying piece of evidence independent of
	// which backend or agent found it (pure function of normalized content).
	DedupKey string

	// SourceIDs lists every provenance source that reported this evidence.
	// Starts with one entry; cross-source merging appends.
	SourceIDs []string

	// Agents lists the agent names that contributed this evidence after the
	// merge phase. Empty until merging.
	Agents []string
}
