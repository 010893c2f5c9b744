package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/internal/scoring"
)

// Mode selects which retrieval backends a retriever consults.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeLexical  Mode = "lexical"
	ModeHybrid   Mode = "hybrid"
)

// Embedder is the narrow embedding contract the retriever needs. The full
// embedding provider lives in internal/service/embedding; adapters shrink it
// to this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrieverConfig tunes one HybridRetriever instance.
type RetrieverConfig struct {
	Mode Mode

	// OverFetchFactor multiplies topK when requesting raw candidates, to
	// absorb shrinkage from min-score filtering and dedup. Default 3.
	OverFetchFactor int

	// Weights is the fusion config. Zero value means DefaultFusionWeights.
	Weights scoring.FusionWeights

	// LexicalWeight is the hybrid sub-weighting applied when both backends
	// return the same item: combined = w·lexical + (1-w)·semantic.
	// Default 0.6.
	LexicalWeight float64

	// DedupThreshold is the near-duplicate similarity cutoff. Default 0.8.
	DedupThreshold float64

	// Now overrides the clock for recency scoring. Nil means time.Now.
	Now func() time.Time
}

// HybridRetriever fuses semantic similarity, lexical relevance, content
// importance, and recency into one ranked result list per query.
type HybridRetriever struct {
	vec    VectorSearcher
	lex    LexicalSearcher
	embed  Embedder
	cfg    RetrieverConfig
	logger *slog.Logger
}

// NewHybridRetriever validates the mode against the available backends and
// applies config defaults.
func NewHybridRetriever(vec VectorSearcher, lex LexicalSearcher, embed Embedder, cfg RetrieverConfig, logger *slog.Logger) (*HybridRetriever, error) {
	switch cfg.Mode {
	case ModeSemantic:
		if vec == nil || embed == nil {
			return nil, fmt.Errorf("search: semantic mode requires a vector backend and an embedder")
		}
	case ModeLexical:
		if lex == nil {
			return nil, fmt.Errorf("search: lexical mode requires a lexical backend")
		}
	case ModeHybrid:
		if vec == nil || lex == nil || embed == nil {
			return nil, fmt.Errorf("search: hybrid mode requires both backends and an embedder")
		}
	default:
		return nil, fmt.Errorf("search: unknown retrieval mode %q", cfg.Mode)
	}

	if cfg.OverFetchFactor <= 0 {
		cfg.OverFetchFactor = 3
	}
	if cfg.Weights == (scoring.FusionWeights{}) {
		cfg.Weights = scoring.DefaultFusionWeights()
	}
	if cfg.LexicalWeight <= 0 || cfg.LexicalWeight >= 1 {
		cfg.LexicalWeight = 0.6
	}
	if cfg.DedupThreshold <= 0 || cfg.DedupThreshold > 1 {
		cfg.DedupThreshold = 0.8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &HybridRetriever{vec: vec, lex: lex, embed: embed, cfg: cfg, logger: logger}, nil
}

// mergedHit tracks which backends found an item and their raw scores.
type mergedHit struct {
	hit         Hit
	semScore    float64
	lexScore    float64
	fromSem     bool
	fromLexical bool
}

// Retrieve runs the full ranking funnel: over-fetch, backend merge, scoring,
// min-score filter, near-duplicate suppression, deterministic ordering,
// truncation to topK.
//
// An empty backend response yields an empty result, not an error. In hybrid
// mode one backend failing degrades to the other; only all configured
// backends failing is an error.
func (r *HybridRetriever) Retrieve(ctx context.Context, queryText string, filters Filters, topK int, minScore float64) ([]model.RankedResult, error) {
	if topK <= 0 {
		topK = 10
	}
	fetchLimit := topK * r.cfg.OverFetchFactor

	semHits, lexHits, err := r.fetch(ctx, queryText, filters, fetchLimit)
	if err != nil {
		return nil, err
	}

	merged := r.merge(semHits, lexHits)
	if len(merged) == 0 {
		return nil, nil
	}

	now := r.cfg.Now()
	ranked := make([]model.RankedResult, 0, len(merged))
	for _, m := range merged {
		res := r.score(m, now)
		if res.Score < minScore {
			continue
		}
		ranked = append(ranked, res)
	}

	// Deterministic order before suppression: descending fused score, then
	// most-recent timestamp, then candidate ID. Suppression in this order
	// guarantees the higher-scoring instance of a duplicate pair survives.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].Candidate.Timestamp.Equal(ranked[j].Candidate.Timestamp) {
			return ranked[i].Candidate.Timestamp.After(ranked[j].Candidate.Timestamp)
		}
		return ranked[i].Candidate.ID.String() < ranked[j].Candidate.ID.String()
	})

	deduper := scoring.NewDeduper(r.cfg.DedupThreshold)
	out := make([]model.RankedResult, 0, topK)
	for _, res := range ranked {
		if idx, dup := deduper.Match(res.Candidate.Content); dup {
			// A suppressed near-duplicate still contributes its provenance:
			// the surviving result references every source that reported
			// the evidence.
			if idx < len(out) {
				out[idx].SourceIDs = unionStrings(out[idx].SourceIDs, res.SourceIDs)
			}
			continue
		}
		if len(out) == topK {
			continue
		}
		deduper.Admit(res.Candidate.Content)
		out = append(out, res)
	}
	return out, nil
}

// unionStrings appends the members of extra not already present in base,
// preserving base's order.
func unionStrings(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[s] = struct{}{}
	}
	for _, s := range extra {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			base = append(base, s)
		}
	}
	return base
}

// fetch fans out to the configured backends concurrently. Backend failures
// are collected, not propagated mid-flight, so a slow or broken backend
// never cancels its healthy sibling.
func (r *HybridRetriever) fetch(ctx context.Context, queryText string, filters Filters, limit int) (semHits, lexHits []Hit, err error) {
	wantSem := r.cfg.Mode == ModeSemantic || r.cfg.Mode == ModeHybrid
	wantLex := r.cfg.Mode == ModeLexical || r.cfg.Mode == ModeHybrid

	var wg sync.WaitGroup
	var semErr, lexErr error

	if wantSem {
		wg.Add(1)
		go func() {
			defer wg.Done()
			embedding, eerr := r.embed.Embed(ctx, queryText)
			if eerr != nil {
				semErr = fmt.Errorf("search: embed query: %w", eerr)
				return
			}
			semHits, semErr = r.vec.Search(ctx, embedding, filters, limit)
		}()
	}
	if wantLex {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lexHits, lexErr = r.lex.Search(ctx, queryText, filters, limit)
		}()
	}
	wg.Wait()

	switch {
	case wantSem && wantLex:
		if semErr != nil && lexErr != nil {
			return nil, nil, fmt.Errorf("search: all backends failed: semantic: %v; lexical: %w", semErr, lexErr)
		}
		if semErr != nil {
			r.logger.Warn("search: semantic backend failed, degrading to lexical only", "error", semErr)
			semHits = nil
		}
		if lexErr != nil {
			r.logger.Warn("search: lexical backend failed, degrading to semantic only", "error", lexErr)
			lexHits = nil
		}
	case wantSem && semErr != nil:
		return nil, nil, semErr
	case wantLex && lexErr != nil:
		return nil, nil, lexErr
	}
	return semHits, lexHits, nil
}

// merge combines per-backend hit lists. Items found by both backends get a
// sub-weighted raw score; single-backend items keep that backend's score.
// Output order is normalized by ID so downstream scoring is independent of
// backend completion order.
func (r *HybridRetriever) merge(semHits, lexHits []Hit) []mergedHit {
	byID := make(map[string]*mergedHit, len(semHits)+len(lexHits))
	for _, h := range semHits {
		byID[h.ID.String()] = &mergedHit{hit: h, semScore: h.Score, fromSem: true}
	}
	for _, h := range lexHits {
		if m, ok := byID[h.ID.String()]; ok {
			m.lexScore = h.Score
			m.fromLexical = true
			// Prefer the lexical row's content/timestamp only when the
			// semantic payload was sparse.
			if m.hit.Content == "" {
				m.hit.Content = h.Content
			}
			if m.hit.Timestamp.IsZero() {
				m.hit.Timestamp = h.Timestamp
			}
			continue
		}
		byID[h.ID.String()] = &mergedHit{hit: h, lexScore: h.Score, fromLexical: true}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]mergedHit, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byID[id])
	}
	return out
}

// score promotes a merged hit into a RankedResult.
func (r *HybridRetriever) score(m mergedHit, now time.Time) model.RankedResult {
	var similarity float64
	switch {
	case m.fromSem && m.fromLexical:
		similarity = r.cfg.LexicalWeight*m.lexScore + (1-r.cfg.LexicalWeight)*m.semScore
	case m.fromLexical:
		similarity = m.lexScore
	default:
		similarity = m.semScore
	}

	importance := scoring.Importance(m.hit.Content)
	recency := recencyOrFloor(m.hit.Timestamp, now)

	prov := make(map[string]string, len(m.hit.Payload))
	for k, v := range m.hit.Payload {
		prov[k] = v
	}

	cand := model.Candidate{
		ID:         m.hit.ID,
		Content:    m.hit.Content,
		Timestamp:  m.hit.Timestamp,
		RawScore:   similarity,
		Provenance: prov,
	}
	return model.RankedResult{
		Candidate:  cand,
		Importance: importance,
		Recency:    recency,
		Score:      r.cfg.Weights.Fuse(similarity, importance, recency),
		DedupKey:   scoring.DedupKey(m.hit.Content),
		SourceIDs:  []string{cand.SourceID()},
	}
}

// recencyOrFloor treats missing timestamps as stale rather than fresh: a
// backend that can't date its content shouldn't outrank one that can.
func recencyOrFloor(ts time.Time, now time.Time) float64 {
	if ts.IsZero() {
		return 0.4
	}
	return scoring.RecencyWeight(ts, now)
}
