package scoring

import (
	"fmt"
	"math"
)

// FusionWeights is the weighted-linear-combination config for score fusion.
// Construct via NewFusionWeights; the zero value is unusable.
type FusionWeights struct {
	Similarity float64
	Importance float64
	Recency    float64
}

// weightSumTolerance absorbs float literal rounding, nothing more.
const weightSumTolerance = 1e-9

// NewFusionWeights validates that the weights sum to exactly 1.0.
// Configurations that don't are rejected rather than silently renormalized —
// silent renormalization produces call sites that agree on weights but
// disagree on rankings.
func NewFusionWeights(similarity, importance, recency float64) (FusionWeights, error) {
	if similarity < 0 || importance < 0 || recency < 0 {
		return FusionWeights{}, fmt.Errorf("scoring: fusion weights must be non-negative, got %v/%v/%v", similarity, importance, recency)
	}
	if sum := similarity + importance + recency; math.Abs(sum-1.0) > weightSumTolerance {
		return FusionWeights{}, fmt.Errorf("scoring: fusion weights must sum to 1.0, got %v", sum)
	}
	return FusionWeights{Similarity: similarity, Importance: importance, Recency: recency}, nil
}

// DefaultFusionWeights is the canonical 0.5/0.3/0.2 split.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Similarity: 0.5, Importance: 0.3, Recency: 0.2}
}

// Fuse combines the three component scores into one ordering score. Pure and
// order-independent: re-ranking the same inputs always yields the same value.
func (w FusionWeights) Fuse(similarity, importance, recency float64) float64 {
	return w.Similarity*similarity + w.Importance*importance + w.Recency*recency
}
