package agent

import "github.com/finsight-ai/finsight/internal/model"

// depthParams are the retrieval knobs derived from query complexity.
type depthParams struct {
	topK     int
	minScore float64
}

// depthFor maps complexity to retrieval depth. Simple factual queries want
// few, high-confidence results; comprehensive ones cast a wider net with a
// lower threshold. The table is deterministic so identical queries retrieve
// identically.
func depthFor(c model.Complexity) depthParams {
	switch c {
	case model.ComplexitySimple:
		return depthParams{topK: 5, minScore: 0.55}
	case model.ComplexityComprehensive:
		return depthParams{topK: 12, minScore: 0.35}
	default:
		return depthParams{topK: 8, minScore: 0.45}
	}
}
