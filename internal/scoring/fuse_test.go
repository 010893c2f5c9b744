package scoring

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFusionWeights_RejectsBadSums(t *testing.T) {
	cases := []struct {
		name          string
		sim, imp, rec float64
	}{
		{"under", 0.5, 0.3, 0.1},
		{"over", 0.5, 0.3, 0.3},
		{"zero", 0, 0, 0},
		{"negative component", 1.2, -0.1, -0.1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewFusionWeights(tc.sim, tc.imp, tc.rec)
			assert.Error(t, err, "weights %v/%v/%v must be rejected, not renormalized", tc.sim, tc.imp, tc.rec)
		})
	}
}

func TestNewFusionWeights_AcceptsExactSum(t *testing.T) {
	w, err := NewFusionWeights(0.5, 0.3, 0.2)
	require.NoError(t, err)
	assert.Equal(t, DefaultFusionWeights(), w)

	// Float literals that sum to 1.0 only within rounding error still pass.
	_, err = NewFusionWeights(0.1, 0.2, 0.7)
	assert.NoError(t, err)
}

func TestFuse_DefaultWeights(t *testing.T) {
	w := DefaultFusionWeights()
	// 0.5*0.8 + 0.3*0.5 + 0.2*1.0 = 0.75
	assert.InDelta(t, 0.75, w.Fuse(0.8, 0.5, 1.0), 0.0001)
}

func TestFuse_MonotoneInSimilarity(t *testing.T) {
	// For any valid weight config with nonzero similarity weight, raising
	// similarity strictly raises the fused score, holding the rest fixed.
	rng := rand.New(rand.NewPCG(7, 11))
	for range 200 {
		a := 0.1 + 0.8*rng.Float64()
		b := (1 - a) * rng.Float64()
		w, err := NewFusionWeights(a, b, 1-a-b)
		require.NoError(t, err)

		imp, rec := rng.Float64(), rng.Float64()
		low := w.Fuse(0.3, imp, rec)
		high := w.Fuse(0.7, imp, rec)
		assert.Greater(t, high, low)
	}
}

func TestFuse_PureFunction(t *testing.T) {
	w := DefaultFusionWeights()
	first := w.Fuse(0.42, 0.9, 0.6)
	for range 10 {
		assert.Equal(t, first, w.Fuse(0.42, 0.9, 0.6))
	}
}
