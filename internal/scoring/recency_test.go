package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyWeight_Breakpoints(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.InDelta(t, 1.0, RecencyWeight(now, now), 0.0001)
	assert.InDelta(t, 0.98, RecencyWeight(now.Add(-24*time.Hour), now), 0.0001)
	assert.InDelta(t, 0.8, RecencyWeight(now.AddDate(0, 0, -7), now), 0.0001)
	assert.InDelta(t, 0.6, RecencyWeight(now.AddDate(0, 0, -30), now), 0.0001)
	assert.InDelta(t, 0.4, RecencyWeight(now.AddDate(0, 0, -31), now), 0.0001)
	assert.InDelta(t, 0.4, RecencyWeight(now.AddDate(-2, 0, 0), now), 0.0001)
}

func TestRecencyWeight_MonotoneNonIncreasing(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	prev := 1.1
	for hours := 0; hours <= 24*60; hours += 6 {
		w := RecencyWeight(now.Add(-time.Duration(hours)*time.Hour), now)
		assert.LessOrEqual(t, w, prev, "weight must not increase with age (age=%dh)", hours)
		assert.GreaterOrEqual(t, w, 0.4)
		assert.LessOrEqual(t, w, 1.0)
		prev = w
	}
}

func TestRecencyWeight_FutureTimestampClampsToFull(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 1.0, RecencyWeight(now.Add(time.Hour), now))
}

func TestRecencyWeight_MixedZonesCompareInUTC(t *testing.T) {
	// The same instant expressed in two zones must decay identically.
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	instant := now.Add(-36 * time.Hour)
	shanghai := instant.In(time.FixedZone("CST", 8*3600))

	assert.Equal(t, RecencyWeight(instant, now), RecencyWeight(shanghai, now))
}
