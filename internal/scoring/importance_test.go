package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImportance_CurrencyFigureScoresFullNumericWeight(t *testing.T) {
	// Currency figure (0.4) + "revenue" and "earnings" keywords (0.4) +
	// substantial length (0.2) = 1.0.
	text := "Q3 earnings beat expectations with revenue of $4.2 billion, up 12% year over year against consensus."
	assert.InDelta(t, 1.0, Importance(text), 0.001)
}

func TestImportance_BareNumberScoresHalfNumericWeight(t *testing.T) {
	// Bare number (0.2) + no keywords + short band 20–50 runes (0.1).
	text := "the board met 3 times last quarter"
	assert.InDelta(t, 0.3, Importance(text), 0.001)
}

func TestImportance_KeywordHitsCapAtPointFour(t *testing.T) {
	// Five keyword hits would be 1.0 uncapped; the cap keeps it at 0.4.
	text := "merger acquisition dividend buyback lawsuit"
	// No digits (0), keywords capped (0.4), 41 runes → short band (0.1).
	assert.InDelta(t, 0.5, Importance(text), 0.001)
}

func TestImportance_EmptyAndNoiseScoreZero(t *testing.T) {
	assert.Zero(t, Importance(""))
	assert.Zero(t, Importance("ok"))
}

func TestImportance_LengthBands(t *testing.T) {
	pad := func(n int) string { return strings.Repeat("a", n) }

	assert.InDelta(t, 0.1, Importance(pad(30)), 0.001, "20–50 runes is the short band")
	assert.InDelta(t, 0.2, Importance(pad(200)), 0.001, "50–500 runes is the substantial band")
	assert.InDelta(t, 0.1, Importance(pad(1000)), 0.001, "500–2000 runes is the long band")
	assert.Zero(t, Importance(pad(3000)), "beyond 2000 runes earns no length bonus")
}

func TestImportance_BoundedToOne(t *testing.T) {
	text := "earnings revenue profit guidance merger $9 billion " + strings.Repeat("detail ", 20)
	got := Importance(text)
	assert.LessOrEqual(t, got, 1.0)
	assert.GreaterOrEqual(t, got, 0.0)
}
