package model

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipelineState_RejectsEmptyQuery(t *testing.T) {
	_, err := NewPipelineState(Query{Text: "   "})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestSlot_FirstWriteWins(t *testing.T) {
	st, err := NewPipelineState(Query{Text: "q"})
	require.NoError(t, err)

	slot := st.Slot("messages")
	assert.True(t, slot.Write(AgentOutcome{Status: OutcomeFailed, Err: &AgentError{Agent: "messages", Kind: KindTimeout, Message: "deadline exceeded"}}))

	// A late write (agent finishing after its timeout was recorded) is dropped.
	assert.False(t, slot.Write(AgentOutcome{Status: OutcomeSuccess}))

	out, ok := st.Outcome("messages")
	require.True(t, ok)
	assert.Equal(t, OutcomeFailed, out.Status)
	assert.Len(t, st.Errors(), 1)
}

func TestSlot_ConcurrentWritersOneSurvivor(t *testing.T) {
	st, err := NewPipelineState(Query{Text: "q"})
	require.NoError(t, err)

	slot := st.Slot("reports")
	var wg sync.WaitGroup
	wins := make(chan bool, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- slot.Write(AgentOutcome{Status: OutcomeSuccess, Summary: "x"})
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for w := range wins {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one write should be recorded")
}

func TestSlot_AgentsCannotCrossWrite(t *testing.T) {
	st, err := NewPipelineState(Query{Text: "q"})
	require.NoError(t, err)

	// Each slot is bound to its agent name; writing through it can only ever
	// touch that agent's entry regardless of what the outcome claims.
	slot := st.Slot("financials")
	slot.Write(AgentOutcome{Agent: "messages", Status: OutcomeSuccess})

	_, ok := st.Outcome("messages")
	assert.False(t, ok, "outcome must land in the slot's own entry")
	out, ok := st.Outcome("financials")
	require.True(t, ok)
	assert.Equal(t, "financials", out.Agent)
}

func TestQueryNormalize_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CST", 8*3600))
	q := Query{Text: "how did margins trend?", Intent: "weird", Complexity: ""}.Normalize(now)

	assert.Equal(t, IntentGeneral, q.Intent)
	assert.Equal(t, ComplexityStandard, q.Complexity)
	assert.Equal(t, ShapeDetailed, q.AnswerShape)
	assert.NotEqual(t, q.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, time.UTC, q.AskedAt.Location(), "timestamps are canonicalized to UTC")
}

func TestAgentOutcome_Usable(t *testing.T) {
	assert.False(t, AgentOutcome{Status: OutcomeSuccess}.Usable(), "success with no payload is not usable")
	assert.False(t, AgentOutcome{Status: OutcomeFailed, Summary: "x"}.Usable())
	assert.True(t, AgentOutcome{Status: OutcomePartial, Summary: "digest"}.Usable())
	assert.True(t, AgentOutcome{Status: OutcomeSuccess, Results: []RankedResult{{}}}.Usable())
}
