package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RecentTurnsOldestFirstWithLimit(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	session := uuid.New()
	ctx := context.Background()
	require.NoError(t, s.AppendTurn(ctx, session, "user", "first question"))
	require.NoError(t, s.AppendTurn(ctx, session, "assistant", "first answer"))
	require.NoError(t, s.AppendTurn(ctx, session, "user", "second question"))

	turns, err := s.RecentTurns(ctx, session, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2, "limit keeps only the newest turns")
	assert.Equal(t, "first answer", turns[0].Content, "returned oldest-first")
	assert.Equal(t, "second question", turns[1].Content)
}

func TestMemoryStore_SessionsAreIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, s.AppendTurn(ctx, a, "user", "about apple"))

	turns, err := s.RecentTurns(ctx, b, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestNoopStore(t *testing.T) {
	var s NoopStore
	ctx := context.Background()
	session := uuid.New()

	require.NoError(t, s.AppendTurn(ctx, session, "user", "dropped"))
	turns, err := s.RecentTurns(ctx, session, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}
