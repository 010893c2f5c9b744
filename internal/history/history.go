// Package history stores and retrieves per-session conversation turns used
// to enrich answer synthesis with prior context.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Turn is one utterance in a session, oldest-first when returned in lists.
type Turn struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// Store persists conversation turns per session.
type Store interface {
	// AppendTurn records one turn for a session.
	AppendTurn(ctx context.Context, sessionID uuid.UUID, role, content string) error

	// RecentTurns returns up to limit of the most recent turns for a
	// session, ordered oldest-first so they can be fed to a prompt as-is.
	RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]Turn, error)
}

// PostgresStore is the pgx-backed Store over the conversation_turns table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// AppendTurn records one turn.
func (s *PostgresStore) AppendTurn(ctx context.Context, sessionID uuid.UUID, role, content string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_turns (session_id, role, content)
		VALUES ($1, $2, $3)`,
		sessionID, role, content)
	if err != nil {
		return fmt.Errorf("history: append turn: %w", err)
	}
	return nil
}

// RecentTurns returns the newest limit turns, oldest-first.
func (s *PostgresStore) RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT role, content, created_at FROM (
			SELECT role, content, created_at
			FROM conversation_turns
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan turn: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate turns: %w", err)
	}
	return turns, nil
}

// MemoryStore keeps turns in memory, keyed by session. Used in development
// runs without a database.
type MemoryStore struct {
	mu    sync.Mutex
	turns map[uuid.UUID][]Turn
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[uuid.UUID][]Turn), now: time.Now}
}

// AppendTurn records one turn in memory.
func (s *MemoryStore) AppendTurn(_ context.Context, sessionID uuid.UUID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[sessionID] = append(s.turns[sessionID], Turn{Role: role, Content: content, CreatedAt: s.now().UTC()})
	return nil
}

// RecentTurns returns the newest limit turns, oldest-first.
func (s *MemoryStore) RecentTurns(_ context.Context, sessionID uuid.UUID, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.turns[sessionID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Turn, len(all))
	copy(out, all)
	return out, nil
}

// NoopStore discards writes and returns no history. Used when no database
// is configured.
type NoopStore struct{}

// AppendTurn discards the turn.
func (NoopStore) AppendTurn(context.Context, uuid.UUID, string, string) error { return nil }

// RecentTurns returns no history.
func (NoopStore) RecentTurns(context.Context, uuid.UUID, int) ([]Turn, error) { return nil, nil }
