// Package store persists conversation turns, scored memories, and usage
// records behind a driver-agnostic interface.
package store

import (
	"context"
	"time"
)

// ConversationRow is one persisted dialogue turn.
type ConversationRow struct {
	ID        string
	SessionID string
	Branch    string
	Role      string
	Content   string
	Model     string
	Provider  string
	Thought   string
	CreatedAt time.Time
}

// MemoryRow is one scored long-term memory entry.
type MemoryRow struct {
	ID        string
	SessionID string
	Branch    string
	Category  string
	Content   string
	Score     float64
	CreatedAt time.Time
}

// UsageRow is one per-request usage accounting record.
type UsageRow struct {
	ID         string
	RequestID  string
	SessionID  string
	Model      string
	TokensIn   int64
	TokensOut  int64
	CostUSD    float64
	DurationMS int64
	CreatedAt  time.Time
}

// Store is the persistence interface shared by the SQLite and Postgres
// backends. Add methods assign a ULID when the row carries no ID and
// return the ID actually written.
type Store interface {
	AddConversation(ctx context.Context, row ConversationRow) (string, error)

	// RecentConversations returns the most recent turns for a session
	// branch, oldest first.
	RecentConversations(ctx context.Context, sessionID, branch string, limit int) ([]ConversationRow, error)

	AddMemory(ctx context.Context, row MemoryRow) (string, error)

	// MemoriesByIDs returns rows in the order the IDs were given.
	// Unknown IDs are dropped, not errored.
	MemoriesByIDs(ctx context.Context, ids []string) ([]MemoryRow, error)

	AddUsage(ctx context.Context, row UsageRow) (string, error)

	Close() error
}
