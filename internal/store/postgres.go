package store

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Postgres implements Store on a Postgres connection pool.
type Postgres struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	entropy *rand.Rand
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects to the database and applies the schema.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Postgres{
		pool:    pool,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Postgres) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Postgres) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		branch     TEXT NOT NULL DEFAULT 'main',
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		model      TEXT,
		provider   TEXT,
		thought    TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id, branch, created_at DESC);

	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		branch     TEXT NOT NULL DEFAULT 'main',
		category   TEXT NOT NULL,
		content    TEXT NOT NULL,
		score      DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id, branch);
	CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);

	CREATE TABLE IF NOT EXISTS usage_records (
		id          TEXT PRIMARY KEY,
		request_id  TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		model       TEXT NOT NULL,
		tokens_in   BIGINT NOT NULL DEFAULT 0,
		tokens_out  BIGINT NOT NULL DEFAULT 0,
		cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_session ON usage_records(session_id);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Postgres) AddConversation(ctx context.Context, row ConversationRow) (string, error) {
	if row.ID == "" {
		row.ID = s.newID()
	}
	if row.Branch == "" {
		row.Branch = "main"
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, session_id, branch, role, content, model, provider, thought, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		row.ID, row.SessionID, row.Branch, row.Role, row.Content,
		row.Model, row.Provider, row.Thought, row.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return row.ID, nil
}

func (s *Postgres) RecentConversations(ctx context.Context, sessionID, branch string, limit int) ([]ConversationRow, error) {
	if branch == "" {
		branch = "main"
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, branch, role, content,
		        COALESCE(model, ''), COALESCE(provider, ''), COALESCE(thought, ''), created_at
		 FROM conversations
		 WHERE session_id = $1 AND branch = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3`, sessionID, branch, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ConversationRow
	for rows.Next() {
		var row ConversationRow
		if err := rows.Scan(&row.ID, &row.SessionID, &row.Branch, &row.Role, &row.Content,
			&row.Model, &row.Provider, &row.Thought, &row.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

func (s *Postgres) AddMemory(ctx context.Context, row MemoryRow) (string, error) {
	if row.ID == "" {
		row.ID = s.newID()
	}
	if row.Branch == "" {
		row.Branch = "main"
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO memories (id, session_id, branch, category, content, score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.ID, row.SessionID, row.Branch, row.Category, row.Content, row.Score, row.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return row.ID, nil
}

func (s *Postgres) MemoriesByIDs(ctx context.Context, ids []string) ([]MemoryRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, branch, category, content, score, created_at
		 FROM memories WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]MemoryRow, len(ids))
	for rows.Next() {
		var row MemoryRow
		if err := rows.Scan(&row.ID, &row.SessionID, &row.Branch, &row.Category,
			&row.Content, &row.Score, &row.CreatedAt); err != nil {
			return nil, err
		}
		byID[row.ID] = row
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]MemoryRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			result = append(result, row)
		}
	}
	return result, nil
}

func (s *Postgres) AddUsage(ctx context.Context, row UsageRow) (string, error) {
	if row.ID == "" {
		row.ID = s.newID()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_records (id, request_id, session_id, model, tokens_in, tokens_out, cost_usd, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		row.ID, row.RequestID, row.SessionID, row.Model, row.TokensIn, row.TokensOut,
		row.CostUSD, row.DurationMS, row.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert usage record: %w", err)
	}
	return row.ID, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
