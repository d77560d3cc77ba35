package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLite implements Store on a local SQLite database.
type SQLite struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens or creates a SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLite{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLite) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLite) migrate() error {
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
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id, branch, created_at DESC);

	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		branch     TEXT NOT NULL DEFAULT 'main',
		category   TEXT NOT NULL,
		content    TEXT NOT NULL,
		score      REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id, branch);
	CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);

	CREATE TABLE IF NOT EXISTS usage_records (
		id          TEXT PRIMARY KEY,
		request_id  TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		model       TEXT NOT NULL,
		tokens_in   INTEGER NOT NULL DEFAULT 0,
		tokens_out  INTEGER NOT NULL DEFAULT 0,
		cost_usd    REAL NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_session ON usage_records(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) AddConversation(ctx context.Context, row ConversationRow) (string, error) {
	if row.ID == "" {
		row.ID = s.newID()
	}
	if row.Branch == "" {
		row.Branch = "main"
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, session_id, branch, role, content, model, provider, thought, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.SessionID, row.Branch, row.Role, row.Content,
		row.Model, row.Provider, row.Thought, row.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return row.ID, nil
}

func (s *SQLite) RecentConversations(ctx context.Context, sessionID, branch string, limit int) ([]ConversationRow, error) {
	if branch == "" {
		branch = "main"
	}
	if limit <= 0 {
		limit = 20
	}

	// Fetch newest first, then reverse so callers see chronological order.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, branch, role, content, model, provider, thought, created_at
		 FROM conversations
		 WHERE session_id = ? AND branch = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, sessionID, branch, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ConversationRow
	for rows.Next() {
		var row ConversationRow
		var model, provider, thought sql.NullString
		var createdAt string
		if err := rows.Scan(&row.ID, &row.SessionID, &row.Branch, &row.Role, &row.Content,
			&model, &provider, &thought, &createdAt); err != nil {
			return nil, err
		}
		row.Model = model.String
		row.Provider = provider.String
		row.Thought = thought.String
		row.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
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

func (s *SQLite) AddMemory(ctx context.Context, row MemoryRow) (string, error) {
	if row.ID == "" {
		row.ID = s.newID()
	}
	if row.Branch == "" {
		row.Branch = "main"
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, session_id, branch, category, content, score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.SessionID, row.Branch, row.Category, row.Content,
		row.Score, row.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return row.ID, nil
}

func (s *SQLite) MemoriesByIDs(ctx context.Context, ids []string) ([]MemoryRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, branch, category, content, score, created_at
		 FROM memories WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]MemoryRow, len(ids))
	for rows.Next() {
		var row MemoryRow
		var createdAt string
		if err := rows.Scan(&row.ID, &row.SessionID, &row.Branch, &row.Category,
			&row.Content, &row.Score, &createdAt); err != nil {
			return nil, err
		}
		row.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
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

func (s *SQLite) AddUsage(ctx context.Context, row UsageRow) (string, error) {
	if row.ID == "" {
		row.ID = s.newID()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, request_id, session_id, model, tokens_in, tokens_out, cost_usd, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.RequestID, row.SessionID, row.Model, row.TokensIn, row.TokensOut,
		row.CostUSD, row.DurationMS, row.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert usage record: %w", err)
	}
	return row.ID, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
