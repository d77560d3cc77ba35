package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kaiwa-ai/kaiwa/internal/memory/vector"
	"github.com/kaiwa-ai/kaiwa/internal/store"
)

// Service is the memory subsystem facade: conversation turns flow
// through the short-term window into the durable store, and scored
// memories go to the store plus the vector index for later retrieval.
type Service struct {
	store  store.Store
	index  *vector.Index // nil when no embedding provider is configured
	buffer *ShortTerm
	logger *slog.Logger
}

// NewService creates the memory service. index may be nil, which
// disables semantic retrieval but keeps everything else working.
func NewService(st store.Store, index *vector.Index, window int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		index:  index,
		buffer: NewShortTerm(window),
		logger: logger,
	}
}

// AddTurn buffers a conversation turn and persists it. The buffer is
// updated first so the window reflects the turn even if the insert
// fails.
func (s *Service) AddTurn(ctx context.Context, row store.ConversationRow) (string, error) {
	s.buffer.Append(row.SessionID, row.Branch, Turn{Role: row.Role, Content: row.Content})

	id, err := s.store.AddConversation(ctx, row)
	if err != nil {
		return "", fmt.Errorf("persist turn: %w", err)
	}
	return id, nil
}

// Recent returns the short-term window for a session branch, hydrating
// a cold buffer from the durable store first.
func (s *Service) Recent(ctx context.Context, sessionID, branch string) ([]Turn, error) {
	if turns := s.buffer.Recent(sessionID, branch); len(turns) > 0 {
		return turns, nil
	}

	rows, err := s.store.RecentConversations(ctx, sessionID, branch, s.buffer.window)
	if err != nil {
		return nil, fmt.Errorf("hydrate window: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	turns := make([]Turn, len(rows))
	for i, row := range rows {
		turns[i] = Turn{Role: row.Role, Content: row.Content}
	}
	s.buffer.Seed(sessionID, branch, turns)
	return turns, nil
}

// StoreMemory persists a scored memory and feeds it to the vector
// index. An index failure is logged, not propagated: durable storage
// already succeeded and retrieval degrades gracefully without the
// vector entry.
func (s *Service) StoreMemory(ctx context.Context, row store.MemoryRow) (string, error) {
	id, err := s.store.AddMemory(ctx, row)
	if err != nil {
		return "", fmt.Errorf("persist memory: %w", err)
	}

	if s.index != nil {
		if err := s.index.Add(ctx, id, row.Content); err != nil {
			s.logger.Warn("vector index update failed",
				slog.String("memory_id", id),
				slog.String("error", err.Error()))
		}
	}
	return id, nil
}

// Search returns up to topK memories ranked by semantic similarity.
// Without a vector index it returns nothing.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]store.MemoryRow, error) {
	if s.index == nil || topK <= 0 {
		return nil, nil
	}

	ids, err := s.index.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.store.MemoriesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve memories: %w", err)
	}
	return rows, nil
}
