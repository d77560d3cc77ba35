// Package memory combines a short-term conversation window, a durable
// store, and a vector index behind one retrieval service.
package memory

import "sync"

// DefaultWindow is how many recent turns the short-term buffer keeps
// per session branch.
const DefaultWindow = 12

// Turn is one buffered conversation turn.
type Turn struct {
	Role    string
	Content string
}

// ShortTerm keeps a bounded FIFO window of recent turns keyed by
// session and branch. It is safe for concurrent use.
type ShortTerm struct {
	mu      sync.Mutex
	window  int
	buffers map[string][]Turn
}

// NewShortTerm creates a buffer keeping up to window turns per key.
func NewShortTerm(window int) *ShortTerm {
	if window <= 0 {
		window = DefaultWindow
	}
	return &ShortTerm{
		window:  window,
		buffers: make(map[string][]Turn),
	}
}

func bufferKey(sessionID, branch string) string {
	if branch == "" {
		branch = "main"
	}
	return sessionID + "\x00" + branch
}

// Append adds a turn, evicting the oldest when the window is full.
func (s *ShortTerm) Append(sessionID, branch string, turn Turn) {
	key := bufferKey(sessionID, branch)

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.buffers[key], turn)
	if len(buf) > s.window {
		buf = buf[len(buf)-s.window:]
	}
	s.buffers[key] = buf
}

// Recent returns the buffered turns, oldest first.
func (s *ShortTerm) Recent(sessionID, branch string) []Turn {
	key := bufferKey(sessionID, branch)

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[key]
	out := make([]Turn, len(buf))
	copy(out, buf)
	return out
}

// Len reports how many turns are buffered for the key.
func (s *ShortTerm) Len(sessionID, branch string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers[bufferKey(sessionID, branch)])
}

// Seed replaces the buffer content for a key, trimming to the window.
// Used to warm a cold buffer from the durable store.
func (s *ShortTerm) Seed(sessionID, branch string, turns []Turn) {
	key := bufferKey(sessionID, branch)
	if len(turns) > s.window {
		turns = turns[len(turns)-s.window:]
	}
	buf := make([]Turn, len(turns))
	copy(buf, turns)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[key] = buf
}
