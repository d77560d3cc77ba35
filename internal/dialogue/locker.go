package dialogue

import (
	"strings"
	"sync"
)

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// sessionLocker serializes turns per session id. Locks are created on
// demand and dropped once the last holder releases, so the map does not
// grow with session churn.
type sessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

func newSessionLocker() *sessionLocker {
	return &sessionLocker{locks: make(map[string]*sessionLock)}
}

// lock acquires the per-session lock and returns its release func. An
// empty session id is not serialized.
func (l *sessionLocker) lock(sessionID string) func() {
	if strings.TrimSpace(sessionID) == "" {
		return func() {}
	}

	l.mu.Lock()
	lock := l.locks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		l.locks[sessionID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(l.locks, sessionID)
		}
		l.mu.Unlock()
	}
}
