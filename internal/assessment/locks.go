package assessment

import "sync"

// sessionLocks serializes mutating operations per session without a global
// lock across sessions. Entries are refcounted so the map stays bounded by
// the number of in-flight operations.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{m: map[string]*sessionLock{}}
}

// Lock blocks until the caller holds the session's lock and returns the
// unlock func.
func (l *sessionLocks) Lock(sessionID string) func() {
	l.mu.Lock()
	e, ok := l.m[sessionID]
	if !ok {
		e = &sessionLock{}
		l.m[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, sessionID)
		}
		l.mu.Unlock()
	}
}
