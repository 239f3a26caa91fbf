package edit

import "sync"

// lockEntry holds a per-path mutex and a reference count so the entry can be
// removed from the map when no goroutine is using it.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// locker provides per-path mutual exclusion so two applies to the same file
// never interleave their verify and write steps.
type locker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newLocker() *locker {
	return &locker{locks: make(map[string]*lockEntry)}
}

func (l *locker) lock(path string) {
	l.mu.Lock()
	e, ok := l.locks[path]
	if !ok {
		e = &lockEntry{}
		l.locks[path] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

func (l *locker) unlock(path string) {
	l.mu.Lock()
	e, ok := l.locks[path]
	if !ok {
		l.mu.Unlock()
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.locks, path)
	}
	l.mu.Unlock()

	e.mu.Unlock()
}

func (l *locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
