package instance

import "sync"

// Locks hands out one mutex per instance name. The update orchestrator
// holds an instance's lock while it mutates files; short registry changes
// use TryLock and fail fast instead of waiting behind an update.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*sync.Mutex)}
}

func (l *Locks) get(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	return m
}

func (l *Locks) Lock(name string) func() {
	m := l.get(name)
	m.Lock()
	return m.Unlock
}

func (l *Locks) TryLock(name string) (func(), bool) {
	m := l.get(name)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}
