package memory

import "sync"

// KeyLock implements keyed mutual exclusion with one mutex per live key.
// Entries are reference counted and dropped when the last holder releases, so
// the table stays bounded by the number of keys currently contended. Distinct
// keys never share a mutex, which keeps ascending multi-key acquisition safe.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[string]*lockEntry)}
}

func (l *KeyLock) Lock(key string) (release func()) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}
