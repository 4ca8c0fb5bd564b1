package bbs

import "sync"

// guard tracks which entities have an operation in flight in this process.
type guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newGuard() *guard {
	return &guard{active: make(map[string]struct{})}
}

// tryAcquire marks key as busy. It returns false if key is already busy.
func (g *guard) tryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[key]; busy {
		return false
	}
	g.active[key] = struct{}{}
	return true
}

func (g *guard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.active, key)
}

// busy reports whether key has an operation in flight.
func (g *guard) busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.active[key]
	return ok
}

func threadKey(threadID string) string { return "thread:" + threadID }
func boardKey(boardID string) string   { return "board:" + boardID }
