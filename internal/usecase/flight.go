package usecase

import "sync"

// flightGate admits at most one holder per key.
type flightGate struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newFlightGate() *flightGate {
	return &flightGate{busy: make(map[string]struct{})}
}

// tryAcquire marks key busy and returns a release func, or false when key
// is already held.
func (g *flightGate) tryAcquire(key string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.busy[key]; held {
		return nil, false
	}
	g.busy[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.busy, key)
		g.mu.Unlock()
	}, true
}

func (g *flightGate) isBusy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.busy[key]
	return held
}
