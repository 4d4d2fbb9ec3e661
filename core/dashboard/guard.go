package dashboard

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrSubmitInFlight = errors.New("a previous submission is still being processed")

// Guard allows at most one in-flight call per key, e.g. one create request per form instance.
// A concurrent call with the same key is rejected, not queued.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{inFlight: make(map[string]struct{})}
}

// Do runs fn unless a call with the same key is in flight, in which case it returns ErrSubmitInFlight.
// The key is released once fn returned, whatever the outcome.
func (g *Guard) Do(key string, fn func() error) error {
	g.mu.Lock()
	if _, busy := g.inFlight[key]; busy {
		g.mu.Unlock()
		return ErrSubmitInFlight
	}
	g.inFlight[key] = struct{}{}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.inFlight, key)
		g.mu.Unlock()
	}()
	return fn()
}

// InFlight reports whether a call with this key is running.
func (g *Guard) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.inFlight[key]
	return busy
}
