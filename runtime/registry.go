package runtime

import (
	"sync"

	"pairchat/contract"
)

// Registry tracks the active session sink of each connected user.
// A user holds at most one session; reconnecting replaces the old sink.
type Registry struct {
	mu       sync.RWMutex
	Sessions map[string]contract.EventSink
}

func NewRegistry() *Registry {
	return &Registry{
		Sessions: make(map[string]contract.EventSink),
	}
}

func (r *Registry) Get(userID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.Sessions[userID]
	return sink, ok
}

func (r *Registry) Register(userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sessions[userID] = sink
}

// Unregister drops the user's session only when sink is still the one
// registered. A reconnect replaces the sink, and the old handler's
// teardown must not tear down the replacement.
func (r *Registry) Unregister(userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.Sessions[userID]; ok && current == sink {
		delete(r.Sessions, userID)
	}
}
