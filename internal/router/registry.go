package router

import (
	"sync"
	"time"
)

// Registry remembers recently submitted intent keys so retries and
// repeated signals cannot double-submit.
type Registry struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
}

// NewRegistry creates a registry; entries expire after ttl.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// Register claims a key. It fails with ErrDuplicateIntent when the key
// was already claimed inside the TTL.
func (r *Registry) Register(key string) error {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if at, ok := r.entries[key]; ok && now.Sub(at) < r.ttl {
		return ErrDuplicateIntent
	}
	r.entries[key] = now

	// Opportunistic sweep; the map stays small at trade frequencies.
	for k, at := range r.entries {
		if now.Sub(at) >= r.ttl {
			delete(r.entries, k)
		}
	}
	return nil
}

// Release frees a key so the intent may be retried, used when the
// exchange definitively rejected the order.
func (r *Registry) Release(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
