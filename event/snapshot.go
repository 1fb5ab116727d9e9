package event

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/wudi/screenkit/recognition"
)

// snapshot is the per-context recognition state retained between frames.
type snapshot struct {
	frameID string
	taken   time.Time
	results []recognition.Result
}

// snapshotStore is the only mutable shared state in the detector. Entries
// expire after the TTL so a context that disappears (window closed) stops
// holding memory; access is serialized per context key while distinct
// keys proceed fully in parallel.
type snapshotStore struct {
	cache *gocache.Cache

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSnapshotStore(ttl time.Duration) *snapshotStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	s := &snapshotStore{
		cache: gocache.New(ttl, ttl/2),
		locks: make(map[string]*sync.Mutex),
	}
	// Context keys embed window titles, so a long-running capture source
	// produces an unbounded key stream. The lock map must shrink with the
	// cache: when a snapshot expires, drop its mutex too, unless a holder
	// is mid-delta, in which case the entry survives until the key's next
	// expiry.
	s.cache.OnEvicted(func(key string, _ interface{}) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if l, ok := s.locks[key]; ok && l.TryLock() {
			delete(s.locks, key)
			l.Unlock()
		}
	})
	return s
}

// keyLock returns the mutex serializing one context key.
func (s *snapshotStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *snapshotStore) get(key string) (snapshot, bool) {
	raw, ok := s.cache.Get(key)
	if !ok {
		return snapshot{}, false
	}
	return raw.(snapshot), true
}

func (s *snapshotStore) put(key string, snap snapshot) {
	s.cache.SetDefault(key, snap)
}

func (s *snapshotStore) len() int { return s.cache.ItemCount() }

func (s *snapshotStore) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
