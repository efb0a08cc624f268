// Package cache implements the tiered TTL caches in front of the execution
// layer: query results, per-table schemas and the table inventory. Expiry is
// lazy: an entry older than its TTL counts as a miss on the read path and
// is evicted there; no background sweeper runs. Disabling caching entirely
// is a supported deployment mode via the Nop store.
package cache

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Store is the cache contract. Entries are immutable once written;
// overwrite-on-put replaces the whole entry.
type Store interface {
	// Get returns the live value for key, or a miss if absent or expired.
	Get(key string) (any, bool)

	// Put stores value under key for ttl. Non-positive ttl is ignored.
	Put(key string, value any, ttl time.Duration)

	// Invalidate drops one key.
	Invalidate(key string)

	// InvalidateAll drops every entry.
	InvalidateAll()
}

type entry struct {
	value     any
	expiresAt time.Time
}

// TTLStore is the production Store. Safe for concurrent use.
type TTLStore struct {
	m *xsync.MapOf[string, entry]

	// now is swappable in tests.
	now func() time.Time
}

// NewTTL returns an empty TTLStore.
func NewTTL() *TTLStore {
	return &TTLStore{
		m:   xsync.NewMapOf[string, entry](),
		now: time.Now,
	}
}

func (s *TTLStore) Get(key string) (any, bool) {
	e, ok := s.m.Load(key)
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		// Lazy eviction on read.
		s.m.Delete(key)
		return nil, false
	}
	return e.value, true
}

func (s *TTLStore) Put(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.m.Store(key, entry{value: value, expiresAt: s.now().Add(ttl)})
}

func (s *TTLStore) Invalidate(key string) {
	s.m.Delete(key)
}

func (s *TTLStore) InvalidateAll() {
	s.m.Clear()
}

// Len reports the number of stored entries, expired ones included.
func (s *TTLStore) Len() int {
	return s.m.Size()
}

// Nop is the disabled-cache Store: every Get is a miss, every Put a no-op.
// It substitutes for TTLStore without changing any caller.
type Nop struct{}

func NewNop() Nop { return Nop{} }

func (Nop) Get(string) (any, bool)         { return nil, false }
func (Nop) Put(string, any, time.Duration) {}
func (Nop) Invalidate(string)              {}
func (Nop) InvalidateAll()                 {}
