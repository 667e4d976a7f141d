package cache

import (
	"sync"
	"time"
)

// CacheProvider is the byte-oriented key-value store behind the cache.
// It stores manifests and body blobs and keeps track of their expiration.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the bytes stored for the given key, if any.
	// The boolean is false for missing and expired keys, which is not an error.
	Get(key string) ([]byte, bool, error)
	// Put stores the bytes under the given key.
	// A ttl of zero or less stores the entry without expiry.
	Put(key string, ttl time.Duration, bytes []byte) error
	// Purge removes the entry for the given key.
	// Purging a missing key is not an error.
	Purge(key string) error
}

// Sweeper is implemented by providers that can drop all expired entries at once.
type Sweeper interface {
	PurgeExpired() (int, error)
}

type memCacheEntry struct {
	expires time.Time
	bytes   []byte
}

// MemCache keeps entries in a map, it is meant for tests and short-lived clients.
type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]memCacheEntry
	now   func() time.Time
}

// NewMemCache returns an empty in-memory provider.
// The clock is used for expiry and defaults to time.Now.
func NewMemCache(clock func() time.Time) MemCache {
	if clock == nil {
		clock = time.Now
	}
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]memCacheEntry),
		now:   clock,
	}
}

func (m MemCache) Get(key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		return nil, false, nil
	}
	return entry.bytes, true, nil
}

func (m MemCache) Put(key string, ttl time.Duration, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.db[key] = memCacheEntry{expires, bytes}
	return nil
}

func (m MemCache) Purge(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
	return nil
}

// PurgeExpired drops every expired entry and returns how many were dropped.
func (m MemCache) PurgeExpired() (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := m.now()
	n := 0
	for key, entry := range m.db {
		if !entry.expires.IsZero() && !now.Before(entry.expires) {
			delete(m.db, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries, expired ones included.
func (m MemCache) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.db)
}
