// Package cache memoizes conversion output by content hash, so repeated
// conversions of the same document+options never touch a worker. It wraps
// go-redis the same way the teacher's infra adapter does, with an in-memory
// fallback when Redis is unavailable.
package cache

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Key identifies a cache entry: the document's content hash plus the
// conversion options that affect output bytes.
type Key struct {
	DocHash    string
	FormatSpec string
}

// HashInput returns the hex-encoded blake2b-256 digest of docBytes combined
// with formatSpec, used as a Key.DocHash/FormatSpec pairing's cache key.
func HashInput(docBytes []byte, formatSpec string) string {
	h, _ := blake2b.New256(nil)
	h.Write(docBytes)
	h.Write([]byte{0})
	h.Write([]byte(formatSpec))
	return hex.EncodeToString(h.Sum(nil))
}

// Store caches converted PDF bytes against a content-hash key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// MemoryStore is an in-process Store, used when Redis is not configured or
// unreachable. It never evicts except via TTL expiry checked on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore returns an empty in-process Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = memEntry{value: value, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
