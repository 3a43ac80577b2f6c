// Package cache provides the shared cache backends the Marketo client
// mirrors its access token into.
package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process TTL cache. It satisfies marketo.TokenCache for
// tests and single-process deployments where no shared backend exists.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// GetKey returns the value stored under key, with its remaining
// lifetime. Expired entries are treated as misses.
func (m *Memory) GetKey(ctx context.Context, key string) (string, time.Duration, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return "", 0, false, nil
	}
	return entry.value, time.Until(entry.expiresAt), true, nil
}

// SetKey stores value under key for the given lifetime. Last writer wins.
func (m *Memory) SetKey(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// TokenCache binds a Memory cache to a fixed key, matching
// marketo.TokenCache.
type TokenCache struct {
	backend keyedCache
	key     string
}

type keyedCache interface {
	GetKey(ctx context.Context, key string) (string, time.Duration, bool, error)
	SetKey(ctx context.Context, key, value string, ttl time.Duration) error
}

func NewTokenCache(backend keyedCache, key string) *TokenCache {
	return &TokenCache{backend: backend, key: key}
}

func (t *TokenCache) Get(ctx context.Context) (string, time.Duration, bool, error) {
	return t.backend.GetKey(ctx, t.key)
}

func (t *TokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	return t.backend.SetKey(ctx, t.key, token, ttl)
}
