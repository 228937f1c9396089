// Package cache stores fetched API payloads keyed by (ticker, kind, range).
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Entry is one cached payload. Payload is opaque to the cache.
type Entry struct {
	Key       string
	Kind      string
	FetchedAt time.Time
	Payload   []byte
}

// Cache is safe for concurrent use. Writers to the same key race with
// last-writer-wins semantics.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
}

// Key builds the cache key for a series request.
func Key(ticker, kind string, from, to time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", ticker, kind, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// Memory is an in-process cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	return e, ok, nil
}

func (m *Memory) Put(_ context.Context, e Entry) error {
	payload := make([]byte, len(e.Payload))
	copy(payload, e.Payload)
	e.Payload = payload
	m.mu.Lock()
	m.entries[e.Key] = e
	m.mu.Unlock()
	return nil
}

// Len is the number of cached keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Layered reads Front first and falls back to Back, promoting hits.
// Writes go to both.
type Layered struct {
	Front Cache
	Back  Cache
}

func (l Layered) Get(ctx context.Context, key string) (Entry, bool, error) {
	if e, ok, err := l.Front.Get(ctx, key); err == nil && ok {
		return e, true, nil
	}
	e, ok, err := l.Back.Get(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if err := l.Front.Put(ctx, e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (l Layered) Put(ctx context.Context, e Entry) error {
	if err := l.Front.Put(ctx, e); err != nil {
		return err
	}
	return l.Back.Put(ctx, e)
}
