package kv

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     string
	expiresAt *time.Time
}

// Memory is an in-process Store. It is the default fake in tests and the
// backing store for STORE_DRIVER=memory.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]memoryItem
	now    func() time.Time
	closed bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]memoryItem), now: time.Now}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	item, ok := m.items[key]
	if !ok {
		return "", false, nil
	}
	if item.expiresAt != nil && !m.now().Before(*item.expiresAt) {
		return "", false, nil
	}
	return item.value, true, nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, key, value string) error {
	return m.SetMany(ctx, Entry{Key: key, Value: value})
}

// SetWithTTL implements Store.
func (m *Memory) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return m.SetMany(ctx, Entry{Key: key, Value: value, TTL: ttl})
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.items, key)
	return nil
}

// SetMany implements Store. The batch is applied under a single lock.
func (m *Memory) SetMany(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	now := m.now()
	for _, e := range entries {
		m.items[e.Key] = memoryItem{value: e.Value, expiresAt: expiresAt(now, e.TTL)}
	}
	return nil
}

// Keys returns the live keys. Order is unspecified.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	keys := make([]string, 0, len(m.items))
	for k, item := range m.items {
		if item.expiresAt != nil && !now.Before(*item.expiresAt) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Store = (*Memory)(nil)
