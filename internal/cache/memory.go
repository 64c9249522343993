package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLocalSize bounds the in-process tier when no size is configured.
const DefaultLocalSize = 10000

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryBackend is the per-instance tier: a bounded LRU whose entries carry
// an absolute expiry and are evicted lazily on access.
type MemoryBackend struct {
	mu    sync.Mutex
	items *lru.Cache[string, memoryEntry]
	now   func() time.Time
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryBackend) {
		m.now = now
	}
}

// NewMemoryBackend creates an in-process backend holding at most size entries.
func NewMemoryBackend(size int, opts ...MemoryOption) *MemoryBackend {
	if size <= 0 {
		size = DefaultLocalSize
	}
	items, err := lru.New[string, memoryEntry](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(fmt.Sprintf("cache: %v", err))
	}
	m := &MemoryBackend{items: items, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryBackend) Name() string { return "memory" }

// lookup returns a live entry, evicting it first if it has expired.
func (m *MemoryBackend) lookup(key string) (memoryEntry, bool) {
	entry, ok := m.items.Get(key)
	if !ok {
		return memoryEntry{}, false
	}
	if !m.now().Before(entry.expiresAt) {
		m.items.Remove(key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (m *MemoryBackend) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(key)
	if !ok {
		return false, nil
	}
	if err := decode(entry.payload, dest); err != nil {
		m.items.Remove(key)
		return false, nil
	}
	return true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	payload, err := encode(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items.Add(key, memoryEntry{payload: payload, expiresAt: m.now().Add(effectiveTTL(ttl))})
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items.Remove(key)
	return nil
}

func (m *MemoryBackend) DeleteByPattern(_ context.Context, pattern string) error {
	re, err := compileGlob(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.items.Keys() {
		if re.MatchString(key) {
			m.items.Remove(key)
		}
	}
	return nil
}

func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(key)
	return ok, nil
}

func (m *MemoryBackend) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.lookup(key)
	if !ok {
		return nil
	}
	entry.expiresAt = m.now().Add(effectiveTTL(ttl))
	m.items.Add(key, entry)
	return nil
}

// Len reports the number of entries currently held, expired or not.
func (m *MemoryBackend) Len() int {
	return m.items.Len()
}
