package core

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryStore is a TTL-aware, optionally size-bounded implementation of
// Memory. It backs both the route-optimization cache (bounded, short TTL)
// and the SLA action-suppression set (unbounded-ish, TTL only).
type MemoryStore struct {
	mu         sync.RWMutex
	store      map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int        // 0 means unbounded
	logger     Logger
	telemetry  Telemetry
}

type memoryEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// NewMemoryStore creates an unbounded TTL store.
func NewMemoryStore() *MemoryStore {
	return NewBoundedMemoryStore(0)
}

// NewBoundedMemoryStore creates a TTL store that evicts the least recently
// used entry once it holds maxEntries items. maxEntries <= 0 means
// unbounded.
func NewBoundedMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		store:      make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		logger:     &NoOpLogger{},
		telemetry:  &NoOpTelemetry{},
	}
}

// SetLogger configures the logger for this memory store, tagging it with
// component "core/memory" when the logger supports component tagging.
func (m *MemoryStore) SetLogger(logger Logger) {
	if logger == nil {
		m.logger = &NoOpLogger{}
		return
	}
	if cal, ok := logger.(ComponentAwareLogger); ok {
		m.logger = cal.WithComponent("core/memory")
		return
	}
	m.logger = logger
}

// SetTelemetry injects the Telemetry this store emits cache hit/miss/
// eviction counters to; nil resets it to NoOpTelemetry.
func (m *MemoryStore) SetTelemetry(t Telemetry) {
	if t == nil {
		t = &NoOpTelemetry{}
	}
	m.telemetry = t
}

func (m *MemoryStore) emit(counter string, labels ...string) {
	attrs := make(map[string]string, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs[labels[i]] = labels[i+1]
	}
	m.telemetry.RecordMetric(counter, 1.0, attrs)
}

// Get returns the value for key, or "" if absent or expired. A hit promotes
// the entry to most-recently-used.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.store[key]
	if !ok {
		m.emit("memory.cache.misses")
		return "", nil
	}
	entry := el.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.removeElement(el)
		m.emit("memory.cache.misses")
		m.emit("memory.evictions", "reason", "expired")
		return "", nil
	}
	m.order.MoveToFront(el)
	m.emit("memory.cache.hits")
	return entry.value, nil
}

// Set stores value under key with optional ttl (0 means no expiry),
// evicting the least recently used entry if maxEntries is exceeded.
func (m *MemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if el, ok := m.store[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		m.order.MoveToFront(el)
		m.emit("memory.operations", "operation", "set", "result", "update")
		return nil
	}

	entry := &memoryEntry{key: key, value: value, expiresAt: expiresAt}
	el := m.order.PushFront(entry)
	m.store[key] = el
	m.emit("memory.operations", "operation", "set", "result", "insert")

	if m.maxEntries > 0 {
		for len(m.store) > m.maxEntries {
			oldest := m.order.Back()
			if oldest == nil {
				break
			}
			m.removeElement(oldest)
			m.emit("memory.evictions", "reason", "capacity")
		}
	}
	return nil
}

// Delete removes key, a no-op if absent.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.store[key]; ok {
		m.removeElement(el)
		m.emit("memory.operations", "operation", "delete")
		m.emit("memory.evictions", "reason", "explicit_delete")
	}
	return nil
}

// Exists reports whether key is present and unexpired, without affecting
// recency order.
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	el, ok := m.store[key]
	if !ok {
		return false, nil
	}
	entry := el.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return true, nil
}

// Len returns the current number of live (possibly expired-but-unswept)
// entries, mainly for tests asserting eviction behavior.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

func (m *MemoryStore) removeElement(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	delete(m.store, entry.key)
	m.order.Remove(el)
}
