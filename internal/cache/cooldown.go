package cache

import (
	"sync"
	"time"
)

// CooldownStore tracks the earliest instant a key may be acted on again.
// Allow must check and reserve in one step so concurrent callers cannot both pass.
type CooldownStore interface {
	Allow(key string, now time.Time, interval time.Duration) bool
	Extend(key string, until time.Time)
	NextAllowed(key string) (time.Time, bool)
	Prune(before time.Time) int
	Reset(key string)
}

// MemoryCooldown is a process-local CooldownStore.
type MemoryCooldown struct {
	mu   sync.Mutex
	next map[string]time.Time
}

func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{next: make(map[string]time.Time)}
}

func (m *MemoryCooldown) Allow(key string, now time.Time, interval time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if until, ok := m.next[key]; ok && now.Before(until) {
		return false
	}
	m.next[key] = now.Add(interval)
	return true
}

// Extend never moves the next allowed instant backwards.
func (m *MemoryCooldown) Extend(key string, until time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.next[key]; ok && !until.After(cur) {
		return
	}
	m.next[key] = until
}

func (m *MemoryCooldown) NextAllowed(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.next[key]
	return t, ok
}

// Prune drops entries whose window closed before the given instant.
func (m *MemoryCooldown) Prune(before time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, until := range m.next {
		if until.Before(before) {
			delete(m.next, k)
			n++
		}
	}
	return n
}

func (m *MemoryCooldown) Reset(key string) {
	m.mu.Lock()
	delete(m.next, key)
	m.mu.Unlock()
}

func (m *MemoryCooldown) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.next)
}
