package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dosewise/rxlens/pkg/types/rx"
)

type memoryEntry struct {
	result    *rx.AnalysisResult
	expiresAt time.Time
}

// Memory is the in-process cache tier.  Expiry is lazy on read plus a
// periodic sweep; when the entry count exceeds maxEntries a sweep runs
// inline and, if still over, the soonest-expiring entries are dropped.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	clock      Clock
	maxEntries int
}

// NewMemory constructs the memory tier.  A nil clock means wall time.
func NewMemory(maxEntries int, clock Clock) *Memory {
	if clock == nil {
		clock = RealClock()
	}
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &Memory{
		entries:    make(map[string]memoryEntry),
		clock:      clock,
		maxEntries: maxEntries,
	}
}

func (m *Memory) Get(_ context.Context, key string) (*rx.AnalysisResult, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !m.clock.Now().Before(entry.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; the entry may have been replaced.
		if current, still := m.entries[key]; still && !m.clock.Now().Before(current.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.result, true, nil
}

func (m *Memory) Set(_ context.Context, key string, result *rx.AnalysisResult, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{result: result, expiresAt: m.clock.Now().Add(ttl)}
	if len(m.entries) > m.maxEntries {
		m.evictLocked()
	}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len reports the current entry count.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep removes expired entries and reports how many were dropped.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

// RunSweeper sweeps at the given interval until ctx is cancelled.  Start it
// from main; it is not required for correctness, only to bound memory held
// by keys that are never read again.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Memory) sweepLocked() int {
	now := m.clock.Now()
	dropped := 0
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			dropped++
		}
	}
	return dropped
}

// evictLocked drops expired entries first, then the soonest-expiring ones
// until the count is back under the cap.
func (m *Memory) evictLocked() {
	m.sweepLocked()
	for len(m.entries) > m.maxEntries {
		var oldestKey string
		var oldest time.Time
		for key, entry := range m.entries {
			if oldestKey == "" || entry.expiresAt.Before(oldest) {
				oldestKey, oldest = key, entry.expiresAt
			}
		}
		delete(m.entries, oldestKey)
	}
}
