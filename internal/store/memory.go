package store

import (
	"sync"
	"time"

	"InvestTrack/internal/model"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory Store used in tests and when no database
// path is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]model.PriceCacheEntry
	history []model.PriceHistoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]model.PriceCacheEntry)}
}

func (m *MemoryStore) Get(symbol string) (*model.PriceCacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[symbol]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MemoryStore) Upsert(symbol string, price decimal.Decimal, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[symbol] = model.PriceCacheEntry{
		Symbol:      symbol,
		Price:       price,
		Source:      source,
		LastUpdated: time.Now(),
	}
	return nil
}

func (m *MemoryStore) AppendHistory(symbol string, price decimal.Decimal, source string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, model.PriceHistoryEntry{
		Symbol: symbol, Price: price, Source: source, Timestamp: ts,
	})
	return nil
}

func (m *MemoryStore) ListAll() ([]model.PriceCacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.PriceCacheEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStore) DeleteAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]model.PriceCacheEntry)
	return nil
}

func (m *MemoryStore) DeleteWhere(symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range symbols {
		delete(m.entries, s)
	}
	return nil
}

func (m *MemoryStore) Stats() (model.CacheStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := model.CacheStats{Entries: len(m.entries)}
	for _, e := range m.entries {
		if stats.OldestUpdate.IsZero() || e.LastUpdated.Before(stats.OldestUpdate) {
			stats.OldestUpdate = e.LastUpdated
		}
		if e.LastUpdated.After(stats.NewestUpdate) {
			stats.NewestUpdate = e.LastUpdated
		}
	}
	return stats, nil
}

// Put stores an entry verbatim, timestamp included (test helper).
func (m *MemoryStore) Put(e model.PriceCacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Symbol] = e
}

// History returns a copy of the appended history log (test helper).
func (m *MemoryStore) History() []model.PriceHistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.PriceHistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

func (m *MemoryStore) Close() error { return nil }
