package store

import (
	"fmt"
	"sync"

	"stocksignal/models"
)

// MemoryStore keeps the watchlist in memory. Used by tests and as the
// fallback when no database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	order   []string
	symbols map[string]struct{}
}

func NewMemoryStore(seed ...string) *MemoryStore {
	m := &MemoryStore{symbols: make(map[string]struct{})}
	for _, s := range seed {
		m.Add(s)
	}
	return m
}

func (m *MemoryStore) Add(symbol string) error {
	symbol = models.NormalizeTicker(symbol)
	if symbol == "" {
		return fmt.Errorf("empty symbol")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.symbols[symbol]; ok {
		return nil
	}
	m.symbols[symbol] = struct{}{}
	m.order = append(m.order, symbol)
	return nil
}

func (m *MemoryStore) Remove(symbol string) error {
	symbol = models.NormalizeTicker(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.symbols[symbol]; !ok {
		return fmt.Errorf("%w: %s", ErrNotWatched, symbol)
	}
	delete(m.symbols, symbol)
	for i, s := range m.order {
		if s == symbol {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...), nil
}

func (m *MemoryStore) Close() error { return nil }
