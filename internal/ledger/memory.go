package ledger

import (
	"context"
	"sync"
)

// Memory is an in-process ledger for tests and local tooling.
type Memory struct {
	mu         sync.Mutex
	totals     Totals
	popularity map[int64]int64
}

func NewMemory() *Memory {
	return &Memory{popularity: make(map[int64]int64)}
}

func (m *Memory) RecordGeneration(ctx context.Context, styleID int64, apiCalls int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals.Generations++
	m.totals.APICalls += int64(apiCalls)
	m.popularity[styleID]++
	return nil
}

func (m *Memory) RecordBooking(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals.Bookings++
	return nil
}

func (m *Memory) Totals(ctx context.Context) (Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.totals, nil
}

func (m *Memory) Popularity(ctx context.Context) (map[int64]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int64]int64, len(m.popularity))
	for k, v := range m.popularity {
		out[k] = v
	}
	return out, nil
}
