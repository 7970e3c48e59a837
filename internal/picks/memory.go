package picks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/tailgame/internal/contracts"
)

// maxCyclesPerDay and maxCycleDays bound the in-memory cycle history
const (
	maxCyclesPerDay = 500
	maxCycleDays    = 7
)

type pickKey struct {
	date string
	kind contracts.PickKind
}

// MemoryStore is the Store used when PostgreSQL is disabled
type MemoryStore struct {
	mu     sync.RWMutex
	picks  map[pickKey]contracts.Pick
	cycles map[string][]contracts.CycleSummary
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		picks:  make(map[pickKey]contracts.Pick),
		cycles: make(map[string][]contracts.CycleSummary),
	}
}

// SavePick upserts a pick on (trade_date, kind)
func (m *MemoryStore) SavePick(_ context.Context, p *contracts.Pick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.picks[pickKey{p.TradeDate, p.Kind}] = *p
	return nil
}

// GetPick returns the pick of one kind for a trade date
func (m *MemoryStore) GetPick(_ context.Context, tradeDate string, kind contracts.PickKind) (*contracts.Pick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.picks[pickKey{tradeDate, kind}]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// ListPicks returns picks in [from, to], newest first
func (m *MemoryStore) ListPicks(_ context.Context, from, to string) ([]contracts.Pick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]contracts.Pick, 0)
	for k, p := range m.picks {
		if k.date >= from && k.date <= to {
			results = append(results, p)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].TradeDate != results[j].TradeDate {
			return results[i].TradeDate > results[j].TradeDate
		}
		return results[i].Kind > results[j].Kind
	})
	return results, nil
}

// DeletePicks removes every pick of a trade date
func (m *MemoryStore) DeletePicks(_ context.Context, tradeDate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.picks, pickKey{tradeDate, contracts.PickFirst})
	delete(m.picks, pickKey{tradeDate, contracts.PickFinal})
	return nil
}

// SaveCycle appends a cycle summary
func (m *MemoryStore) SaveCycle(_ context.Context, c *contracts.CycleSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cycles[c.TradeDate]; !ok {
		m.pruneCycles(c.TradeDate)
	}
	list := append(m.cycles[c.TradeDate], *c)
	if len(list) > maxCyclesPerDay {
		list = list[len(list)-maxCyclesPerDay:]
	}
	m.cycles[c.TradeDate] = list
	return nil
}

// pruneCycles keeps the newest maxCycleDays dates, newDate included
func (m *MemoryStore) pruneCycles(newDate string) {
	dates := make([]string, 0, len(m.cycles)+1)
	for d := range m.cycles {
		dates = append(dates, d)
	}
	dates = append(dates, newDate)
	if len(dates) <= maxCycleDays {
		return
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	for _, d := range dates[maxCycleDays:] {
		delete(m.cycles, d)
	}
}

// ListCycles returns the latest cycles of a trade date, newest first
func (m *MemoryStore) ListCycles(_ context.Context, tradeDate string, limit int) ([]contracts.CycleSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.cycles[tradeDate]
	results := make([]contracts.CycleSummary, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		if limit > 0 && len(results) >= limit {
			break
		}
		results = append(results, list[i])
	}
	return results, nil
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
