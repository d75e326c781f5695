package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

// Memory is an in-process Store with the same semantics as Postgres.
// Used in tests and for running the monitor without a database.
type Memory struct {
	mu   sync.RWMutex
	byID map[string]model.TransactionRecord
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]model.TransactionRecord)}
}

func (m *Memory) Close() {}

func (m *Memory) InsertIfAbsent(_ context.Context, rec model.TransactionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[rec.Hash]; ok {
		return false, nil
	}
	m.byID[rec.Hash] = rec
	return true, nil
}

// snapshot returns all records newest-first.
func (m *Memory) snapshot() []model.TransactionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.TransactionRecord, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (m *Memory) filtered(limit int, keep func(model.TransactionRecord) bool) []model.TransactionRecord {
	limit = clampLimit(limit)
	var out []model.TransactionRecord
	for _, r := range m.snapshot() {
		if !keep(r) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (m *Memory) List(_ context.Context, limit, offset int) ([]model.TransactionRecord, error) {
	all := m.snapshot()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	limit = clampLimit(limit)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *Memory) Swaps(_ context.Context, limit int) ([]model.TransactionRecord, error) {
	return m.filtered(limit, func(r model.TransactionRecord) bool { return r.Swap }), nil
}

func (m *Memory) ByPosition(_ context.Context, pos model.PositionType, limit int) ([]model.TransactionRecord, error) {
	return m.filtered(limit, func(r model.TransactionRecord) bool { return r.PositionType == pos }), nil
}

func (m *Memory) BySender(_ context.Context, sender string, limit int) ([]model.TransactionRecord, error) {
	return m.filtered(limit, func(r model.TransactionRecord) bool {
		return strings.EqualFold(r.Sender, sender)
	}), nil
}

func (m *Memory) HighValue(_ context.Context, minUSD float64, limit int) ([]model.TransactionRecord, error) {
	return m.filtered(limit, func(r model.TransactionRecord) bool { return r.USDValue >= minUSD }), nil
}

func (m *Memory) ByDateRange(_ context.Context, from, to time.Time, limit int) ([]model.TransactionRecord, error) {
	return m.filtered(limit, func(r model.TransactionRecord) bool {
		return !r.Timestamp.Before(from) && !r.Timestamp.After(to)
	}), nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Stats
	for _, r := range m.byID {
		s.Total++
		s.TotalUSDValue += r.USDValue
		if r.Swap {
			s.Swaps++
			s.TotalSwapValue += r.SwapValue
		}
		switch r.PositionType {
		case model.PositionLong:
			s.LongPositions++
		case model.PositionShort:
			s.ShortPositions++
		}
	}
	return s, nil
}
