package history

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

type memTable struct {
	times   []float64
	columns map[string][]float64
}

// MemStore keeps samples in memory. It backs tests and dry runs.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[string]*memTable)}
}

// Put appends rows to table. Every column must have one value per time;
// columns not given for these rows are NULL.
func (m *MemStore) Put(table string, times []float64, columns map[string][]float64) error {
	for col, vals := range columns {
		if len(vals) != len(times) {
			return fmt.Errorf("column %s has %d values for %d times", col, len(vals), len(times))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		t = &memTable{columns: make(map[string][]float64)}
		m.tables[table] = t
	}
	before := len(t.times)
	t.times = append(t.times, times...)
	for col, vals := range t.columns {
		if _, given := columns[col]; !given {
			for range times {
				vals = append(vals, math.NaN())
			}
			t.columns[col] = vals
		}
	}
	for col, vals := range columns {
		existing, ok := t.columns[col]
		if !ok {
			existing = make([]float64, before, before+len(vals))
			for i := range existing {
				existing[i] = math.NaN()
			}
		}
		t.columns[col] = append(existing, vals...)
	}
	return nil
}

func (m *MemStore) Query(ctx context.Context, table string, columns []string, start, end int64) (*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("table %s not found", table)
	}

	present := make([]string, 0, len(columns))
	for _, col := range columns {
		if _, ok := t.columns[col]; ok {
			present = append(present, col)
		}
	}

	rows := make([]int, 0, len(t.times))
	for i, ts := range t.times {
		if ts >= float64(start) && ts < float64(end) {
			rows = append(rows, i)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool { return t.times[rows[a]] < t.times[rows[b]] })

	res := newResult(present, len(rows))
	for _, i := range rows {
		res.Times = append(res.Times, t.times[i])
		for c, col := range present {
			res.Values[c] = append(res.Values[c], t.columns[col][i])
		}
	}
	return res, nil
}
