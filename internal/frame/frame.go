// Package frame holds the time-indexed table shared by the loader and the
// rate computations. Missing values are stored as NaN and are never replaced
// by zero.
package frame

import (
	"fmt"
	"math"
	"sort"
)

// Table is a set of named float columns over an index of epoch seconds.
type Table struct {
	index   []int64
	columns []string
	values  map[string][]float64
}

// New returns a table over index whose columns are all missing.
func New(index []int64, columns ...string) *Table {
	t := &Table{
		index:   append([]int64(nil), index...),
		columns: make([]string, 0, len(columns)),
		values:  make(map[string][]float64, len(columns)),
	}
	for _, col := range columns {
		if _, ok := t.values[col]; ok {
			continue
		}
		t.columns = append(t.columns, col)
		t.values[col] = nanSlice(len(index))
	}
	return t
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func (t *Table) Len() int {
	return len(t.index)
}

// Index returns the timestamps. The slice must not be modified.
func (t *Table) Index() []int64 {
	return t.index
}

// Columns returns a copy of the column names in insertion order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t *Table) Has(col string) bool {
	_, ok := t.values[col]
	return ok
}

// Column returns the values of col, or nil if the table has no such column.
// The slice must not be modified.
func (t *Table) Column(col string) []float64 {
	return t.values[col]
}

// SetColumn replaces or appends a column.
func (t *Table) SetColumn(col string, vals []float64) error {
	if len(vals) != len(t.index) {
		return fmt.Errorf("column %s has %d values, table has %d rows", col, len(vals), len(t.index))
	}
	if _, ok := t.values[col]; !ok {
		t.columns = append(t.columns, col)
	}
	t.values[col] = append([]float64(nil), vals...)
	return nil
}

// DropColumn removes col if present.
func (t *Table) DropColumn(col string) {
	if _, ok := t.values[col]; !ok {
		return
	}
	delete(t.values, col)
	for i, c := range t.columns {
		if c == col {
			t.columns = append(t.columns[:i], t.columns[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := &Table{
		index:   append([]int64(nil), t.index...),
		columns: append([]string(nil), t.columns...),
		values:  make(map[string][]float64, len(t.values)),
	}
	for col, vals := range t.values {
		c.values[col] = append([]float64(nil), vals...)
	}
	return c
}

// Select returns a copy restricted to the given columns, in that order.
// Columns the table does not have are skipped.
func (t *Table) Select(cols ...string) *Table {
	s := New(t.index)
	for _, col := range cols {
		if vals, ok := t.values[col]; ok {
			_ = s.SetColumn(col, vals)
		}
	}
	return s
}

// Rename renames columns in place. Names without an entry keep their name,
// and a rename onto an existing column is skipped.
func (t *Table) Rename(names map[string]string) {
	for i, col := range t.columns {
		to, ok := names[col]
		if !ok || to == col {
			continue
		}
		if _, taken := t.values[to]; taken {
			continue
		}
		t.values[to] = t.values[col]
		delete(t.values, col)
		t.columns[i] = to
	}
}

// Apply replaces every value of col with fn(value).
func (t *Table) Apply(col string, fn func(float64) float64) {
	vals, ok := t.values[col]
	if !ok {
		return
	}
	for i, v := range vals {
		vals[i] = fn(v)
	}
}

func (t *Table) Scale(col string, factor float64) {
	t.Apply(col, func(v float64) float64 { return v * factor })
}

// DropEmptyColumns removes columns without a single value and returns their names.
func (t *Table) DropEmptyColumns() []string {
	var dropped []string
	for _, col := range t.Columns() {
		empty := true
		for _, v := range t.values[col] {
			if !math.IsNaN(v) {
				empty = false
				break
			}
		}
		if empty {
			t.DropColumn(col)
			dropped = append(dropped, col)
		}
	}
	return dropped
}

// DropNA returns a copy without the rows that miss a value in any column.
func (t *Table) DropNA() *Table {
	keep := make([]int, 0, len(t.index))
	for i := range t.index {
		complete := true
		for _, col := range t.columns {
			if math.IsNaN(t.values[col][i]) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}
	return t.rows(keep)
}

func (t *Table) rows(keep []int) *Table {
	r := &Table{
		index:   make([]int64, len(keep)),
		columns: append([]string(nil), t.columns...),
		values:  make(map[string][]float64, len(t.values)),
	}
	for j, i := range keep {
		r.index[j] = t.index[i]
	}
	for col, vals := range t.values {
		out := make([]float64, len(keep))
		for j, i := range keep {
			out[j] = vals[i]
		}
		r.values[col] = out
	}
	return r
}

// Between returns the rows with start <= timestamp < end.
func (t *Table) Between(start, end int64) *Table {
	lo := sort.Search(len(t.index), func(i int) bool { return t.index[i] >= start })
	hi := sort.Search(len(t.index), func(i int) bool { return t.index[i] >= end })
	if hi < lo {
		hi = lo
	}
	keep := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		keep = append(keep, i)
	}
	return t.rows(keep)
}

// Stride keeps every step-th row starting with the first one.
func (t *Table) Stride(step int) *Table {
	if step <= 1 {
		return t.Clone()
	}
	keep := make([]int, 0, len(t.index)/step+1)
	for i := 0; i < len(t.index); i += step {
		keep = append(keep, i)
	}
	return t.rows(keep)
}

// Interpolate fills interior gaps of every column linearly in time. Leading
// and trailing gaps stay missing.
func (t *Table) Interpolate() {
	for _, col := range t.columns {
		interpolate(t.index, t.values[col])
	}
}

func interpolate(index []int64, vals []float64) {
	prev := -1
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			x0, x1 := float64(index[prev]), float64(index[i])
			y0, y1 := vals[prev], v
			for j := prev + 1; j < i; j++ {
				vals[j] = y0 + (y1-y0)*(float64(index[j])-x0)/(x1-x0)
			}
		}
		prev = i
	}
}

// RowSums adds the given columns row by row. A missing value makes the sum
// missing.
func (t *Table) RowSums(cols ...string) []float64 {
	sums := make([]float64, len(t.index))
	for _, col := range cols {
		vals, ok := t.values[col]
		if !ok {
			continue
		}
		for i, v := range vals {
			sums[i] += v
		}
	}
	return sums
}

// OuterJoin merges tables on the union of their timestamps. Rows a table has
// no value for are missing. When two tables share a column name the first
// one wins.
func OuterJoin(tables ...*Table) *Table {
	seen := make(map[int64]struct{})
	var index []int64
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, ts := range t.index {
			if _, ok := seen[ts]; ok {
				continue
			}
			seen[ts] = struct{}{}
			index = append(index, ts)
		}
	}
	sort.Slice(index, func(i, j int) bool { return index[i] < index[j] })

	pos := make(map[int64]int, len(index))
	for i, ts := range index {
		pos[ts] = i
	}

	out := New(index)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, col := range t.columns {
			if out.Has(col) {
				continue
			}
			vals := nanSlice(len(index))
			for i, ts := range t.index {
				vals[pos[ts]] = t.values[col][i]
			}
			out.columns = append(out.columns, col)
			out.values[col] = vals
		}
	}
	return out
}
