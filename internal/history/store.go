// Package history reads raw sensor samples from the facility history store.
package history

import (
	"context"
	"math"
)

const DefaultTimeColumn = "epoch_time"

// Result holds the samples of one table. Values[i] belongs to Columns[i] and
// is aligned with Times; NULL readings are NaN. Columns the source does not
// have are left out.
type Result struct {
	Columns []string
	Times   []float64
	Values  [][]float64
}

func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Times)
}

// Store runs range queries over [start, end) in epoch seconds.
type Store interface {
	Query(ctx context.Context, table string, columns []string, start, end int64) (*Result, error)
}

func newResult(columns []string, rows int) *Result {
	r := &Result{
		Columns: append([]string(nil), columns...),
		Times:   make([]float64, 0, rows),
		Values:  make([][]float64, len(columns)),
	}
	for i := range r.Values {
		r.Values[i] = make([]float64, 0, rows)
	}
	return r
}

// dropMissing removes the columns that never had a reading.
func (r *Result) dropMissing() {
	keepCols := r.Columns[:0]
	keepVals := r.Values[:0]
	for i, col := range r.Columns {
		for _, v := range r.Values[i] {
			if !math.IsNaN(v) {
				keepCols = append(keepCols, col)
				keepVals = append(keepVals, r.Values[i])
				break
			}
		}
	}
	r.Columns = keepCols
	r.Values = keepVals
}
