// Package loader fetches channel readings and aligns them on a common
// timestamp grid.
package loader

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"liquefier/internal/frame"
	"liquefier/internal/history"
	"liquefier/pkg/log"
)

// GridStep is the sampling grid in seconds every reading is floored onto.
const GridStep int64 = 10

// Spec names the columns to read from one history table.
type Spec struct {
	Table   string
	Columns []string
}

type Loader struct {
	store  history.Store
	logger *logrus.Entry
}

func New(store history.Store) *Loader {
	return &Loader{
		store:  store,
		logger: log.Component("loader"),
	}
}

// Quantize floors an epoch time onto the sampling grid.
func Quantize(t float64) int64 {
	return int64(math.Floor(t/float64(GridStep))) * GridStep
}

// Load reads every spec over [start, end) and returns one aligned table with
// strictly increasing timestamps and no missing value. An empty range gives
// an empty table.
func (l *Loader) Load(ctx context.Context, specs []Spec, start, end int64) (*frame.Table, error) {
	tables := make([]*frame.Table, 0, len(specs))
	for _, spec := range specs {
		res, err := l.store.Query(ctx, spec.Table, spec.Columns, start, end)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", spec.Table, err)
		}
		tb := align(res)
		for _, col := range tb.DropEmptyColumns() {
			l.logger.Infof("column %s has no data in range, dropped", col)
		}
		for _, col := range spec.Columns {
			if !tb.Has(col) {
				l.logger.Debugf("column %s not returned by %s", col, spec.Table)
			}
		}
		tables = append(tables, tb)
	}

	merged := frame.OuterJoin(tables...)
	merged.Interpolate()
	out := merged.DropNA()
	l.logger.Debugf("loaded %d rows, %d columns for [%d, %d)", out.Len(), len(out.Columns()), start, end)
	return out, nil
}

// align floors the sample times onto the grid and keeps the first sample of
// every grid step.
func align(res *history.Result) *frame.Table {
	if res == nil || res.Len() == 0 {
		cols := []string(nil)
		if res != nil {
			cols = res.Columns
		}
		return frame.New(nil, cols...)
	}

	order := make([]int, res.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return res.Times[order[a]] < res.Times[order[b]] })

	index := make([]int64, 0, len(order))
	rows := make([]int, 0, len(order))
	for _, i := range order {
		ts := Quantize(res.Times[i])
		if n := len(index); n > 0 && index[n-1] == ts {
			continue
		}
		index = append(index, ts)
		rows = append(rows, i)
	}

	tb := frame.New(index)
	for c, col := range res.Columns {
		vals := make([]float64, len(rows))
		for j, i := range rows {
			vals[j] = res.Values[c][i]
		}
		_ = tb.SetColumn(col, vals)
	}
	return tb
}
