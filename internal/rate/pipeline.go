package rate

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"liquefier/internal/frame"
	"liquefier/internal/loader"
	"liquefier/pkg/log"
)

const (
	SecondsPerHour = 3600
	MinutesPerHour = 60

	// DefaultMaxRows caps the rows handed to the chart.
	DefaultMaxRows = 1000
)

var ErrInsufficientSamples = errors.New("fewer than two samples")

// Result is a table of rates in liquid litres per hour and the production
// rate, which is their row-wise sum. Level rates are positive while a level
// rises and flow rates are added as they are, so production is
// sum(level rates) + sum(flow rates).
type Result struct {
	Rates *frame.Table
	// Uncertainties names the columns of Rates that hold standard errors.
	Uncertainties []string
	Production    []float64
	Start, End    int64
	Smoothing     Smoothing
}

func emptyResult(start, end int64, sm Smoothing) *Result {
	return &Result{Rates: frame.New(nil), Start: start, End: end, Smoothing: sm}
}

func (r *Result) Empty() bool {
	return r == nil || r.Rates == nil || r.Rates.Len() == 0
}

func (r *Result) Len() int {
	if r.Empty() {
		return 0
	}
	return r.Rates.Len()
}

// Last returns the timestamp of the newest row.
func (r *Result) Last() (int64, bool) {
	if r.Empty() {
		return 0, false
	}
	idx := r.Rates.Index()
	return idx[len(idx)-1], true
}

// RateColumns lists the columns that are rates, not uncertainties.
func (r *Result) RateColumns() []string {
	skip := make(map[string]bool, len(r.Uncertainties))
	for _, col := range r.Uncertainties {
		skip[col] = true
	}
	var cols []string
	for _, col := range r.Rates.Columns() {
		if !skip[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

func (r *Result) sum() {
	r.Production = r.Rates.RowSums(r.RateColumns()...)
}

// Downsample keeps every n-th row so that at most maxRows remain. Values are
// not changed.
func (r *Result) Downsample(maxRows int) {
	if maxRows <= 0 || r.Len() <= maxRows {
		return
	}
	step := (r.Len() + maxRows - 1) / maxRows
	r.Rates = r.Rates.Stride(step)
	prod := make([]float64, 0, r.Rates.Len())
	for i := 0; i < len(r.Production); i += step {
		prod = append(prod, r.Production[i])
	}
	r.Production = prod
}

// Options controls Compute. A zero Start and End keeps every row.
type Options struct {
	Smoothing  Smoothing
	MaxRows    int
	Start, End int64
}

// Compute turns aligned level and flow readings into rates. The tables hold
// raw instrument readings keyed by channel column.
func Compute(chs ChannelSet, levels, flows *frame.Table, opts Options) (*Result, error) {
	lv := frame.New(levels.Index())
	for _, ch := range chs.Levels {
		if vals := levels.Column(ch.Column); vals != nil {
			_ = lv.SetColumn(ch.Column, vals)
			lv.Scale(ch.Column, ch.Factor)
		}
	}
	fl := frame.New(flows.Index())
	div := chs.flowDivisor()
	for _, ch := range chs.Flows {
		if vals := flows.Column(ch.Column); vals != nil {
			_ = fl.SetColumn(ch.Column, vals)
			fl.Scale(ch.Column, 1/div)
		}
	}

	lv, err := opts.Smoothing.Apply(lv)
	if err != nil {
		return nil, fmt.Errorf("smooth levels: %w", err)
	}
	fl, err = opts.Smoothing.Apply(fl)
	if err != nil {
		return nil, fmt.Errorf("smooth flows: %w", err)
	}

	if len(lv.Columns()) > 0 {
		lv, err = Differentiate(lv)
		if errors.Is(err, ErrInsufficientSamples) {
			return emptyResult(opts.Start, opts.End, opts.Smoothing), nil
		}
		if err != nil {
			return nil, err
		}
	} else {
		lv = frame.New(nil)
	}
	if len(fl.Columns()) == 0 {
		fl = frame.New(nil)
	}
	for _, col := range lv.Columns() {
		lv.Scale(col, SecondsPerHour)
	}
	for _, col := range fl.Columns() {
		fl.Scale(col, MinutesPerHour)
	}

	rates := frame.OuterJoin(lv, fl)
	rates.Interpolate()
	rates = rates.DropNA()

	applyCorrections(chs, rates)
	rates.Rename(chs.labels())

	if opts.End > opts.Start {
		rates = rates.Between(opts.Start, opts.End)
	}

	res := &Result{
		Rates:     rates,
		Start:     opts.Start,
		End:       opts.End,
		Smoothing: opts.Smoothing,
	}
	res.sum()
	res.Downsample(opts.MaxRows)
	return res, nil
}

func applyCorrections(chs ChannelSet, rates *frame.Table) {
	for _, group := range [][]Channel{chs.Levels, chs.Flows} {
		for _, ch := range group {
			rates.Apply(ch.Column, ch.Correction.Apply)
		}
	}
}

// Differentiate replaces every column by its first difference divided by the
// time step, in units per second. The first row has no difference and is
// dropped.
func Differentiate(t *frame.Table) (*frame.Table, error) {
	n := t.Len()
	if n < 2 {
		return nil, ErrInsufficientSamples
	}
	idx := t.Index()
	out := frame.New(idx[1:])
	for _, col := range t.Columns() {
		vals := t.Column(col)
		d := make([]float64, n-1)
		for i := 1; i < n; i++ {
			dt := float64(idx[i] - idx[i-1])
			if dt <= 0 {
				d[i-1] = math.NaN()
				continue
			}
			d[i-1] = (vals[i] - vals[i-1]) / dt
		}
		if err := out.SetColumn(col, d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Pipeline loads readings for a time range and computes the rates.
type Pipeline struct {
	channels ChannelSet
	loader   *loader.Loader
	maxRows  int
	logger   *logrus.Entry
}

func NewPipeline(chs ChannelSet, ld *loader.Loader, maxRows int) *Pipeline {
	if maxRows == 0 {
		maxRows = DefaultMaxRows
	}
	return &Pipeline{
		channels: chs,
		loader:   ld,
		maxRows:  maxRows,
		logger:   log.Component("pipeline"),
	}
}

// Padding is how far the load range is widened on each side so that the
// first and last requested samples get a full smoothing window and a
// difference.
func Padding(sm Smoothing) int64 {
	return sm.Reach() + loader.GridStep
}

// Run computes rates for [start, end).
func (p *Pipeline) Run(ctx context.Context, start, end int64, sm Smoothing) (*Result, error) {
	if end <= start {
		return nil, fmt.Errorf("empty time range [%d, %d)", start, end)
	}
	pad := Padding(sm)
	levels, err := p.loader.Load(ctx, p.channels.LevelSpecs(), start-pad, end+pad)
	if err != nil {
		return nil, fmt.Errorf("load levels: %w", err)
	}
	flows, err := p.loader.Load(ctx, p.channels.FlowSpecs(), start-pad, end+pad)
	if err != nil {
		return nil, fmt.Errorf("load flows: %w", err)
	}
	p.logger.Debugf("loaded %d level rows and %d flow rows", levels.Len(), flows.Len())

	res, err := Compute(p.channels, levels, flows, Options{
		Smoothing: sm,
		MaxRows:   p.maxRows,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, err
	}
	p.logger.Infof("computed %d rate rows for [%d, %d) with smoothing %s", res.Len(), start, end, sm)
	return res, nil
}
