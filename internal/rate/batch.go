package rate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"liquefier/internal/frame"
)

// UncertaintyPrefix marks the standard error column of a rate column.
const UncertaintyPrefix = "d"

type BatchOptions struct {
	// Window is the window length in seconds.
	Window int64
	// Correct applies the channel corrections to the rates. Uncertainties are
	// never corrected.
	Correct bool
}

// Estimate is a rate and its standard error.
type Estimate struct {
	Value  float64
	StdErr float64
}

// LevelRate fits value against time by least squares and returns the slope in
// units per hour.
func LevelRate(times []int64, vals []float64) Estimate {
	fit, err := FitLine(secondsFrom(times), vals)
	if err != nil {
		return Estimate{Value: math.NaN(), StdErr: math.NaN()}
	}
	return Estimate{Value: fit.Slope * SecondsPerHour, StdErr: fit.SlopeErr * SecondsPerHour}
}

// FlowRate averages flow readings in units per minute and returns units per
// hour with the sample standard deviation as uncertainty.
func FlowRate(vals []float64) Estimate {
	switch len(vals) {
	case 0:
		return Estimate{Value: math.NaN(), StdErr: math.NaN()}
	case 1:
		return Estimate{Value: vals[0] * MinutesPerHour, StdErr: math.NaN()}
	}
	mean, std := stat.MeanStdDev(vals, nil)
	return Estimate{Value: mean * MinutesPerHour, StdErr: std * MinutesPerHour}
}

func secondsFrom(times []int64) []float64 {
	x := make([]float64, len(times))
	if len(times) == 0 {
		return x
	}
	for i, t := range times {
		x[i] = float64(t - times[0])
	}
	return x
}

// EstimateWindows splits the level readings into consecutive windows
// [t, t+Window) starting at the first level timestamp and returns one row per
// window, labelled by the mean level timestamp of the window. A trailing window
// that would end after the last level timestamp is not computed. Tables hold
// raw readings keyed by channel column.
func EstimateWindows(chs ChannelSet, levels, flows *frame.Table, opts BatchOptions) (*Result, error) {
	if opts.Window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d s", opts.Window)
	}

	var lvCols, flCols []Channel
	for _, ch := range chs.Levels {
		if levels.Has(ch.Column) {
			lvCols = append(lvCols, ch)
		}
	}
	for _, ch := range chs.Flows {
		if flows.Has(ch.Column) {
			flCols = append(flCols, ch)
		}
	}

	idx := levels.Index()
	if len(idx) == 0 {
		return emptyResult(0, 0, Smoothing{}), nil
	}
	first, last := idx[0], idx[len(idx)-1]

	var labels []int64
	values := make(map[string][]float64)
	errs := make(map[string][]float64)
	div := chs.flowDivisor()

	for start, stop := first, first+opts.Window; stop <= last; start, stop = stop, stop+opts.Window {
		lw := levels.Between(start, stop)
		fw := flows.Between(start, stop)
		if lw.Len() == 0 {
			continue
		}
		labels = append(labels, meanTime(lw.Index()))

		for _, ch := range lvCols {
			vals := scaled(lw.Column(ch.Column), ch.Factor)
			e := LevelRate(lw.Index(), vals)
			values[ch.Column] = append(values[ch.Column], e.Value)
			errs[ch.Column] = append(errs[ch.Column], e.StdErr)
		}
		for _, ch := range flCols {
			e := FlowRate(scaled(fw.Column(ch.Column), 1/div))
			values[ch.Column] = append(values[ch.Column], e.Value)
			errs[ch.Column] = append(errs[ch.Column], e.StdErr)
		}
	}

	res := &Result{Rates: frame.New(labels), Start: first, End: last}
	for _, group := range [][]Channel{lvCols, flCols} {
		for _, ch := range group {
			vals := values[ch.Column]
			if opts.Correct {
				for i, v := range vals {
					vals[i] = ch.Correction.Apply(v)
				}
			}
			if err := res.Rates.SetColumn(ch.Name(), vals); err != nil {
				return nil, err
			}
			dcol := UncertaintyPrefix + ch.Name()
			if err := res.Rates.SetColumn(dcol, errs[ch.Column]); err != nil {
				return nil, err
			}
			res.Uncertainties = append(res.Uncertainties, dcol)
		}
	}
	res.sum()
	return res, nil
}

func scaled(vals []float64, factor float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = v * factor
	}
	return out
}

func meanTime(times []int64) int64 {
	var sum float64
	for _, t := range times {
		sum += float64(t)
	}
	return int64(math.Round(sum / float64(len(times))))
}

// LinearFit is y = Slope*x + Intercept with standard errors.
type LinearFit struct {
	Slope        float64
	Intercept    float64
	SlopeErr     float64
	InterceptErr float64
	N            int
}

// FitLine fits y against x by ordinary least squares. Two points give an
// exact line with zero error.
func FitLine(x, y []float64) (LinearFit, error) {
	n := len(x)
	if n != len(y) {
		return LinearFit{}, fmt.Errorf("x has %d values, y has %d", n, len(y))
	}
	if n < 2 {
		return LinearFit{}, ErrInsufficientSamples
	}
	xMean := stat.Mean(x, nil)
	var sxx float64
	for _, v := range x {
		sxx += (v - xMean) * (v - xMean)
	}
	if sxx == 0 {
		return LinearFit{}, errors.New("x values are all equal")
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	fit := LinearFit{Slope: beta, Intercept: alpha, N: n}
	if n == 2 {
		return fit, nil
	}

	var ssr float64
	for i := range x {
		r := y[i] - (alpha + beta*x[i])
		ssr += r * r
	}
	s2 := ssr / float64(n-2)
	fit.SlopeErr = math.Sqrt(s2 / sxx)
	fit.InterceptErr = math.Sqrt(s2 * (1/float64(n) + xMean*xMean/sxx))
	return fit, nil
}
