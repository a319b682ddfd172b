package rate

import (
	"fmt"
	"math"
)

// Calibration compares a reference flow channel against the summed level
// rates of a period in which the liquid only moves between the measured
// vessels: flow ≈ Slope·(−Σ level rates) + Intercept.
type Calibration struct {
	Reference string
	Levels    []string
	Fit       LinearFit
	// X is −Σ level rates and Y the reference rate for every window used.
	X, Y []float64
}

// Calibrate fits the reference column of a batch result against the negated
// sum of the level columns. Names may be channel columns or labels. Windows
// with a missing value are skipped.
func Calibrate(chs ChannelSet, batch *Result, reference string, levels []string) (*Calibration, error) {
	if batch.Empty() {
		return nil, ErrInsufficientSamples
	}
	refCol, err := resultColumn(chs, batch, reference)
	if err != nil {
		return nil, err
	}
	lvCols := make([]string, 0, len(levels))
	for _, name := range levels {
		col, err := resultColumn(chs, batch, name)
		if err != nil {
			return nil, err
		}
		lvCols = append(lvCols, col)
	}
	if len(lvCols) == 0 {
		return nil, fmt.Errorf("no level channels to calibrate against")
	}

	ref := batch.Rates.Column(refCol)
	sum := batch.Rates.RowSums(lvCols...)
	c := &Calibration{Reference: refCol, Levels: lvCols}
	for i := range ref {
		if math.IsNaN(ref[i]) || math.IsNaN(sum[i]) {
			continue
		}
		c.X = append(c.X, -sum[i])
		c.Y = append(c.Y, ref[i])
	}

	c.Fit, err = FitLine(c.X, c.Y)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", refCol, err)
	}
	return c, nil
}

func resultColumn(chs ChannelSet, res *Result, name string) (string, error) {
	if res.Rates.Has(name) {
		return name, nil
	}
	if ch, ok := chs.Lookup(name); ok && res.Rates.Has(ch.Name()) {
		return ch.Name(), nil
	}
	return "", fmt.Errorf("channel %s not in result", name)
}

func (c *Calibration) String() string {
	return fmt.Sprintf("Slope = %.5f +/- %.5f\nIntercept = %.5f +/- %.5f",
		c.Fit.Slope, c.Fit.SlopeErr, c.Fit.Intercept, c.Fit.InterceptErr)
}
