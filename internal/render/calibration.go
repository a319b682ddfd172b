package render

import (
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"liquefier/internal/rate"
)

// RenderCalibration writes a PNG scatter of the reference flow against the
// negated level sum, with the fitted line.
func RenderCalibration(path string, c *rate.Calibration, width, height int) error {
	if len(c.X) < 2 {
		return fmt.Errorf("calibration has %d points: %w", len(c.X), rate.ErrInsufficientSamples)
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	lo, hi := c.X[0], c.X[0]
	for _, x := range c.X {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	fitX := []float64{lo, hi}
	fitY := []float64{c.Fit.Intercept + c.Fit.Slope*lo, c.Fit.Intercept + c.Fit.Slope*hi}

	ch := chart.Chart{
		Title:      fmt.Sprintf("Slope = %.5f +/- %.5f, Intercept = %.5f +/- %.5f", c.Fit.Slope, c.Fit.SlopeErr, c.Fit.Intercept, c.Fit.InterceptErr),
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "-(sum of level rates) (Liquid L/h)"},
		YAxis:      chart.YAxis{Name: c.Reference + " (Liquid L/h)"},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    c.Reference,
				XValues: c.X,
				YValues: c.Y,
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    4,
					DotColor:    chart.GetDefaultColor(0),
				},
			},
			chart.ContinuousSeries{
				Name:    "fit",
				XValues: fitX,
				YValues: fitY,
				Style: chart.Style{
					StrokeWidth: 2,
					StrokeColor: drawing.ColorBlack,
				},
			},
		},
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	return WriteFileAtomic(path, func(w io.Writer) error {
		return ch.Render(chart.PNG, w)
	})
}
