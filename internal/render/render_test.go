package render

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquefier/internal/frame"
	"liquefier/internal/rate"
)

type recordingPublisher struct {
	paths []string
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, localPath string) error {
	p.paths = append(p.paths, localPath)
	return p.err
}

func result(t *testing.T, n int) *rate.Result {
	idx := make([]int64, n)
	lvl := make([]float64, n)
	flow := make([]float64, n)
	prod := make([]float64, n)
	for i := range idx {
		idx[i] = 1700000000 + int64(i)*10
		lvl[i] = float64(i)
		flow[i] = 60
		prod[i] = lvl[i] + flow[i]
	}
	tb := frame.New(idx)
	require.NoError(t, tb.SetColumn("4K Pot Level (lvl203)", lvl))
	require.NoError(t, tb.SetColumn("TL Return Flow (fm206)", flow))
	return &rate.Result{
		Rates:      tb,
		Production: prod,
		Start:      idx[0],
		End:        idx[n-1] + 10,
		Smoothing:  rate.GaussianSigma(30),
	}
}

func TestRenderWritesChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "liquid_prod_rate_fig.html")
	pub := &recordingPublisher{}
	r := New(path, WithLocation(time.UTC), WithPublisher(pub))

	require.NoError(t, r.Render(context.Background(), result(t, 50)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, "<svg")
	assert.Contains(t, doc, ProductionName)
	assert.Contains(t, doc, "4K Pot Level (lvl203)")
	assert.Contains(t, doc, "Gaussian filter smoothing σ: 5 min")
	assert.Equal(t, []string{path}, pub.paths)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRenderEmptyResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.html")
	r := New(path, WithLocation(time.UTC))

	res := &rate.Result{Rates: frame.New(nil), Start: 1700000000, End: 1700003600}
	require.NoError(t, r.Render(context.Background(), res))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "<svg")
	assert.Contains(t, string(data), "No liquefier data between Nov 14 22:13 and Nov 14 23:13")
}

func TestRenderPublishError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.html")
	pub := &recordingPublisher{err: errors.New("bucket gone")}

	err := New(path, WithPublisher(pub)).Render(context.Background(), result(t, 5))
	require.ErrorIs(t, err, pub.err)
	assert.FileExists(t, path)
}

func TestWriteFileAtomicKeepsOldFileOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.html")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("boom")
	})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Liquid helium production rate, no smoothing", Title(rate.Smoothing{}))
	assert.Equal(t, "Gaussian filter smoothing σ: 5 min", Title(rate.GaussianSigma(30)))
	assert.Equal(t, "Boxcar filter smoothing, window: 30 min", Title(rate.Window(rate.KernelBoxcar, 30, 0)))
	assert.Equal(t, "Hann filter smoothing, window: 2 min", Title(rate.Window(rate.KernelHann, 2, 0)))
}

func TestTimeFormatter(t *testing.T) {
	loc, err := time.LoadLocation("America/Vancouver")
	require.NoError(t, err)
	f := TimeFormatter(loc)

	ts := time.Date(2024, 1, 2, 20, 30, 0, 0, time.UTC)
	assert.Equal(t, "Jan 2 12:30", f(float64(ts.UnixNano())))
	assert.Equal(t, "Jan 2 12:30", f(ts))
	assert.Equal(t, "", f("x"))
}

func TestRenderCalibration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.png")
	c := &rate.Calibration{
		Reference: "fm207",
		X:         []float64{1, 2, 3, 4},
		Y:         []float64{3, 5, 7, 9},
		Fit:       rate.LinearFit{Slope: 2, Intercept: 1, N: 4},
	}
	require.NoError(t, RenderCalibration(path, c, 400, 300))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(data[:4]))

	require.ErrorIs(t, RenderCalibration(path, &rate.Calibration{X: []float64{1}}, 0, 0), rate.ErrInsufficientSamples)
}
