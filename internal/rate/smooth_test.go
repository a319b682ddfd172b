package rate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKernel(t *testing.T) {
	for in, want := range map[string]KernelKind{
		"":         KernelBoxcar,
		"uniform":  KernelBoxcar,
		"Gaussian": KernelGaussian,
		"triang":   KernelTriang,
		"hanning":  KernelHann,
		"blackman": KernelBlackman,
	} {
		got, err := ParseKernel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseKernel("kaiser")
	require.Error(t, err)
}

func TestWeightsAreSymmetric(t *testing.T) {
	for _, k := range []KernelKind{KernelBoxcar, KernelTriang, KernelGaussian, KernelHann, KernelHamming, KernelBlackman} {
		for _, m := range []int{4, 7} {
			w, err := Smoothing{Kernel: k, Width: m, Std: 2}.Weights()
			require.NoError(t, err)
			require.Len(t, w, m)
			for i := range w {
				assert.InDelta(t, w[i], w[m-1-i], 1e-12, "%s/%d", k, m)
			}
		}
	}
}

func TestTriangMatchesScipy(t *testing.T) {
	w, err := Smoothing{Kernel: KernelTriang, Width: 4}.Weights()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.75, 0.75, 0.25}, w, 1e-12)
	w, err = Smoothing{Kernel: KernelTriang, Width: 3}.Weights()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 1, 0.5}, w, 1e-12)
}

func TestGaussianNeedsStd(t *testing.T) {
	_, err := Smoothing{Kernel: KernelGaussian, Width: 5}.Weights()
	require.Error(t, err)
}

func TestApplyDropsPartialWindows(t *testing.T) {
	idx := grid(0, 90)
	tb := column(t, idx, "a", func(ts int64) float64 { return 3 * float64(ts) })

	out, err := Smoothing{Kernel: KernelBoxcar, Width: 5}.Apply(tb)
	require.NoError(t, err)
	require.Equal(t, []int64{20, 30, 40, 50, 60, 70}, out.Index())
	for i, ts := range out.Index() {
		assert.InDelta(t, 3*float64(ts), out.Column("a")[i], 1e-9)
	}
}

func TestApplyDisabledKeepsData(t *testing.T) {
	tb := column(t, grid(0, 30), "a", func(ts int64) float64 { return float64(ts) })
	for _, sm := range []Smoothing{{}, {Width: -3}, {Kernel: KernelGaussian, Width: 1}} {
		out, err := sm.Apply(tb)
		require.NoError(t, err)
		require.Equal(t, tb.Index(), out.Index())
		require.Equal(t, tb.Column("a"), out.Column("a"))
	}
}

func TestApplySmoothsNoise(t *testing.T) {
	tb := column(t, grid(0, 990), "a", func(ts int64) float64 {
		if (ts/10)%2 == 0 {
			return 1
		}
		return -1
	})
	out, err := GaussianSigma(5).Apply(tb)
	require.NoError(t, err)
	for _, v := range out.Column("a") {
		assert.Less(t, math.Abs(v), 0.05)
	}
}

func TestWindowScaling(t *testing.T) {
	s := Window(KernelGaussian, 10, 0.25)
	assert.Equal(t, 60, s.Width)
	assert.InDelta(t, 15.0, s.Std, 1e-12)
	assert.Equal(t, int64(300), s.Reach())
	assert.InDelta(t, 10.0, s.Minutes(), 1e-12)

	b := Window(KernelBoxcar, 2, 0.25)
	assert.Equal(t, 12, b.Width)
	assert.Zero(t, b.Std)

	assert.False(t, Window(KernelBoxcar, 0, 0).Enabled())
	assert.Equal(t, int64(0), Smoothing{}.Reach())
}

func TestGaussianSigma(t *testing.T) {
	s := GaussianSigma(30)
	assert.Equal(t, 241, s.Width)
	assert.Equal(t, 30.0, s.Std)
	assert.False(t, GaussianSigma(0).Enabled())
}
