package rate

import (
	"fmt"
	"math"
	"strings"

	"liquefier/internal/frame"
	"liquefier/internal/loader"
)

type KernelKind string

const (
	KernelBoxcar   KernelKind = "boxcar"
	KernelTriang   KernelKind = "triang"
	KernelGaussian KernelKind = "gaussian"
	KernelHann     KernelKind = "hann"
	KernelHamming  KernelKind = "hamming"
	KernelBlackman KernelKind = "blackman"
)

// SamplesPerMinute is the number of grid steps in one minute.
const SamplesPerMinute = 60 / loader.GridStep

// gaussianTruncate is the kernel radius in standard deviations used by
// GaussianSigma.
const gaussianTruncate = 4.0

func ParseKernel(name string) (KernelKind, error) {
	k := KernelKind(strings.ToLower(strings.TrimSpace(name)))
	switch k {
	case "", "uniform", "none":
		return KernelBoxcar, nil
	case KernelBoxcar, KernelTriang, KernelGaussian, KernelHann, KernelHamming, KernelBlackman:
		return k, nil
	case "triangle":
		return KernelTriang, nil
	case "hanning":
		return KernelHann, nil
	}
	return "", fmt.Errorf("unknown smoothing kernel %q", name)
}

// Smoothing is a centred moving-window filter along time. Width and Std are
// counted in grid steps. A Width below 2 leaves the data unchanged.
type Smoothing struct {
	Kernel KernelKind
	Width  int
	Std    float64
}

// Window builds a smoothing over a window given in minutes. std is the
// gaussian standard deviation as a fraction of the window.
func Window(kernel KernelKind, minutes, std float64) Smoothing {
	s := Smoothing{
		Kernel: kernel,
		Width:  int(math.Round(minutes * float64(SamplesPerMinute))),
	}
	if kernel == KernelGaussian {
		s.Std = std * minutes * float64(SamplesPerMinute)
	}
	return s
}

// GaussianSigma builds a gaussian filter from its standard deviation in grid
// steps, truncated at four standard deviations.
func GaussianSigma(sigma float64) Smoothing {
	if sigma <= 0 {
		return Smoothing{}
	}
	radius := int(gaussianTruncate*sigma + 0.5)
	return Smoothing{Kernel: KernelGaussian, Width: 2*radius + 1, Std: sigma}
}

func (s Smoothing) Enabled() bool {
	return s.Width > 1
}

// Minutes is the window length in minutes.
func (s Smoothing) Minutes() float64 {
	return float64(s.Width) / float64(SamplesPerMinute)
}

// Reach is how far, in seconds, the window extends on either side of a sample.
func (s Smoothing) Reach() int64 {
	if !s.Enabled() {
		return 0
	}
	return int64(s.Width) / 2 * loader.GridStep
}

func (s Smoothing) String() string {
	if !s.Enabled() {
		return "none"
	}
	if s.Kernel == KernelGaussian {
		return fmt.Sprintf("gaussian σ: %.2g min, window %.3g min", s.Std/float64(SamplesPerMinute), s.Minutes())
	}
	return fmt.Sprintf("%s, window %.3g min", s.Kernel, s.Minutes())
}

// Weights returns the symmetric window of Width points.
func (s Smoothing) Weights() ([]float64, error) {
	m := s.Width
	if m < 1 {
		return nil, fmt.Errorf("window width %d", m)
	}
	w := make([]float64, m)
	if m == 1 {
		w[0] = 1
		return w, nil
	}
	den := float64(m - 1)
	for n := range w {
		x := float64(n)
		switch s.Kernel {
		case KernelBoxcar, "":
			w[n] = 1
		case KernelTriang:
			// symmetric triangle that does not reach zero at the ends
			if m%2 == 1 {
				w[n] = 1 - math.Abs(x-den/2)/(float64(m+1)/2)
			} else {
				w[n] = 1 - math.Abs(x-den/2)/(float64(m)/2)
			}
		case KernelGaussian:
			if s.Std <= 0 {
				return nil, fmt.Errorf("gaussian kernel needs a positive std")
			}
			d := (x - den/2) / s.Std
			w[n] = math.Exp(-0.5 * d * d)
		case KernelHann:
			w[n] = 0.5 - 0.5*math.Cos(2*math.Pi*x/den)
		case KernelHamming:
			w[n] = 0.54 - 0.46*math.Cos(2*math.Pi*x/den)
		case KernelBlackman:
			w[n] = 0.42 - 0.5*math.Cos(2*math.Pi*x/den) + 0.08*math.Cos(4*math.Pi*x/den)
		default:
			return nil, fmt.Errorf("unknown smoothing kernel %q", s.Kernel)
		}
	}
	return w, nil
}

// Apply smooths every column of t. Rows whose window runs past either end of
// the table, or covers a missing value, are dropped.
func (s Smoothing) Apply(t *frame.Table) (*frame.Table, error) {
	if !s.Enabled() {
		return t.Clone(), nil
	}
	w, err := s.Weights()
	if err != nil {
		return nil, err
	}
	out := frame.New(t.Index())
	for _, col := range t.Columns() {
		if err := out.SetColumn(col, convolve(t.Column(col), w)); err != nil {
			return nil, err
		}
	}
	return out.DropNA(), nil
}

// convolve computes the weighted mean over a centred window. Positions
// without full window support are NaN.
func convolve(vals, w []float64) []float64 {
	out := make([]float64, len(vals))
	left := (len(w) - 1) / 2
	var total float64
	for _, x := range w {
		total += x
	}
	for i := range vals {
		lo := i - left
		hi := lo + len(w)
		if lo < 0 || hi > len(vals) || total == 0 {
			out[i] = math.NaN()
			continue
		}
		var acc float64
		for k, x := range w {
			acc += x * vals[lo+k]
		}
		out[i] = acc / total
	}
	return out
}
