package raman

import "math"

// Peak is a local maximum of a spectrum
type Peak struct {
	Index      int
	Wavenumber float64
	Height     float64 // intensity at Index (after optional smoothing)
	Prominence float64
	LeftBase   int // index of the lowest point on the left flank
	RightBase  int
}

// PeakConfig holds the peak detection settings
type PeakConfig struct {
	SmoothWindow  int // 0: no smoothing
	SmoothDegree  int
	MinProminence float64
	MaxProminence float64
	MinHeight     float64
}

// PeakOption mutates a PeakConfig
type PeakOption func(*PeakConfig)

// DefaultPeakConfig accepts every peak with a non-negative height
func DefaultPeakConfig() PeakConfig {
	return PeakConfig{
		MinProminence: 0,
		MaxProminence: math.Inf(1),
		MinHeight:     0,
	}
}

// WithSmoothing smooths the intensities with a Savitzky–Golay filter
// before the peaks are located
func WithSmoothing(window, degree int) PeakOption {
	return func(cfg *PeakConfig) {
		cfg.SmoothWindow = window
		cfg.SmoothDegree = degree
	}
}

// WithProminence limits the prominence to [min, max]; use math.Inf(1) for
// no upper limit
func WithProminence(min, max float64) PeakOption {
	return func(cfg *PeakConfig) {
		cfg.MinProminence = min
		cfg.MaxProminence = max
	}
}

// WithMinHeight sets the lowest accepted peak intensity
func WithMinHeight(h float64) PeakOption {
	return func(cfg *PeakConfig) {
		cfg.MinHeight = h
	}
}

// ApplyPeakOptions applies zero or more options to the default config
func ApplyPeakOptions(opts ...PeakOption) PeakConfig {
	cfg := DefaultPeakConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Detect finds the local maxima of s that satisfy the configured
// prominence and height limits, in ascending wavenumber order. The result
// is also kept on s, see LastPeaks.
func Detect(s *Spectrum, opts ...PeakOption) ([]Peak, error) {
	cfg := ApplyPeakOptions(opts...)
	if math.IsNaN(cfg.MinProminence) || math.IsNaN(cfg.MaxProminence) || cfg.MinProminence > cfg.MaxProminence {
		return nil, invalidf("prominence range %g:%g", cfg.MinProminence, cfg.MaxProminence)
	}

	y := s.intensity
	if cfg.SmoothWindow > 0 {
		var err error
		y, err = savitzkyGolay(s.intensity, cfg.SmoothWindow, cfg.SmoothDegree)
		if err != nil {
			return nil, err
		}
	}

	peaks := make([]Peak, 0)
	for _, i := range localMaxima(y) {
		if y[i] < cfg.MinHeight {
			continue
		}
		prom, left, right := prominence(y, i)
		if prom < cfg.MinProminence || prom > cfg.MaxProminence {
			continue
		}
		peaks = append(peaks, Peak{
			Index:      i,
			Wavenumber: s.wavenumber[i],
			Height:     y[i],
			Prominence: prom,
			LeftBase:   left,
			RightBase:  right,
		})
	}
	s.cachePeaks(peaks)
	return peaks, nil
}

// localMaxima returns samples that are higher than both neighbours. A flat
// top bounded by lower samples on both sides is reported once, at its
// middle (rounded down).
func localMaxima(y []float64) []int {
	var idx []int
	last := len(y) - 1
	for i := 1; i < last; i++ {
		if y[i-1] < y[i] {
			ahead := i + 1
			for ahead < last && y[ahead] == y[i] {
				ahead++
			}
			if y[ahead] < y[i] {
				idx = append(idx, (i+ahead-1)/2)
				i = ahead
			}
		}
	}
	return idx
}

// prominence walks from the peak to each side until a strictly higher
// sample or the border is reached and uses the lowest point on the way.
// The prominence is measured from the higher of the two minima.
func prominence(y []float64, peak int) (float64, int, int) {
	left, leftMin := peak, y[peak]
	for i := peak; i >= 0 && y[i] <= y[peak]; i-- {
		if y[i] < leftMin {
			leftMin, left = y[i], i
		}
	}
	right, rightMin := peak, y[peak]
	for i := peak; i < len(y) && y[i] <= y[peak]; i++ {
		if y[i] < rightMin {
			rightMin, right = y[i], i
		}
	}
	return y[peak] - math.Max(leftMin, rightMin), left, right
}
